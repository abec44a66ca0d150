package chunk

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	horizontalSpace = regexp.MustCompile(`[ \t\v\f\r]+`)
	blankLines      = regexp.MustCompile(`\n{3,}`)
)

// Clean normalizes extracted text before chunking: NUL bytes are removed,
// runs of horizontal whitespace collapse to one space, three or more
// newlines collapse to a blank line, and the result is trimmed.
func Clean(raw string) string {
	if raw == "" {
		return ""
	}
	s := strings.ReplaceAll(raw, "\x00", "")
	s = horizontalSpace.ReplaceAllString(s, " ")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// TooShort reports whether cleaned text has fewer than MinTextLen characters.
func TooShort(cleaned string) bool {
	return utf8.RuneCountInString(cleaned) < MinTextLen
}
