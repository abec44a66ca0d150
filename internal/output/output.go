// Package output formats CLI output. Color is used only when writing to a
// terminal and NO_COLOR is unset.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette, as 256-color codes.
const (
	ColorAccent = "154"
	ColorGray   = "245"
	ColorRed    = "196"
	ColorYellow = "220"
)

// Styles are the lipgloss styles used by a Writer.
type Styles struct {
	Header    lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Label     lipgloss.Style
	Highlight lipgloss.Style
	Progress  lipgloss.Style
}

// DefaultStyles returns the colored styles.
func DefaultStyles() Styles {
	return Styles{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Success:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent)),
		Warning:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Label:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Highlight: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Progress:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent)),
	}
}

// PlainStyles returns styles that render text unchanged.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{plain, plain, plain, plain, plain, plain, plain}
}

// Writer provides formatted output for CLI.
type Writer struct {
	out    io.Writer
	color  bool
	styles Styles
}

// New creates a Writer, enabling color when out is a terminal.
func New(out io.Writer) *Writer {
	return NewWithColor(out, IsTTY(out) && !NoColor())
}

// NewWithColor creates a Writer with color forced on or off.
func NewWithColor(out io.Writer, color bool) *Writer {
	styles := PlainStyles()
	if color {
		styles = DefaultStyles()
	}
	return &Writer{out: out, color: color, styles: styles}
}

// Color reports whether the writer emits styled text.
func (w *Writer) Color() bool {
	return w.color
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", w.styles.Success.Render(msg))
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", w.styles.Warning.Render(msg))
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", w.styles.Error.Render(msg))
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Header prints a bold section title.
func (w *Writer) Header(title string) {
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(title))
}

// Field is one row of a KV listing.
type Field struct {
	Label string
	Value string
}

// KV prints aligned label/value rows. Empty values print as "-".
func (w *Writer) KV(fields ...Field) {
	width := 0
	for _, f := range fields {
		width = max(width, len(f.Label))
	}
	for _, f := range fields {
		value := f.Value
		if value == "" {
			value = "-"
		}
		pad := strings.Repeat(" ", width-len(f.Label))
		_, _ = fmt.Fprintf(w.out, "  %s%s  %s\n", w.styles.Label.Render(f.Label), pad, value)
	}
}

// JSON prints v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Highlight renders a search fragment, replacing <em> markers with the
// highlight style, or with ** when color is off.
func (w *Writer) Highlight(fragment string) string {
	var b strings.Builder
	rest := fragment
	for {
		start := strings.Index(rest, "<em>")
		if start < 0 {
			break
		}
		end := strings.Index(rest[start:], "</em>")
		if end < 0 {
			break
		}
		end += start

		b.WriteString(rest[:start])
		term := rest[start+len("<em>") : end]
		if w.color {
			b.WriteString(w.styles.Highlight.Render(term))
		} else {
			b.WriteString("**" + term + "**")
		}
		rest = rest[end+len("</em>"):]
	}
	b.WriteString(rest)
	return b.String()
}

// Progress renders a percentage as a bar followed by msg.
func (w *Writer) Progress(pct int, msg string) {
	pct = min(max(pct, 0), 100)
	bar := w.styles.Progress.Render(renderProgressBar(pct, 100, 30))
	_, _ = fmt.Fprintf(w.out, "[%s] %3d%% %s\n", bar, pct, msg)
}

// renderProgressBar creates a text progress bar.
func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}

	filled := int(float64(current) / float64(total) * float64(width))
	filled = min(max(filled, 0), width)

	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// NoColor reports whether the NO_COLOR environment variable is set.
func NoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}
