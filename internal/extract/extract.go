// Package extract turns uploaded document bytes into raw text.
//
// Formats are chosen by file extension. Output is capped in characters
// so a huge document cannot exhaust memory downstream.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

// Defaults for Options.
const (
	DefaultMaxChars = 2_000_000
	DefaultMaxBytes = 50 * 1024 * 1024
)

// Extractor returns the raw text of a named document.
type Extractor interface {
	Extract(ctx context.Context, name string, data []byte) (string, error)
}

// Func extracts text from one format.
type Func func(ctx context.Context, data []byte) (string, error)

// Options bounds extraction.
type Options struct {
	// MaxChars caps the returned text, in characters.
	MaxChars int
	// MaxBytes rejects larger inputs before parsing.
	MaxBytes int64
}

// Registry dispatches on file extension.
type Registry struct {
	opts  Options
	byExt map[string]Func
}

var _ Extractor = (*Registry)(nil)

// New returns a Registry with every built-in format registered.
func New(opts Options) *Registry {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}

	r := &Registry{opts: opts, byExt: make(map[string]Func)}
	r.Register(plainText, ".txt", ".md", ".markdown", ".log", ".csv", ".tsv", ".json", ".yaml", ".yml", ".xml")
	r.Register(pdfText, ".pdf")
	r.Register(docxText, ".docx")
	r.Register(htmlText, ".html", ".htm")
	r.Register(xlsxText, ".xlsx", ".xlsm")
	return r
}

// Register binds fn to the given extensions, replacing earlier bindings.
func (r *Registry) Register(fn Func, exts ...string) {
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = fn
	}
}

// Supports reports whether name has a registered extension.
func (r *Registry) Supports(name string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Extract returns the text of data, truncated to MaxChars. Unknown
// extensions are read as plain text when the bytes are valid UTF-8.
func (r *Registry) Extract(ctx context.Context, name string, data []byte) (string, error) {
	if int64(len(data)) > r.opts.MaxBytes {
		return "", kberrors.New(kberrors.ErrCodeFileTooLarge,
			fmt.Sprintf("file %s exceeds extraction limit of %d bytes", name, r.opts.MaxBytes), nil)
	}

	ext := strings.ToLower(filepath.Ext(name))
	fn, ok := r.byExt[ext]
	if !ok {
		if !utf8.Valid(data) {
			return "", kberrors.New(kberrors.ErrCodeUnsupportedType,
				fmt.Sprintf("unsupported file type %q", ext), nil)
		}
		fn = plainText
	}

	text, err := fn(ctx, data)
	if err != nil {
		if _, ok := kberrors.As(err); ok {
			return "", err
		}
		return "", kberrors.Extraction(fmt.Sprintf("extract %s: %v", name, err), err)
	}
	return truncateRunes(text, r.opts.MaxChars), nil
}

func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}

func plainText(_ context.Context, data []byte) (string, error) {
	// drop a UTF-8 BOM and replace invalid sequences
	data = trimBOM(data)
	if utf8.Valid(data) {
		return string(data), nil
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

func trimBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}
