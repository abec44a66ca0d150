package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{"config", ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{"io", ErrCodeFileNotFound, CategoryIO, SeverityError, false},
		{"backend", ErrCodeBackend, CategoryBackend, SeverityWarning, true},
		{"validation", ErrCodeValidation, CategoryValidation, SeverityError, false},
		{"extraction", ErrCodeExtraction, CategoryValidation, SeverityFatal, false},
		{"database", ErrCodeDatabase, CategoryInternal, SeverityFatal, false},
		{"short code", "ERR", CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestKBError_ErrorFormat(t *testing.T) {
	err := NotFound("file", 42)
	assert.Equal(t, "[ERR_404_NOT_FOUND] file not found: 42", err.Error())
	assert.Equal(t, "file", err.Details["kind"])
	assert.Equal(t, "42", err.Details["id"])
}

func TestIsCode_ThroughWrapping(t *testing.T) {
	// Given: a payload error wrapped twice with fmt.Errorf
	base := PayloadTooLarge("too many chunks")
	wrapped := fmt.Errorf("upsert file 7: %w", fmt.Errorf("guard: %w", base))

	// Then: code matching sees through the chain
	assert.True(t, IsCode(wrapped, ErrCodePayloadTooLarge))
	assert.False(t, IsNotFound(wrapped))
	assert.Equal(t, ErrCodePayloadTooLarge, GetCode(wrapped))

	ke, ok := As(wrapped)
	require.True(t, ok)
	assert.Same(t, base, ke)
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Backend("text", "bulk upsert failed", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, "text", err.Details["backend"])
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(Chunking("empty")))
	assert.False(t, IsFatal(Validation("kbId required")))
	assert.False(t, IsFatal(stderrors.New("plain")))
	assert.False(t, IsFatal(nil))
}

func TestFormatForCLI(t *testing.T) {
	err := NotFound("library", 3).WithSuggestion("check the kb id")
	out := FormatForCLI(err)

	assert.Contains(t, out, "Error: library not found: 3")
	assert.Contains(t, out, "Hint: check the kb id")
	assert.Contains(t, out, "Code: ERR_404_NOT_FOUND")

	plain := FormatForCLI(stderrors.New("boom"))
	assert.Contains(t, plain, "Code: ERR_501_INTERNAL")
	assert.Empty(t, FormatForCLI(nil))
}

func TestLogAttrs(t *testing.T) {
	attrs := LogAttrs(Backend("vector", "service returned 503", stderrors.New("503")))
	assert.NotEmpty(t, attrs)
	assert.Len(t, LogAttrs(stderrors.New("x")), 1)
	assert.Nil(t, LogAttrs(nil))
}

type blankError struct{}

func (blankError) Error() string { return "  " }

func TestSafeMessage(t *testing.T) {
	long := strings.Repeat("é", 600)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "unknown"},
		{"plain", stderrors.New("disk full"), "disk full"},
		{"code prefix dropped", Chunking("no chunks"), "no chunks"},
		{"wrapped keeps context", fmt.Errorf("read: %w", Chunking("no chunks")), "read: [ERR_411_CHUNKING] no chunks"},
		{"blank falls back to type", blankError{}, "errors.blankError"},
		{"truncated by characters", stderrors.New(long), strings.Repeat("é", 500)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeMessage(tt.err, 500))
		})
	}
}
