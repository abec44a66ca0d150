package errors

import (
	stderrors "errors"
	"fmt"
)

// KBError is the structured error type for amankb.
// It carries enough context to decide between failing a job, recording a
// warning, or surfacing a message to an operator.
type KBError struct {
	// Code is the unique error code (e.g., "ERR_404_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates the same call may succeed later.
	Retryable bool

	// Suggestion is an actionable hint for the operator.
	Suggestion string
}

// Error implements the error interface.
func (e *KBError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *KBError) Unwrap() error {
	return e.Cause
}

// Is matches by code so errors.Is(err, &KBError{Code: ...}) works.
func (e *KBError) Is(target error) bool {
	if t, ok := target.(*KBError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *KBError) WithDetail(key, value string) *KBError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the operator.
func (e *KBError) WithSuggestion(suggestion string) *KBError {
	e.Suggestion = suggestion
	return e
}

// New creates a KBError. Category, severity and the retryable flag are
// derived from the code.
func New(code string, message string, cause error) *KBError {
	return &KBError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a KBError from an existing error, reusing its message.
func Wrap(code string, err error) *KBError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Validation reports a missing or malformed required input.
func Validation(format string, args ...any) *KBError {
	return New(ErrCodeValidation, fmt.Sprintf(format, args...), nil)
}

// NotFound reports a referenced file, library or job that does not exist.
func NotFound(kind string, id int64) *KBError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found: %d", kind, id), nil).
		WithDetail("kind", kind).
		WithDetail("id", fmt.Sprint(id))
}

// Extraction reports unsupported, corrupt or too-short document content.
func Extraction(message string, cause error) *KBError {
	return New(ErrCodeExtraction, message, cause)
}

// Chunking reports an empty chunk result.
func Chunking(message string) *KBError {
	return New(ErrCodeChunking, message, nil)
}

// Backend reports a failed text-index or vector-service call.
func Backend(backend, message string, cause error) *KBError {
	return New(ErrCodeBackend, message, cause).WithDetail("backend", backend)
}

// PayloadTooLarge reports a vector payload that exceeds the configured guard.
func PayloadTooLarge(message string) *KBError {
	return New(ErrCodePayloadTooLarge, message, nil)
}

// Database wraps a metadata store failure.
func Database(op string, cause error) *KBError {
	return New(ErrCodeDatabase, op+": "+causeText(cause), cause).WithDetail("op", op)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *KBError {
	return New(ErrCodeConfigInvalid, message, cause)
}

func causeText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// As returns the first KBError in err's chain.
func As(err error) (*KBError, bool) {
	var ke *KBError
	if stderrors.As(err, &ke) {
		return ke, true
	}
	return nil, false
}

// IsCode reports whether any KBError in err's chain carries code.
func IsCode(err error, code string) bool {
	return stderrors.Is(err, &KBError{Code: code})
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool { return IsCode(err, ErrCodeNotFound) }

// IsValidation reports whether err is a Validation error.
func IsValidation(err error) bool { return IsCode(err, ErrCodeValidation) }

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if ke, ok := As(err); ok {
		return ke.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if ke, ok := As(err); ok {
		return ke.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code, or "" if err carries no KBError.
func GetCode(err error) string {
	if ke, ok := As(err); ok {
		return ke.Code
	}
	return ""
}
