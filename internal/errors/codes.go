// Package errors provides structured error handling for amankb.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and storage errors
//   - 3XX: Backend (text index, vector service) errors
//   - 4XX: Validation and content errors
//   - 5XX: Internal and database errors
package errors

// Category defines error categories for classification.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryIO         Category = "IO"
	CategoryBackend    Category = "BACKEND"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal aborts the current job or reindex call.
	SeverityFatal Severity = "FATAL"
	// SeverityError fails the operation but the process continues.
	SeverityError Severity = "ERROR"
	// SeverityWarning marks degraded operation, e.g. an index sync that can be retried.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound     = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFileRead         = "ERR_202_FILE_READ"
	ErrCodeFileTooLarge     = "ERR_204_FILE_TOO_LARGE"
	ErrCodePathTraversal    = "ERR_206_PATH_TRAVERSAL"
	ErrCodeStorageType      = "ERR_207_STORAGE_TYPE"
	ErrCodeLeaseUnavailable = "ERR_208_LEASE_UNAVAILABLE"

	// Backend errors (300-399)
	ErrCodeBackend            = "ERR_301_BACKEND"
	ErrCodeBackendUnavailable = "ERR_302_BACKEND_UNAVAILABLE"
	ErrCodeBackendPartial     = "ERR_303_BACKEND_PARTIAL_FAILURE"

	// Validation errors (400-499)
	ErrCodeValidation      = "ERR_401_VALIDATION"
	ErrCodeNotFound        = "ERR_404_NOT_FOUND"
	ErrCodeExtraction      = "ERR_410_EXTRACTION"
	ErrCodeChunking        = "ERR_411_CHUNKING"
	ErrCodePayloadTooLarge = "ERR_413_PAYLOAD_TOO_LARGE"
	ErrCodeUnsupportedType = "ERR_415_UNSUPPORTED_TYPE"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
	ErrCodeDatabase = "ERR_502_DATABASE"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "ERR_301_BACKEND" -> '3'
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryBackend
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeExtraction, ErrCodeChunking, ErrCodePathTraversal, ErrCodeDatabase:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeBackend, ErrCodeBackendUnavailable, ErrCodeBackendPartial, ErrCodeLeaseUnavailable:
		return true
	default:
		return false
	}
}
