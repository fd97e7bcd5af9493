// Package errors provides structured error handling for rehydrate.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (index files, disk)
//   - 3XX: Retrieval errors (stores, embedding providers, capacity)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryRetrieval indicates retrieval channel and capacity errors.
	CategoryRetrieval Category = "RETRIEVAL"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeIndexNotFound = "ERR_201_INDEX_NOT_FOUND"
	ErrCodeIndexLocked   = "ERR_202_INDEX_LOCKED"
	ErrCodeCorruptIndex  = "ERR_205_CORRUPT_INDEX"

	// Retrieval errors (300-399)
	ErrCodeRetrievalUnavailable = "ERR_301_RETRIEVAL_UNAVAILABLE"
	ErrCodeTimeout              = "ERR_302_TIMEOUT"
	ErrCodeResourceExhausted    = "ERR_303_RESOURCE_EXHAUSTED"
	ErrCodeEmbeddingUnavailable = "ERR_304_EMBEDDING_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeUnknownRole  = "ERR_402_UNKNOWN_ROLE"
	ErrCodeQueryEmpty   = "ERR_403_QUERY_EMPTY"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "301" from "ERR_301_RETRIEVAL_UNAVAILABLE")
	numStr := code[4:7]
	if len(numStr) < 1 {
		return CategoryInternal
	}

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryRetrieval
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	// Fatal errors
	if code == ErrCodeCorruptIndex {
		return SeverityFatal
	}

	// Retryable retrieval errors get warning severity
	if isRetryableCode(code) {
		return SeverityWarning
	}

	// Default to error severity
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeRetrievalUnavailable, ErrCodeResourceExhausted, ErrCodeEmbeddingUnavailable:
		return true
	default:
		return false
	}
}
