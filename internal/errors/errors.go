package errors

import (
	"fmt"
)

// RehydrateError is the structured error type for rehydrate.
// It provides rich context for error handling, logging, and user presentation.
type RehydrateError struct {
	// Code is the unique error code (e.g., "ERR_301_RETRIEVAL_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Retrieval, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *RehydrateError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RehydrateError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with RehydrateError.
func (e *RehydrateError) Is(target error) bool {
	if t, ok := target.(*RehydrateError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *RehydrateError) WithDetail(key, value string) *RehydrateError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *RehydrateError) WithSuggestion(suggestion string) *RehydrateError {
	e.Suggestion = suggestion
	return e
}

// New creates a new RehydrateError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *RehydrateError {
	return &RehydrateError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a RehydrateError from an existing error.
// The error's message becomes the RehydrateError message.
func Wrap(code string, err error) *RehydrateError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *RehydrateError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// RetrievalUnavailable creates an error for an unreachable retrieval channel.
// These errors are retryable.
func RetrievalUnavailable(message string, cause error) *RehydrateError {
	return New(ErrCodeRetrievalUnavailable, message, cause)
}

// Timeout creates an error for a request that exceeded its deadline.
func Timeout(message string, cause error) *RehydrateError {
	return New(ErrCodeTimeout, message, cause)
}

// ResourceExhausted creates an error for a rejected request under load.
// Callers may retry after backing off.
func ResourceExhausted(message string) *RehydrateError {
	return New(ErrCodeResourceExhausted, message, nil)
}

// InvalidInput creates a validation-related error.
func InvalidInput(message string, cause error) *RehydrateError {
	return New(ErrCodeInvalidInput, message, cause)
}

// UnknownRole creates an error for a role with no anchor mapping.
func UnknownRole(role string) *RehydrateError {
	return New(ErrCodeUnknownRole, fmt.Sprintf("unknown role: %q", role), nil).
		WithDetail("role", role).
		WithSuggestion("add the role to the roles section of .rehydrate.yaml")
}

// QueryEmpty creates an error for an empty or whitespace-only query.
func QueryEmpty() *RehydrateError {
	return New(ErrCodeQueryEmpty, "query must not be empty", nil)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *RehydrateError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a RehydrateError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if re, ok := err.(*RehydrateError); ok {
		return re.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if re, ok := err.(*RehydrateError); ok {
		return re.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a RehydrateError.
// Returns empty string if not a RehydrateError.
func GetCode(err error) string {
	if re, ok := err.(*RehydrateError); ok {
		return re.Code
	}
	return ""
}

// GetCategory extracts the category from a RehydrateError.
// Returns empty string if not a RehydrateError.
func GetCategory(err error) Category {
	if re, ok := err.(*RehydrateError); ok {
		return re.Category
	}
	return ""
}
