package errors

import (
	"errors"
	"fmt"
)

// SeekError is the structured error type for codeseek.
// It carries the code, category, and severity used by the index manager to
// decide between skip-and-continue and routing the state machine to Error.
type SeekError struct {
	// Code is the unique error code (e.g., "ERR_301_SERVICE_UNREACHABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, Validation, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *SeekError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SeekError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *SeekError) Is(target error) bool {
	if t, ok := target.(*SeekError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *SeekError) WithSuggestion(suggestion string) *SeekError {
	e.Suggestion = suggestion
	return e
}

// New creates a new SeekError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *SeekError {
	return &SeekError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf creates a new SeekError with a formatted message.
func Newf(code string, format string, args ...any) *SeekError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates a SeekError from an existing error.
// Returns nil when err is nil.
func Wrap(code string, err error) *SeekError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *SeekError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates an embedder-validation error.
func ValidationError(message string, cause error) *SeekError {
	return New(ErrCodeValidationFailed, message, cause)
}

// ConnectivityError creates a connectivity error, fatal for the current pass.
func ConnectivityError(message string, cause error) *SeekError {
	return New(ErrCodeServiceUnreachable, message, cause)
}

// IsRetryable checks if an error is retryable (rate-limit or provider 5xx).
func IsRetryable(err error) bool {
	var se *SeekError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the current pass and route the state machine to Error.
func IsFatal(err error) bool {
	var se *SeekError
	if errors.As(err, &se) {
		return se.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a SeekError.
// Returns empty string if err is not a SeekError.
func GetCode(err error) string {
	var se *SeekError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from a SeekError.
func GetCategory(err error) Category {
	var se *SeekError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}
