package errors

import (
	"errors"
	"fmt"
)

// SchemaError is the structured error type used across the schema engine.
// It carries enough context to decide whether a failed pass may be retried
// and to render a useful message to operators.
type SchemaError struct {
	// Code is the unique error code (e.g., "ERR_402_SCHEMA_AMBIGUOUS").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Store, Network, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable hint for the operator.
	Suggestion string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SchemaError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a SchemaError with the same code.
func (e *SchemaError) Is(target error) bool {
	if t, ok := target.(*SchemaError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *SchemaError) WithDetail(key, value string) *SchemaError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the operator.
func (e *SchemaError) WithSuggestion(suggestion string) *SchemaError {
	e.Suggestion = suggestion
	return e
}

// New creates a new SchemaError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *SchemaError {
	return &SchemaError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a SchemaError from an existing error.
func Wrap(code string, err error) *SchemaError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *SchemaError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StoreError creates an error for a failed document-store operation.
func StoreError(message string, cause error) *SchemaError {
	return New(ErrCodeStoreRequest, message, cause)
}

// NetworkError creates a network-related error.
// Network errors are retryable.
func NetworkError(message string, cause error) *SchemaError {
	return New(ErrCodeStoreUnavailable, message, cause)
}

// ValidationError creates a schema validation error.
func ValidationError(code, message string) *SchemaError {
	return New(code, message, nil)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *SchemaError {
	return New(ErrCodeInternal, message, cause)
}

// As finds the first SchemaError in err's chain.
func As(err error) (*SchemaError, bool) {
	var se *SchemaError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsRetryable reports whether any SchemaError in err's chain is retryable.
func IsRetryable(err error) bool {
	if se, ok := As(err); ok {
		return se.Retryable
	}
	return false
}

// IsFatal reports whether err carries fatal severity.
func IsFatal(err error) bool {
	if se, ok := As(err); ok {
		return se.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code, or "" when err is not a SchemaError.
func GetCode(err error) string {
	if se, ok := As(err); ok {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category, or "" when err is not a SchemaError.
func GetCategory(err error) Category {
	if se, ok := As(err); ok {
		return se.Category
	}
	return ""
}
