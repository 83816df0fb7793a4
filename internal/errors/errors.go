package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrTypeValidation    ErrorType = "validation_rejected"
	ErrTypeIntrospection ErrorType = "introspection_failed"
	ErrTypeGeneration    ErrorType = "generation_failed"
	ErrTypeTimeout       ErrorType = "execution_timeout"
	ErrTypeExecution     ErrorType = "execution_failed"
	ErrTypeRateLimit     ErrorType = "rate_limit"
	ErrTypeNetwork       ErrorType = "network"
	ErrTypeConfig        ErrorType = "config"
	ErrTypeHistory       ErrorType = "history"
	ErrTypeDatabase      ErrorType = "database"
	ErrTypeInternal      ErrorType = "internal"
)

// Error represents a structured error with type and optional suggestions
type Error struct {
	Type        ErrorType
	Message     string
	Cause       error
	Suggestions []string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithSuggestion adds a suggestion for resolving the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// New creates a new structured error
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new structured error with formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with formatted message
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type == errType
	}

	return false
}

// GetType returns the error type if it's a structured error
func GetType(err error) ErrorType {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type
	}

	return ErrTypeInternal
}

// NewValidationError creates a validation rejection carrying the failing
// sanitizer stage so callers can surface it verbatim.
func NewValidationError(stage, message string) *Error {
	return Newf(ErrTypeValidation, "%s: %s", stage, message)
}

// NewTimeoutError creates an execution timeout error, distinct from a
// generic execution failure so callers can tell a slow query from a bad one.
func NewTimeoutError(timeoutSecs float64) *Error {
	return Newf(ErrTypeTimeout, "query exceeded the %.0fs execution deadline", timeoutSecs).
		WithSuggestion("Narrow the query with a WHERE clause or a smaller LIMIT").
		WithSuggestion("Raise the executor timeout if the query is expected to be slow")
}
