package types

import "fmt"

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// State machine error codes
const (
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrPlanValidation    ErrorCode = "PLAN_VALIDATION"
	ErrInvalidProposal   ErrorCode = "INVALID_PROPOSAL"
)

// Tool execution error codes
const (
	ErrToolNotRegistered ErrorCode = "TOOL_NOT_REGISTERED"
	ErrToolExecution     ErrorCode = "TOOL_EXECUTION"
	ErrToolTimeout       ErrorCode = "TOOL_TIMEOUT"
)

// Infrastructure error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrSessionUnavailable ErrorCode = "SESSION_UNAVAILABLE"
	ErrDatabase           ErrorCode = "DATABASE"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code        ErrorCode `json:"code"`
	Message     string    `json:"message"`
	HTTPStatus  int       `json:"http_status,omitempty"`
	Retryable   bool      `json:"retryable"`
	Transaction string    `json:"transaction,omitempty"`
	Cause       error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithTransaction tags the error with the transaction type that failed.
func (e *Error) WithTransaction(tx string) *Error {
	e.Transaction = tx
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
