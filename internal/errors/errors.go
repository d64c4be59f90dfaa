package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Message == "" && e.Cause != nil {
		return e.Cause.Error()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context, keeping the code of an inner AppError
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode attaches a code to err, overriding any inner code
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Cause: err}
}

// IsAppError checks if an error is or wraps an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the outermost AppError code, or "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// HasCode reports whether any AppError in the chain carries code
func HasCode(err error, code string) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// Predefined error codes
const (
	CodeConfigInvalid       = "CONFIG_INVALID"
	CodeDatabaseError       = "DATABASE_ERROR"
	CodeValidationError     = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeInternalError       = "INTERNAL_ERROR"
	CodeRemoteCompute       = "REMOTE_COMPUTE_ERROR"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeInvalidState        = "INVALID_STATE"
	CodePartialFailure      = "PARTIAL_FAILURE"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string, cause error) *AppError {
	return &AppError{Code: CodeDatabaseError, Message: message, Cause: cause}
}

// Validation marks a request rejected before any remote call
func Validation(cause error) *AppError {
	return &AppError{Code: CodeValidationError, Message: "invalid request", Cause: cause}
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

// RemoteCompute wraps a failed statistics service call
func RemoteCompute(operation string, cause error) *AppError {
	return &AppError{
		Code:    CodeRemoteCompute,
		Message: fmt.Sprintf("%s failed", operation),
		Cause:   cause,
	}
}

// ConcurrencyConflict rejects a second transaction on a busy engine
func ConcurrencyConflict(model string, cause error) *AppError {
	return &AppError{
		Code:    CodeConcurrencyConflict,
		Message: fmt.Sprintf("model %q is busy", model),
		Cause:   cause,
	}
}

// InvalidState rejects an operation that is not valid from the current state
func InvalidState(message string, cause error) *AppError {
	return &AppError{Code: CodeInvalidState, Message: message, Cause: cause}
}

// PartialFailure reports that some fan-out items failed
func PartialFailure(message string) *AppError {
	return New(CodePartialFailure, message)
}
