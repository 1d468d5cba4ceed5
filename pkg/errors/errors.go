package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	// Status is the HTTP status reported by the booking API, zero when the
	// request never produced a response.
	Status int   `json:"status,omitempty"`
	Err    error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrValidation
	ErrTransport
	ErrServer
	ErrConflict
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

// Validation is a client-side input failure. Message is shown to the user.
func Validation(message string) *AppError {
	return &AppError{
		Code:    ErrValidation,
		Message: message,
	}
}

// Transport wraps network, timeout and decode failures.
func Transport(op string, err error) *AppError {
	return &AppError{
		Code:    ErrTransport,
		Message: op + " failed",
		Err:     err,
	}
}

// Server is a non-2xx answer from the booking API. message is the body's
// message field and may be empty.
func Server(status int, message string) *AppError {
	return &AppError{
		Code:    ErrServer,
		Message: message,
		Status:  status,
	}
}

// Conflict reports an operation refused because another one is still running.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Message: message,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or zero.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return 0
}

func IsValidation(err error) bool { return CodeOf(err) == ErrValidation }

func IsTransport(err error) bool { return CodeOf(err) == ErrTransport }

func IsServer(err error) bool { return CodeOf(err) == ErrServer }

func IsUnauthorized(err error) bool { return CodeOf(err) == ErrUnauthorized }

// StatusOf returns the API status carried by err, or zero.
func StatusOf(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Status
	}
	return 0
}
