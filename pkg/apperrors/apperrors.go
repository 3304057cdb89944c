package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure class. Every error a service returns to a handler
// carries exactly one of these so the HTTP layer can map it without peeking
// at provider or database internals.
type Code string

const (
	CodeUnauthenticated     Code = "UNAUTHENTICATED"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeNotFound            Code = "NOT_FOUND"
	CodeInvalidState        Code = "INVALID_STATE"
	CodeConflict            Code = "CONFLICT"
	CodeNotConfigured       Code = "NOT_CONFIGURED"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeTransferFailed      Code = "TRANSFER_FAILED"
	CodeValidation          Code = "VALIDATION_FAILED"
	CodeInternal            Code = "INTERNAL_ERROR"
)

var statusByCode = map[Code]int{
	CodeUnauthenticated:     http.StatusUnauthorized,
	CodeUnauthorized:        http.StatusForbidden,
	CodeNotFound:            http.StatusNotFound,
	CodeInvalidState:        http.StatusConflict,
	CodeConflict:            http.StatusConflict,
	CodeNotConfigured:       http.StatusPreconditionFailed,
	CodeInsufficientBalance: http.StatusBadRequest,
	CodeTransferFailed:      http.StatusBadGateway,
	CodeValidation:          http.StatusBadRequest,
	CodeInternal:            http.StatusInternalServerError,
}

// Error is a coded error with an optional wrapped cause.
type Error struct {
	code    Code
	message string
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and public message to an underlying cause. The cause
// is kept for logs and errors.Is/As, never for the wire.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{code: code, message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Code() Code { return e.code }

// Message is the client-safe description.
func (e *Error) Message() string { return e.message }

// HTTPStatus returns the HTTP status for a code, defaulting to 500.
func HTTPStatus(code Code) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// CodeOf extracts the code from an error chain, or CodeInternal when the
// error is not coded.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return CodeInternal
}

// HasCode reports whether the error chain carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
