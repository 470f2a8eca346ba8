package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error for HTTP mapping at the boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindSystemProtected
	KindUnauthenticated
	KindUnauthorized
)

// Machine-readable error codes returned in the error envelope.
const (
	CodeInternal     = "INTERNAL_ERROR"
	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeSystemRole   = "SYSTEM_ROLE_PROTECTED"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeInvalidLogin = "INVALID_CREDENTIALS"
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeTokenInvalid = "TOKEN_INVALID"
	CodeRateLimited  = "RATE_LIMIT_EXCEEDED"
)

// Error is a typed application error. Services return these; only the HTTP
// layer translates them to status codes and the response envelope.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details interface{}
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return newError(KindNotFound, CodeNotFound, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newError(KindConflict, CodeConflict, format, args...)
}

func Validation(format string, args ...interface{}) *Error {
	return newError(KindValidation, CodeValidation, format, args...)
}

func SystemProtected(format string, args ...interface{}) *Error {
	return newError(KindSystemProtected, CodeSystemRole, format, args...)
}

// Unauthenticated builds a 401-family error. The message is carried
// verbatim, so callers can pass sentinel error text directly.
func Unauthenticated(code, message string) *Error {
	return &Error{Kind: KindUnauthenticated, Code: code, Message: message}
}

func Unauthorized(format string, args ...interface{}) *Error {
	return newError(KindUnauthorized, CodeForbidden, format, args...)
}

func Internal(format string, args ...interface{}) *Error {
	return newError(KindInternal, CodeInternal, format, args...)
}

// WithDetails attaches structured detail (e.g. the unmet permission names).
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// From extracts an *Error from err, wrapping unknown errors as internal.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal server error"}
}

// KindOf reports the Kind of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	return From(err).Kind
}

// HTTPStatus maps an error kind to its HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindSystemProtected, KindUnauthorized:
		return http.StatusForbidden
	case KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
