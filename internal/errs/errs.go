// Package errs defines the error taxonomy shared by every Chronicle
// surface. Services return these typed errors; HTTP handlers translate
// them to a stable {code, message} body and status code.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure class with a stable wire representation.
type Code string

const (
	CodeDuplicateIdentity  Code = "DuplicateIdentity"
	CodeInvalidCredentials Code = "InvalidCredentials"
	CodeAccountInactive    Code = "AccountInactive"
	CodeTokenExpired       Code = "TokenExpired"
	CodeTokenInvalid       Code = "TokenInvalid"
	CodeProviderAssertion  Code = "ProviderAssertionInvalid"
	CodeUnauthenticated    Code = "Unauthenticated"
	CodeUnauthorized       Code = "Unauthorized"
	CodeValidationFailed   Code = "ValidationFailed"
	CodeConflict           Code = "Conflict"
	CodeNotFound           Code = "NotFound"
	CodeRateLimited        Code = "RateLimited"
	CodeInternal           Code = "Internal"
)

// Error is a typed failure carrying a taxonomy code and a safe,
// client-facing message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is makes two *Error values match when their codes match, so sentinel
// comparisons like errors.Is(err, errs.TokenInvalid("")) work.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error that preserves the underlying cause for logs
// while exposing only code and message to clients.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// CodeOf extracts the taxonomy code from err, or CodeInternal when err
// is not a taxonomy error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns the client-safe message for err. Non-taxonomy errors
// map to a generic message so internals never leak.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// HTTPStatus maps a taxonomy code to its HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidationFailed:
		return http.StatusBadRequest
	case CodeInvalidCredentials, CodeTokenInvalid, CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeAccountInactive, CodeUnauthorized:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicateIdentity, CodeConflict:
		return http.StatusConflict
	case CodeTokenExpired:
		return http.StatusGone
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeProviderAssertion:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
