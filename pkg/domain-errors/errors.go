// Package derrors defines the domain error taxonomy shared by services and
// both protocol adapters. Stores report infrastructure facts through
// pkg/platform/sentinel; services translate those facts into one of the codes
// below, and adapters translate codes into wire status.
package derrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of expected failure.
type Code string

const (
	// CodeNotFound covers both a genuinely absent entity and an entity owned
	// by a different account. Callers must not be able to tell these apart.
	CodeNotFound Code = "not_found"
	// CodeAlreadyExists reports a uniqueness violation (e.g. duplicate email).
	CodeAlreadyExists Code = "already_exists"
	// CodeUnauthenticated reports a missing, malformed, expired, or otherwise
	// unverifiable credential, including a credential naming an unknown user.
	CodeUnauthenticated Code = "unauthenticated"
	// CodeInvalidCredential reports a credential that verified but carries no
	// usable subject claim. Kept distinct from CodeUnauthenticated to aid
	// diagnostics; both map to 401.
	CodeInvalidCredential Code = "invalid_credential"
	// CodeInvalidArgument reports malformed input caught before storage.
	CodeInvalidArgument Code = "invalid_argument"
	// CodeInternal is everything else. The underlying cause is logged
	// server-side and never echoed to the caller.
	CodeInternal Code = "internal"
)

// Error carries a taxonomy code, a caller-safe message, and an optional cause.
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

// Is matches errors by code and message, so errors.Is works against a freshly
// constructed target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code && t.Message == e.Message
}

// New builds a domain error with a caller-safe message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a taxonomy code and message to an underlying cause.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that did not pass through the taxonomy.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a taxonomy code to its HTTP status. Ownership violations
// share CodeNotFound with genuine absence, so no extra mapping exists for them.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists, CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeUnauthenticated, CodeInvalidCredential:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
