package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain failure. Handlers translate codes into HTTP
// statuses; domain logic branches on codes instead of string matching.
type Code string

const (
	// CodeInvalidArgument marks a caller-supplied value the domain rejects
	// outright, such as a null identity passed to a privileged operation.
	CodeInvalidArgument Code = "invalid_argument"
	// CodeNotAuthorized marks a caller that is not permitted to perform an
	// owner-gated operation.
	CodeNotAuthorized Code = "not_authorized"
	// CodeUnauthorized marks a request with a missing or invalid credential.
	CodeUnauthorized Code = "unauthorized"
	// CodeAlreadyInitialized marks a replay of a one-time initialization.
	CodeAlreadyInitialized Code = "already_initialized"
	// CodeNotFound marks a missing entity (unknown proxy, unknown module).
	CodeNotFound Code = "not_found"
	// CodeConflict marks a state conflict (duplicate registration).
	CodeConflict Code = "conflict"
	// CodeInternal marks infrastructure failures surfaced to callers.
	CodeInternal Code = "internal"
)

// Error carries a code plus a human-readable message. It wraps an optional
// cause so errors.Is/As keep working through the domain layer.
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

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches another domain error by code and message, ignoring the cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New builds a coded domain error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that did not originate in the domain layer.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain code onto an HTTP status for the transport layer.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotAuthorized:
		return http.StatusForbidden
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeAlreadyInitialized, CodeConflict:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
