package errs

import (
	"errors"
	"net/http"
)

// Code is an application error code.
type Code string

const (
	InvalidArgument  Code = "invalid_argument"
	AlreadyExists    Code = "already_exists"
	Unauthenticated  Code = "unauthenticated"
	NotFound         Code = "not_found"
	Conflict         Code = "conflict"
	PermissionDenied Code = "permission_denied"
	Unavailable      Code = "unavailable"
	Internal         Code = "internal"
)

// InternalMessage is the only text a client ever sees for an untyped failure.
const InternalMessage = "Something went wrong"

// Error is a coded application error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// Internalf wraps a collaborator failure so that only InternalMessage reaches the client.
func Internalf(cause error) error {
	return Wrap(Internal, InternalMessage, cause)
}

// CodeOf returns the error code, defaulting to internal.
func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Code == "" {
			return Internal
		}
		return coded.Code
	}
	return Internal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// MessageOf returns a user-facing error message.
// If the error has no typed wrapper, returns InternalMessage to prevent
// leaking raw DB errors, file paths, or connection strings to API responses.
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return InternalMessage
}

// HTTPStatus maps error code to HTTP status.
// Conflict maps to 400 because clients of the notes API treat a repeated share
// as a bad request rather than a 409.
func HTTPStatus(code Code) int {
	switch code {
	case InvalidArgument, AlreadyExists, Conflict:
		return http.StatusBadRequest
	case Unauthenticated:
		return http.StatusUnauthorized
	case PermissionDenied:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
