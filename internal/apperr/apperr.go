// Package apperr defines the error taxonomy surfaced to clients.
// Every error that can reach the HTTP boundary is a (message, status code)
// pair; the wrapped cause is kept for logging only and never rendered.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an application error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindForbidden
	KindValidationFailed
	KindAuth
	KindPersistence
	KindCrypto
)

var kindNames = map[Kind]string{
	KindUnknown:          "unknown",
	KindNotFound:         "not_found",
	KindForbidden:        "forbidden",
	KindValidationFailed: "validation_failed",
	KindAuth:             "auth",
	KindPersistence:      "persistence",
	KindCrypto:           "crypto",
}

func (k Kind) String() string {
	return kindNames[k]
}

// Error is an application error with a user-facing message and status code.
type Error struct {
	Kind    Kind
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err, &Error{Kind: KindNotFound})
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// WithCause returns a copy of e that wraps cause.
func (e *Error) WithCause(cause error) *Error {
	c := *e
	c.Err = cause
	return &c
}

func newError(kind Kind, code int, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Code: code, Err: cause}
}

func NotFound(message string) *Error {
	return newError(KindNotFound, http.StatusNotFound, message, nil)
}

// Forbidden reports an ownership violation. The API answers 401 here,
// not 403, to stay compatible with existing clients.
func Forbidden(message string) *Error {
	return newError(KindForbidden, http.StatusUnauthorized, message, nil)
}

func ValidationFailed(message string) *Error {
	return newError(KindValidationFailed, http.StatusUnprocessableEntity, message, nil)
}

func Auth(message string) *Error {
	return newError(KindAuth, http.StatusUnauthorized, message, nil)
}

func Persistence(message string, cause error) *Error {
	return newError(KindPersistence, http.StatusInternalServerError, message, cause)
}

func Crypto(message string, cause error) *Error {
	return newError(KindCrypto, http.StatusInternalServerError, message, cause)
}

// UnknownMessage is rendered for errors outside the taxonomy.
const UnknownMessage = "An unknown error occurred!"

// From extracts the application error from err. Errors outside the taxonomy
// become an unknown 500 wrapping the original error.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return newError(KindUnknown, http.StatusInternalServerError, UnknownMessage, err)
}

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}
