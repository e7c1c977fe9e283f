// Package apperr classifies service errors into the three kinds the API
// reports: not found, validation, and internal.
package apperr

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/agentcontrol/hub/internal/store"
)

// Kind is the category of an error as seen by API callers.
type Kind int

const (
	Internal Kind = iota
	NotFound
	Validation
)

// String returns the wire name used in error responses.
func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Validation:
		return "validation_error"
	default:
		return "internal_error"
	}
}

// Error is a classified error. Msg is safe to show callers; Err keeps the cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg != "" {
		return e.Msg + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validationf returns a Validation error with a formatted message.
func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: Validation, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundf returns a NotFound error with a formatted message.
func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: NotFound, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err as an internal failure while keeping it for logs.
func Wrap(err error, msg string) *Error {
	return &Error{Kind: Internal, Msg: msg, Err: err}
}

// KindOf classifies any error returned by a service or the store.
func KindOf(err error) Kind {
	if err == nil {
		return Internal
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	var nf *store.ErrNotFound
	if errors.As(err, &nf) {
		return NotFound
	}
	var conflict *store.ErrConflict
	if errors.As(err, &conflict) {
		return Validation
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return Validation
	}
	return Internal
}

// Message returns the caller-safe message for err. Internal errors never
// expose their cause.
func Message(err error) string {
	if KindOf(err) == Internal {
		return "internal server error"
	}
	var ae *Error
	if errors.As(err, &ae) && ae.Msg != "" {
		return ae.Msg
	}
	return err.Error()
}
