// Package apperr defines the error taxonomy shared by the repositories
// and the HTTP layer. Every repository failure is one of four kinds so
// handlers can map errors to status codes without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind int

const (
	// Validation marks malformed or out-of-range input.
	Validation Kind = iota + 1
	// NotFound marks a reference to an absent record.
	NotFound
	// Conflict marks a consistency violation (cross-case relationship,
	// stale version on a guarded update).
	Conflict
	// Provider marks a failed call to an external search provider.
	Provider
)

// Error is a kinded error. It wraps an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validationf returns a Validation error.
func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: Validation, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundf returns a NotFound error.
func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: NotFound, Msg: fmt.Sprintf(format, args...)}
}

// Conflictf returns a Conflict error.
func Conflictf(format string, args ...interface{}) *Error {
	return &Error{Kind: Conflict, Msg: fmt.Sprintf(format, args...)}
}

// Providerf returns a Provider error wrapping cause.
func Providerf(cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: Provider, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Is reports whether err is an *Error of kind k.
func Is(err error, k Kind) bool { return KindOf(err) == k }
