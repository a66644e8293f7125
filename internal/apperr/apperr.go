// Package apperr defines the error kinds surfaced by the session engine.
//
// Every failure that reaches a caller carries exactly one Kind. Lower layers
// construct an *Error once and higher layers wrap it with fmt.Errorf("...: %w"),
// so KindOf keeps working through the chain.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	ConnectError Kind = "connect_error"
	AuthError    Kind = "auth_error"
	NotFound     Kind = "not_found"
	Closed       Kind = "closed"
	LockTimeout  Kind = "lock_timeout"
	IoError      Kind = "io_error"
	Cancelled    Kind = "cancelled"
	Invalid      Kind = "invalid"
)

// Error implements error for Kind so callers can write errors.Is(err, apperr.NotFound).
func (k Kind) Error() string { return string(k) }

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return e.Op + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return e.Op + ": " + string(e.Kind)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is this error's Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New returns an error of the given kind with a formatted message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or IoError for
// unclassified failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return IoError
}
