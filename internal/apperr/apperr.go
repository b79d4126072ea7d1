// internal/apperr/apperr.go

// Package apperr defines the failure taxonomy shared by every service.
//
// Services return plain Go errors. Whatever leaves a service boundary is an
// *Error carrying a Kind, so callers can turn any failure into a definite
// outcome plus a human-readable reason without inspecting driver errors.
package apperr

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by every "no such record" sentinel, so callers can
// tell a missing record from other validation failures.
var ErrNotFound = errors.New("not found")

// Kind classifies a failure.
type Kind int

const (
	// Unexpected is any failure not covered by another kind.
	Unexpected Kind = iota
	// ConnectionUnavailable means the store could not be reached.
	ConnectionUnavailable
	// Validation means a precondition was violated: not found, not available,
	// no active loan, malformed input.
	Validation
	// Integrity means a store constraint or a data invariant rejected the work.
	Integrity
)

func (k Kind) String() string {
	switch k {
	case ConnectionUnavailable:
		return "connection_unavailable"
	case Validation:
		return "validation"
	case Integrity:
		return "integrity"
	default:
		return "unexpected"
	}
}

// Error is a classified failure of operation Op.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with kind and op. A nil err yields nil. An err that is already
// classified keeps its kind.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validationf builds a validation failure from a format string.
func Validationf(op, format string, args ...any) error {
	return &Error{Kind: Validation, Op: op, Err: fmt.Errorf(format, args...)}
}

// Integrityf builds an integrity violation from a format string.
func Integrityf(op, format string, args ...any) error {
	return &Error{Kind: Integrity, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the kind of err. Unclassified errors are Unexpected.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Unexpected
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Reason returns the message shown to an operator. The op prefix is dropped.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Err.Error()
	}
	return err.Error()
}

// Outcome turns a service result into the success flag and reason pair the
// presentation layer shows.
func Outcome(err error) (bool, string) {
	if err == nil {
		return true, ""
	}
	return false, Reason(err)
}
