// Package fault distinguishes session-level failures from script-level
// failures. The pool retries only session faults; script faults surface to
// the caller as failed outcomes.
package fault

import (
	"errors"
	"fmt"
)

// Kind tags the two failure classes.
type Kind int

const (
	// KindSession means the underlying browser session is unusable.
	KindSession Kind = iota
	// KindScript means the script itself failed or timed out.
	KindScript
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindSession:
		return "session"
	case KindScript:
		return "script"
	default:
		return "unknown"
	}
}

// Error is a classified execution failure.
type Error struct {
	Kind  Kind
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s fault: %v", e.Kind, e.Cause)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Session wraps err as a session fault.
func Session(err error) *Error {
	return &Error{Kind: KindSession, Cause: err}
}

// Script wraps err as a script fault.
func Script(err error) *Error {
	return &Error{Kind: KindScript, Cause: err}
}

// IsSession reports whether err is classified as a session fault.
func IsSession(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == KindSession
}

// IsScript reports whether err is classified as a script fault.
func IsScript(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == KindScript
}
