// Package faults defines the error taxonomy shared by the service and HTTP
// layers. Every user-triggerable failure is classified by a Kind so handlers
// can map it to a status code without string matching.
package faults

import (
	"errors"
	"fmt"
)

// Kind classifies an error for status mapping.
type Kind string

const (
	// KindDecode indicates an unreadable or corrupt source recording.
	KindDecode Kind = "decode"
	// KindValidation indicates a rejected request (bad split point,
	// non-adjacent merge targets, out-of-range parameters).
	KindValidation Kind = "validation"
	// KindConflict indicates a duplicate upload or a concurrent operation
	// on the same session.
	KindConflict Kind = "conflict"
	// KindStorage indicates an artifact read/write failure.
	KindStorage Kind = "storage"
	// KindNotFound indicates a missing session, track, song, or job.
	KindNotFound Kind = "not_found"
)

// Error carries a kind alongside a human-readable message and an optional
// wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error without losing the chain.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err if it carries one, or "" otherwise.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err is classified with the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
