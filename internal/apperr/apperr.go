// Package apperr defines the error kinds surfaced by the classifier.
//
// Every failure path returns an *Error carrying one of four kinds so callers
// can tell a bad argument from a missing image or a failed write without
// parsing messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a failure.
type Kind int

const (
	KindUnknown    Kind = iota
	KindValidation      // bad caller input: empty name, empty samples, bad config value
	KindTraining        // registry cannot be turned into a model
	KindState           // operation requested before its inputs exist
	KindIO              // persistence, decode or export failure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTraining:
		return "training"
	case KindState:
		return "state"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. An *Error matches the sentinel of its kind.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrTraining   = &Error{Kind: KindTraining}
	ErrState      = &Error{Kind: KindState}
	ErrIO         = &Error{Kind: KindIO}
)

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "registry.add"
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s error: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a kind sentinel matching e.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Validation returns a validation error.
func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Training returns a training error.
func Training(op, format string, args ...any) error {
	return &Error{Kind: KindTraining, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// State returns a state error.
func State(op, format string, args ...any) error {
	return &Error{Kind: KindState, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IO wraps err as an I/O error.
func IO(op string, err error, format string, args ...any) error {
	return &Error{Kind: KindIO, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
