// Package dispatcherr defines the typed error kinds the dispatcher and its
// collaborators raise, modeled after the small error-code package a
// protocol client normally keeps beside it (the teacher imports one,
// "github.com/twmb/franz-go/pkg/kerr", that is not itself part of the
// retrieved pack — ErrorForCode/UnsupportedSaslMechanism in broker.go are
// its only traces — so this package reimplements the same shape for our
// five kinds instead of guessing at kerr's own API).
package dispatcherr

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a dispatcher error for the retry/abort/terminate policy
// described alongside the dispatch algorithm.
type Kind uint8

const (
	// InvalidArgument: selector range conflict, unknown key-shared mode.
	// Aborts the operation and surfaces to the caller.
	InvalidArgument Kind = iota
	// NotReady: no mark-delete position is available yet. Recovered by
	// retrying the next read cycle.
	NotReady
	// Transport: a consumer send failed. Recovered by retrying the next
	// read cycle.
	Transport
	// CursorClosed terminates the dispatcher cleanly.
	CursorClosed
	// InvariantViolation is a programming error in the range-set or
	// dispatcher bookkeeping. It terminates the dispatcher.
	InvariantViolation
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case NotReady:
		return "not_ready"
	case Transport:
		return "transport"
	case CursorClosed:
		return "cursor_closed"
	case InvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

// Error is a Kind-tagged error carrying the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a plain Error of the given kind. It does not attach a stack
// trace: InvalidArgument, NotReady, Transport and CursorClosed are expected,
// recoverable conditions, not bugs.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Invariant builds an InvariantViolation error with a stack trace attached
// via github.com/pkg/errors, since this kind is always a programming error
// that terminates the dispatcher and an operator will want to know where it
// originated.
func Invariant(op string, err error) *Error {
	return &Error{Kind: InvariantViolation, Op: op, Err: errors.WithStack(err)}
}

// Is reports whether err is a *Error of the given kind, unwrapping as
// needed.
func Is(err error, kind Kind) bool {
	var de *Error
	if !stderrors.As(err, &de) {
		return false
	}
	return de.Kind == kind
}
