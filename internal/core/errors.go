package core

import (
	"errors"
	"fmt"
)

// ErrKind classifies a failure by the component boundary it crossed.
type ErrKind uint8

const (
	ErrSignaling ErrKind = iota + 1
	ErrNegotiation
	ErrTransport
	ErrProduce
	ErrConsume
)

func (k ErrKind) String() string {
	switch k {
	case ErrSignaling:
		return "signaling"
	case ErrNegotiation:
		return "negotiation"
	case ErrTransport:
		return "transport"
	case ErrProduce:
		return "produce"
	case ErrConsume:
		return "consume"
	}
	return "unknown"
}

// Error wraps a cause with its kind and the operation that failed.
type Error struct {
	Kind ErrKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap classifies err at a component boundary. The outermost kind wins:
// a timeout inside a transport handshake is a TransportError to the
// caller, with the signaling cause still reachable through Unwrap.
func Wrap(kind ErrKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Errorf(kind ErrKind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the classification of err, or zero if unclassified.
func KindOf(err error) ErrKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}

var (
	// ErrTimeout marks a request that did not get its acknowledgement in time.
	ErrTimeout = errors.New("request timed out")
	// ErrChannelClosed marks requests resolved as cancelled because the
	// signaling channel went away underneath them.
	ErrChannelClosed = errors.New("signal channel closed")
)
