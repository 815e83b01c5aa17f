package core

import (
	"context"
	"encoding/json"
)

// Event is a server-initiated message with no request attached.
type Event struct {
	Type string
	Data json.RawMessage
}

// SignalChannel abstracts the bidirectional connection to the SFU.
// Owned by the session; the session must Close() it.
type SignalChannel interface {
	// Request sends an event and blocks until its acknowledgement, a
	// timeout, ctx cancellation, or channel closure. Concurrent requests
	// are correlated by token, not ordering.
	Request(ctx context.Context, event string, payload any) (json.RawMessage, error)
	// Notify sends a fire-and-forget event.
	Notify(event string, payload any) error
	// Events yields pushes in channel delivery order. Closed when the
	// connection is gone.
	Events() <-chan Event
	Close()
}
