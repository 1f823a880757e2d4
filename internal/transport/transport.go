// Package transport defines the long-lived notification connection the
// listener reads from, a Postgres LISTEN/NOTIFY implementation of it, and a
// Session that keeps the connection alive across failures.
//
// Delivery is at-most-once: notifications published while the session is
// between connections are not replayed.
package transport

import (
	"context"

	"eventpipe/internal/types"
)

// ErrClosed is returned by a Connection or Session after Close.
var ErrClosed = types.NewAppError(types.ErrCodeTransportReceive, "transport is closed", nil)

// Notification is one message pushed by the notification source.
type Notification struct {
	Channel string
	Payload []byte
	PID     uint32
}

// Connection is a single subscription-capable link to the notification
// source. A Connection is used by one goroutine at a time.
type Connection interface {
	// Subscribe starts delivery of notifications published on channel.
	Subscribe(ctx context.Context, channel string) error
	// Receive blocks until a notification arrives, the connection breaks,
	// or ctx is done.
	Receive(ctx context.Context) (Notification, error)
	Close(ctx context.Context) error
}

// Dialer opens new Connections.
type Dialer interface {
	Connect(ctx context.Context) (Connection, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Connection, error)

// Connect calls f(ctx).
func (f DialerFunc) Connect(ctx context.Context) (Connection, error) { return f(ctx) }
