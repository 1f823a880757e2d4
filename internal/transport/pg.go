package transport

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"eventpipe/internal/types"
)

// PgDialer opens dedicated (non-pooled) Postgres connections for LISTEN.
// A pooled connection cannot be used because a LISTEN is bound to the
// session that issued it.
type PgDialer struct {
	ConnString string
}

// NewPgDialer returns a dialer for the given DSN.
func NewPgDialer(connString string) *PgDialer {
	return &PgDialer{ConnString: connString}
}

// Connect implements Dialer.
func (d *PgDialer) Connect(ctx context.Context) (Connection, error) {
	conn, err := pgx.Connect(ctx, d.ConnString)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeTransportConnect, "failed to connect to notification source", err)
	}
	return &pgConnection{conn: conn}, nil
}

type pgConnection struct {
	conn *pgx.Conn
}

func (c *pgConnection) Subscribe(ctx context.Context, channel string) error {
	sql := "LISTEN " + pgx.Identifier{channel}.Sanitize()
	if _, err := c.conn.Exec(ctx, sql); err != nil {
		return types.NewAppError(types.ErrCodeTransportSubscribe,
			fmt.Sprintf("failed to listen on %q", channel), err)
	}
	return nil
}

func (c *pgConnection) Receive(ctx context.Context) (Notification, error) {
	if c.conn.IsClosed() {
		return Notification{}, ErrClosed
	}
	n, err := c.conn.WaitForNotification(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Notification{}, ctx.Err()
		}
		return Notification{}, types.NewAppError(types.ErrCodeTransportReceive, "connection lost while waiting for notification", err)
	}
	return Notification{
		Channel: n.Channel,
		Payload: []byte(n.Payload),
		PID:     n.PID,
	}, nil
}

func (c *pgConnection) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}
