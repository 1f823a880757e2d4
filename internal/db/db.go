// Package db provides the PostgreSQL persistence used by the worker pools.
// Repositories accept a DBTX interface that is satisfied by both
// *pgxpool.Pool and pgx.Tx; the Store wraps every write in its own
// transaction on its own pooled connection.
package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept this so the same code works inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner starts transactions. *pgxpool.Pool satisfies it; each Begin
// acquires a dedicated connection that is released on Commit or Rollback.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nilIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nilIfEmptyJSON(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
