package db

import (
	"context"
	"fmt"

	"eventpipe/internal/types"
)

// Store persists events and alerts, one atomic transaction per item. Each
// call runs on its own pooled connection, so concurrent workers never share
// a connection and a slow write in one worker does not block another.
type Store struct {
	pool TxBeginner
}

// NewStore creates a Store on top of a transaction source, normally a
// *pgxpool.Pool.
func NewStore(pool TxBeginner) *Store {
	return &Store{pool: pool}
}

// InTx runs fn inside a transaction and commits it when fn returns nil.
// Any error rolls the transaction back.
func (s *Store) InTx(ctx context.Context, fn func(q DBTX) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit transaction", err)
	}
	return nil
}

// SaveEvent writes ev in its own transaction.
func (s *Store) SaveEvent(ctx context.Context, ev *types.Event) error {
	if err := s.InTx(ctx, func(q DBTX) error {
		return NewEventRepository(q).Insert(ctx, ev)
	}); err != nil {
		return fmt.Errorf("saving event %s: %w", ev.ID, err)
	}
	return nil
}

// SaveAlert writes a in its own transaction.
func (s *Store) SaveAlert(ctx context.Context, a *types.Alert) error {
	if err := s.InTx(ctx, func(q DBTX) error {
		return NewAlertRepository(q).Insert(ctx, a)
	}); err != nil {
		return fmt.Errorf("saving alert %s: %w", a.ID, err)
	}
	return nil
}
