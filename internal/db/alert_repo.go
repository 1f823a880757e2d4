package db

import (
	"context"

	"eventpipe/internal/types"
)

// AlertRepository writes rows to the alerts table
// (id, severity, resource, payload JSONB, derived_at).
type AlertRepository struct {
	db DBTX
}

// NewAlertRepository creates a new AlertRepository backed by the given
// database connection (pool or transaction).
func NewAlertRepository(db DBTX) *AlertRepository {
	return &AlertRepository{db: db}
}

// Insert writes a single alert. A zero DerivedAt falls back to NOW().
func (r *AlertRepository) Insert(ctx context.Context, a *types.Alert) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO alerts (id, severity, resource, payload, derived_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))`,
		a.ID,
		string(a.Severity),
		a.Resource,
		nilIfEmptyJSON(a.Payload),
		nilIfZeroTime(a.DerivedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert alert", err).
			WithDetails(map[string]any{"event_id": a.ID})
	}
	return nil
}
