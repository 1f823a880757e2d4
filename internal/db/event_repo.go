package db

import (
	"context"
	"encoding/json"

	"eventpipe/internal/types"
)

// EventRepository writes rows to the events table.
//
// Columns: id, severity, type, stack, timestamp, received_at, resource,
// referrer, app_name, app_version, app_stage, tags (JSONB), endpoint_*,
// processed, payload (JSONB). Timestamps are stored as epoch milliseconds.
type EventRepository struct {
	db DBTX
}

// NewEventRepository creates a new EventRepository backed by the given
// database connection (pool or transaction).
func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

// Insert writes a single event. The event is not modified.
func (r *EventRepository) Insert(ctx context.Context, ev *types.Event) error {
	var tags []byte
	if len(ev.Tags) > 0 {
		b, err := json.Marshal(ev.Tags)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode event tags", err).
				WithDetails(map[string]any{"event_id": ev.ID})
		}
		tags = b
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO events
		 (id, severity, type, stack, timestamp, received_at, resource, referrer,
		  app_name, app_version, app_stage, tags,
		  endpoint_id, endpoint_language, endpoint_platform, endpoint_os,
		  endpoint_os_version, endpoint_runtime, endpoint_runtime_version,
		  endpoint_country, endpoint_user_agent, endpoint_device_type,
		  processed, payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		         $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		ev.ID,
		string(ev.Severity),
		nilIfEmpty(ev.Type),
		nilIfEmpty(ev.Stack),
		ev.Timestamp,
		ev.ReceivedAt,
		ev.Resource,
		nilIfEmpty(ev.Referrer),
		ev.AppName,
		nilIfEmpty(ev.AppVersion),
		nilIfEmpty(ev.AppStage),
		tags,
		nilIfEmpty(ev.Endpoint.ID),
		nilIfEmpty(ev.Language),
		nilIfEmpty(ev.Platform),
		nilIfEmpty(ev.OS),
		nilIfEmpty(ev.OSVersion),
		nilIfEmpty(ev.Runtime),
		nilIfEmpty(ev.RuntimeVersion),
		nilIfEmpty(ev.Country),
		nilIfEmpty(ev.UserAgent),
		nilIfEmpty(ev.DeviceType),
		ev.Processed,
		nilIfEmptyJSON(ev.Raw),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert event", err).
			WithDetails(map[string]any{"event_id": ev.ID})
	}
	return nil
}
