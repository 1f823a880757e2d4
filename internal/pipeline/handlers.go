package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"eventpipe/internal/metrics"
	"eventpipe/internal/queue"
	"eventpipe/internal/types"
)

// EventStore persists one event per transaction.
type EventStore interface {
	SaveEvent(ctx context.Context, ev *types.Event) error
}

// AlertStore persists one alert per transaction.
type AlertStore interface {
	SaveAlert(ctx context.Context, a *types.Alert) error
}

// Store is the durable store used by both pools; *db.Store satisfies it.
type Store interface {
	EventStore
	AlertStore
}

// Forwarder pushes a persisted event to real-time subscribers. It is
// best-effort: errors are logged and counted, never retried.
type Forwarder interface {
	Forward(ctx context.Context, ev *types.Event) error
}

// DeadLetter parks items whose persistence failed so they can be inspected
// or replayed out of band. Nothing is retried automatically.
type DeadLetter interface {
	Park(ctx context.Context, kind, id string, payload []byte, cause error) error
}

// HandlerStats are the worker-side counters.
type HandlerStats struct {
	EventsPersisted      uint64 `json:"events_persisted"`
	EventPersistFailures uint64 `json:"event_persist_failures"`
	AlertsDerived        uint64 `json:"alerts_derived"`
	AlertsDropped        uint64 `json:"alerts_dropped"`
	AlertsPersisted      uint64 `json:"alerts_persisted"`
	AlertPersistFailures uint64 `json:"alert_persist_failures"`
	ForwardFailures      uint64 `json:"forward_failures"`
	DeadLettered         uint64 `json:"dead_lettered"`
}

type handlerCounters struct {
	eventsPersisted      atomic.Uint64
	eventPersistFailures atomic.Uint64
	alertsDerived        atomic.Uint64
	alertsDropped        atomic.Uint64
	alertsPersisted      atomic.Uint64
	alertPersistFailures atomic.Uint64
	forwardFailures      atomic.Uint64
	deadLettered         atomic.Uint64
}

func (c *handlerCounters) snapshot() HandlerStats {
	return HandlerStats{
		EventsPersisted:      c.eventsPersisted.Load(),
		EventPersistFailures: c.eventPersistFailures.Load(),
		AlertsDerived:        c.alertsDerived.Load(),
		AlertsDropped:        c.alertsDropped.Load(),
		AlertsPersisted:      c.alertsPersisted.Load(),
		AlertPersistFailures: c.alertPersistFailures.Load(),
		ForwardFailures:      c.forwardFailures.Load(),
		DeadLettered:         c.deadLettered.Load(),
	}
}

// handlerDeps is shared by EventHandler and AlertHandler.
type handlerDeps struct {
	deadLetter     DeadLetter
	recorder       metrics.Recorder
	logger         types.Logger
	now            func() time.Time
	persistTimeout time.Duration
	counters       *handlerCounters
}

// park hands a failed item to the dead-letter sink, if one is configured.
func (d *handlerDeps) park(ctx context.Context, kind, id string, payload []byte, cause error) {
	if d.deadLetter == nil {
		return
	}
	parkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.persistTimeout)
	defer cancel()
	if err := d.deadLetter.Park(parkCtx, kind, id, payload, cause); err != nil {
		d.logger.Error("failed to dead-letter item",
			"kind", kind,
			"event_id", id,
			"error", err,
		)
		return
	}
	d.counters.deadLettered.Add(1)
}

// EventHandler is the event pool's per-item work: mark processed, persist,
// triage, forward.
type EventHandler struct {
	handlerDeps
	store               EventStore
	alerts              *queue.Queue[*types.Alert]
	alertEnqueueTimeout time.Duration
	forwarder           Forwarder
}

// Handle persists ev in its own transaction. On success a critical event
// yields exactly one alert on the alert queue, then ev is forwarded. On
// failure ev is logged, counted and dropped.
//
// Alert enqueue waits at most alertEnqueueTimeout. If the alert queue stays
// full for that long, or closes, the alert is dropped and counted while the
// event row stays committed: a persisted critical event can end up with no
// alert. Event throughput is kept over alert completeness; the drop shows in
// the alerts_dropped counter and the dropped_total{queue="alerts"} metric.
func (h *EventHandler) Handle(ctx context.Context, ev *types.Event) {
	log := h.logger.With("event_id", ev.ID)
	ev.Processed = true

	start := h.now()
	persistCtx, cancel := context.WithTimeout(ctx, h.persistTimeout)
	err := h.store.SaveEvent(persistCtx, ev)
	cancel()
	if err != nil {
		h.counters.eventPersistFailures.Add(1)
		h.recorder.PersistFailed(types.KindEvent)
		log.Error("failed to persist event, dropping",
			"severity", string(ev.Severity),
			"code", string(types.CodeOf(err)),
			"error", err,
		)
		h.park(ctx, types.KindEvent, ev.ID, eventPayload(ev), err)
		return
	}
	h.counters.eventsPersisted.Add(1)
	h.recorder.Persisted(types.KindEvent, h.now().Sub(start))

	if IsCritical(ev.Severity) {
		h.enqueueAlert(ctx, log, DeriveAlert(ev, h.now()))
	}

	if h.forwarder != nil {
		if err := h.forwarder.Forward(ctx, ev); err != nil {
			h.counters.forwardFailures.Add(1)
			h.recorder.ForwardFailed("fanout")
			log.Warn("failed to forward event", "error", err)
		}
	}
}

// enqueueAlert waits at most alertEnqueueTimeout for alert queue capacity so
// an alert burst cannot stall event persistence.
func (h *EventHandler) enqueueAlert(ctx context.Context, log types.Logger, a *types.Alert) {
	enqCtx, cancel := context.WithTimeout(ctx, h.alertEnqueueTimeout)
	defer cancel()

	err := h.alerts.Enqueue(enqCtx, a)
	if err == nil {
		h.counters.alertsDerived.Add(1)
		h.recorder.AlertDerived()
		h.recorder.Enqueued(h.alerts.Name())
		return
	}

	h.counters.alertsDropped.Add(1)
	reason := types.DropReasonQueueFull
	if errors.Is(err, queue.ErrClosed) {
		reason = types.DropReasonStopped
	}
	h.recorder.Dropped(h.alerts.Name(), reason)
	log.Warn("dropping derived alert",
		"queue", h.alerts.Name(),
		"reason", reason,
		"error", err,
	)
}

// AlertHandler is the alert pool's per-item work.
type AlertHandler struct {
	handlerDeps
	store AlertStore
}

// Handle persists a in its own transaction; failures are logged, counted
// and dropped.
func (h *AlertHandler) Handle(ctx context.Context, a *types.Alert) {
	start := h.now()
	persistCtx, cancel := context.WithTimeout(ctx, h.persistTimeout)
	err := h.store.SaveAlert(persistCtx, a)
	cancel()
	if err != nil {
		h.counters.alertPersistFailures.Add(1)
		h.recorder.PersistFailed(types.KindAlert)
		h.logger.Error("failed to persist alert, dropping",
			"event_id", a.ID,
			"severity", string(a.Severity),
			"code", string(types.CodeOf(err)),
			"error", err,
		)
		h.park(ctx, types.KindAlert, a.ID, a.Payload, err)
		return
	}
	h.counters.alertsPersisted.Add(1)
	h.recorder.Persisted(types.KindAlert, h.now().Sub(start))
}

func eventPayload(ev *types.Event) []byte {
	if len(ev.Raw) > 0 {
		return ev.Raw
	}
	b, _ := json.Marshal(ev)
	return b
}
