// Package listener turns raw transport notifications into validated queue
// items. It decodes, validates and enqueues without ever blocking the
// receive loop: anything that cannot be enqueued immediately is dropped and
// counted.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"eventpipe/internal/metrics"
	"eventpipe/internal/queue"
	"eventpipe/internal/transport"
	"eventpipe/internal/types"
)

// Source drives notification delivery; *transport.Session satisfies it.
type Source interface {
	Run(ctx context.Context, h transport.Handler) error
}

// Config names the channels the listener routes on.
type Config struct {
	EventChannel string
	// AlertChannel is optional. Payloads on it bypass the event queue and go
	// straight to the alert queue after alert validation.
	AlertChannel string
}

// Stats are the listener's lifetime counters.
type Stats struct {
	Received       uint64 `json:"received"`
	Enqueued       uint64 `json:"enqueued"`
	DecodeFailures uint64 `json:"decode_failures"`
	Invalid        uint64 `json:"invalid"`
	Dropped        uint64 `json:"dropped"`
	Rejected       uint64 `json:"rejected"`
}

// Listener validates notifications and hands them to the event or alert queue.
type Listener struct {
	cfg       Config
	source    Source
	events    *queue.Queue[*types.Event]
	alerts    *queue.Queue[*types.Alert]
	validator *types.PayloadValidator
	recorder  metrics.Recorder
	logger    types.Logger
	now       func() time.Time

	stopped atomic.Bool

	received       atomic.Uint64
	enqueued       atomic.Uint64
	decodeFailures atomic.Uint64
	invalid        atomic.Uint64
	dropped        atomic.Uint64
	rejected       atomic.Uint64
}

// Option customizes a Listener.
type Option func(*Listener)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(l *Listener) { l.recorder = metrics.OrNop(r) }
}

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the clock used to stamp received_at.
func WithClock(now func() time.Time) Option {
	return func(l *Listener) { l.now = now }
}

// New creates a Listener. alerts may be nil when no alert channel is
// configured.
func New(cfg Config, source Source, events *queue.Queue[*types.Event], alerts *queue.Queue[*types.Alert], opts ...Option) *Listener {
	l := &Listener{
		cfg:       cfg,
		source:    source,
		events:    events,
		alerts:    alerts,
		validator: types.NewPayloadValidator(),
		recorder:  metrics.Nop{},
		logger:    types.NopLogger{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "listener")
	return l
}

// Run delivers notifications from the source until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	return l.source.Run(ctx, l.OnNotification)
}

// Stop makes the listener discard every later notification. It does not
// interrupt Run; the caller cancels Run's context for that.
func (l *Listener) Stop() {
	l.stopped.Store(true)
}

// OnNotification handles one raw payload. It never blocks on a full queue
// and never returns an error: every failure is logged and counted.
func (l *Listener) OnNotification(_ context.Context, n transport.Notification) {
	l.received.Add(1)
	l.recorder.NotificationReceived(n.Channel)

	isAlert := l.cfg.AlertChannel != "" && n.Channel == l.cfg.AlertChannel
	queueName := l.events.Name()
	if isAlert && l.alerts != nil {
		queueName = l.alerts.Name()
	}

	if l.stopped.Load() {
		l.rejected.Add(1)
		l.recorder.Dropped(queueName, types.DropReasonStopped)
		return
	}

	if isAlert {
		l.handleAlert(n, queueName)
		return
	}
	l.handleEvent(n, queueName)
}

func (l *Listener) handleEvent(n transport.Notification, queueName string) {
	ev, ok := l.decode(n, queueName)
	if !ok {
		return
	}

	if err := l.validator.Event(ev); err != nil {
		l.discardInvalid(n, queueName, ev.ID, err, types.DropReasonInvalid)
		return
	}

	l.enqueue(queueName, ev.ID, func() error { return l.events.TryEnqueue(ev) })
}

func (l *Listener) handleAlert(n transport.Notification, queueName string) {
	if l.alerts == nil {
		l.rejected.Add(1)
		l.recorder.Dropped(queueName, types.DropReasonStopped)
		l.logger.Warn("alert channel notification without an alert queue", "channel", n.Channel)
		return
	}

	ev, ok := l.decode(n, queueName)
	if !ok {
		return
	}

	alert := &types.Alert{
		ID:        ev.ID,
		Severity:  ev.Severity,
		Resource:  ev.Resource,
		Payload:   ev.Raw,
		DerivedAt: l.now().UTC(),
	}
	if err := l.validator.Alert(alert); err != nil {
		reason := types.DropReasonInvalid
		if ev.Severity.Valid() && !ev.Severity.Critical() {
			reason = types.DropReasonNotCritical
			err = types.NewAppError(types.ErrCodeValidationNotCritical, "severity "+string(ev.Severity)+" is not critical", err)
		}
		l.discardInvalid(n, queueName, ev.ID, err, reason)
		return
	}

	l.enqueue(queueName, alert.ID, func() error { return l.alerts.TryEnqueue(alert) })
}

// decode parses the payload and fills in receive-side defaults.
func (l *Listener) decode(n transport.Notification, queueName string) (*types.Event, bool) {
	var ev types.Event
	if err := json.Unmarshal(n.Payload, &ev); err != nil {
		l.decodeFailures.Add(1)
		l.recorder.Dropped(queueName, types.DropReasonDecode)
		l.logger.Warn("discarding undecodable notification",
			"channel", n.Channel,
			"reason", types.DropReasonDecode,
			"bytes", len(n.Payload),
			"error", types.NewAppError(types.ErrCodeValidationDecode, "payload is not a JSON object", err).Error(),
		)
		return nil, false
	}

	ev.Raw = json.RawMessage(n.Payload)
	if ev.ReceivedAt == 0 {
		ev.ReceivedAt = l.now().UnixMilli()
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = ev.ReceivedAt
	}
	return &ev, true
}

func (l *Listener) discardInvalid(n transport.Notification, queueName, id string, err error, reason string) {
	l.invalid.Add(1)
	l.recorder.Dropped(queueName, reason)
	l.logger.Warn("discarding invalid notification",
		"channel", n.Channel,
		"event_id", id,
		"reason", reason,
		"code", string(types.CodeOf(err)),
		"error", err.Error(),
	)
}

func (l *Listener) enqueue(queueName, id string, try func() error) {
	err := try()
	switch {
	case err == nil:
		l.enqueued.Add(1)
		l.recorder.Enqueued(queueName)
	case queue.IsFull(err):
		l.dropped.Add(1)
		l.recorder.Dropped(queueName, types.DropReasonQueueFull)
		l.logger.Warn("queue full, dropping item",
			"queue", queueName,
			"event_id", id,
			"reason", types.DropReasonQueueFull,
		)
	case errors.Is(err, queue.ErrClosed):
		l.rejected.Add(1)
		l.recorder.Dropped(queueName, types.DropReasonStopped)
	default:
		l.rejected.Add(1)
		l.logger.Error("unexpected enqueue failure", "queue", queueName, "event_id", id, "error", err)
	}
}

// Stats returns the lifetime counters.
func (l *Listener) Stats() Stats {
	return Stats{
		Received:       l.received.Load(),
		Enqueued:       l.enqueued.Load(),
		DecodeFailures: l.decodeFailures.Load(),
		Invalid:        l.invalid.Load(),
		Dropped:        l.dropped.Load(),
		Rejected:       l.rejected.Load(),
	}
}
