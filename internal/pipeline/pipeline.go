// Package pipeline wires the listener, the two bounded queues and their
// worker pools into a single lifecycle:
//
//	CREATED -> STARTING -> RUNNING -> STOPPING -> STOPPED
//
// Start opens the transport before any goroutine is spawned, then starts the
// event pool, the alert pool and finally the listener. Stop stops intake,
// drains the event queue and then the alert queue within a grace period,
// cancels whatever is still running, and closes the transport.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"eventpipe/internal/listener"
	"eventpipe/internal/metrics"
	"eventpipe/internal/queue"
	"eventpipe/internal/transport"
	"eventpipe/internal/types"
	"eventpipe/internal/worker"
)

// State is a lifecycle state.
type State int32

const (
	StateCreated State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	// ErrAlreadyStarted is returned by Start on anything but a new pipeline.
	ErrAlreadyStarted = types.NewAppError(types.ErrCodeLifecycleInvalidState, "pipeline already started", nil)
	// ErrNotRunning is returned by operations that need a running pipeline.
	ErrNotRunning = types.NewAppError(types.ErrCodeLifecycleInvalidState, "pipeline is not running", nil)
	// ErrShutdownTimeout is returned by Stop when the grace period expired
	// and workers were cancelled.
	ErrShutdownTimeout = types.NewAppError(types.ErrCodeLifecycleShutdownTimeout, "shutdown grace period expired", nil)
)

// Config tunes the pipeline.
type Config struct {
	EventChannel string
	AlertChannel string

	EventQueueCapacity int
	AlertQueueCapacity int
	EventWorkers       int
	AlertWorkers       int

	PollInterval        time.Duration
	AlertEnqueueTimeout time.Duration
	PersistTimeout      time.Duration
	GracePeriod         time.Duration

	ReconnectBackoff   time.Duration
	ConnectMaxAttempts int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		EventChannel:        "events_channel",
		EventQueueCapacity:  1000,
		AlertQueueCapacity:  500,
		EventWorkers:        4,
		AlertWorkers:        2,
		PollInterval:        time.Second,
		AlertEnqueueTimeout: time.Second,
		PersistTimeout:      5 * time.Second,
		GracePeriod:         15 * time.Second,
		ReconnectBackoff:    2 * time.Second,
	}
}

// Deps are the pipeline's collaborators. Dialer and Store are required.
type Deps struct {
	Dialer     transport.Dialer
	Store      Store
	Forwarder  Forwarder
	DeadLetter DeadLetter
	Recorder   metrics.Recorder
	Logger     types.Logger
	Clock      func() time.Time
}

// TransportStats describes the notification connection.
type TransportStats struct {
	Connected  bool   `json:"connected"`
	Reconnects uint64 `json:"reconnects"`
}

// Snapshot is the pipeline's observable state.
type Snapshot struct {
	RunID      string         `json:"run_id"`
	State      string         `json:"state"`
	StartedAt  time.Time      `json:"started_at,omitempty"`
	Transport  TransportStats `json:"transport"`
	Listener   listener.Stats `json:"listener"`
	EventQueue queue.Stats    `json:"event_queue"`
	AlertQueue queue.Stats    `json:"alert_queue"`
	EventPool  worker.Stats   `json:"event_pool"`
	AlertPool  worker.Stats   `json:"alert_pool"`
	Handlers   HandlerStats   `json:"handlers"`
}

// Pipeline is the lifecycle controller.
type Pipeline struct {
	cfg      Config
	runID    string
	logger   types.Logger
	recorder metrics.Recorder
	now      func() time.Time

	session   *transport.Session
	events    *queue.Queue[*types.Event]
	alerts    *queue.Queue[*types.Alert]
	listener  *listener.Listener
	eventPool *worker.Pool[*types.Event]
	alertPool *worker.Pool[*types.Alert]
	counters  *handlerCounters

	state     atomic.Int32
	startedAt atomic.Int64

	// Set in Start.
	listenCancel context.CancelFunc
	listenDone   chan struct{}
	workCancel   context.CancelFunc
	sampleCancel context.CancelFunc
	group        *errgroup.Group

	done chan error
}

// New builds a pipeline in the CREATED state. Queues, pools and the
// listener are allocated here; nothing runs until Start.
func New(cfg Config, deps Deps) *Pipeline {
	def := DefaultConfig()
	if cfg.EventChannel == "" {
		cfg.EventChannel = def.EventChannel
	}
	if cfg.EventQueueCapacity <= 0 {
		cfg.EventQueueCapacity = def.EventQueueCapacity
	}
	if cfg.AlertQueueCapacity <= 0 {
		cfg.AlertQueueCapacity = def.AlertQueueCapacity
	}
	if cfg.EventWorkers <= 0 {
		cfg.EventWorkers = def.EventWorkers
	}
	if cfg.AlertWorkers <= 0 {
		cfg.AlertWorkers = def.AlertWorkers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.AlertEnqueueTimeout <= 0 {
		cfg.AlertEnqueueTimeout = def.AlertEnqueueTimeout
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = def.PersistTimeout
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = def.GracePeriod
	}

	runID := uuid.NewString()
	logger := deps.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	logger = logger.With("run_id", runID)
	recorder := metrics.OrNop(deps.Recorder)
	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	p := &Pipeline{
		cfg:      cfg,
		runID:    runID,
		logger:   logger.With("component", "pipeline"),
		recorder: recorder,
		now:      now,
		events:   queue.New[*types.Event]("events", cfg.EventQueueCapacity),
		alerts:   queue.New[*types.Alert]("alerts", cfg.AlertQueueCapacity),
		counters: &handlerCounters{},
		done:     make(chan error, 1),
	}

	channels := []string{cfg.EventChannel}
	if cfg.AlertChannel != "" && cfg.AlertChannel != cfg.EventChannel {
		channels = append(channels, cfg.AlertChannel)
	}
	p.session = transport.NewSession(deps.Dialer, transport.SessionConfig{
		Channels:    channels,
		Backoff:     cfg.ReconnectBackoff,
		MaxAttempts: cfg.ConnectMaxAttempts,
		OnReconnect: recorder.Reconnected,
		Logger:      logger,
	})

	p.listener = listener.New(
		listener.Config{EventChannel: cfg.EventChannel, AlertChannel: cfg.AlertChannel},
		p.session, p.events, p.alerts,
		listener.WithRecorder(recorder),
		listener.WithLogger(logger),
		listener.WithClock(now),
	)

	shared := handlerDeps{
		deadLetter:     deps.DeadLetter,
		recorder:       recorder,
		logger:         logger,
		now:            now,
		persistTimeout: cfg.PersistTimeout,
		counters:       p.counters,
	}
	eventHandler := &EventHandler{
		handlerDeps:         shared,
		store:               deps.Store,
		alerts:              p.alerts,
		alertEnqueueTimeout: cfg.AlertEnqueueTimeout,
		forwarder:           deps.Forwarder,
	}
	alertHandler := &AlertHandler{handlerDeps: shared, store: deps.Store}

	opts := worker.Options{PollInterval: cfg.PollInterval, Logger: logger}
	p.eventPool = worker.New(p.events.Name(), cfg.EventWorkers, p.events, eventHandler.Handle, opts)
	p.alertPool = worker.New(p.alerts.Name(), cfg.AlertWorkers, p.alerts, alertHandler.Handle, opts)

	return p
}

// Start connects the transport and spawns the pools and the listener. A
// failure to connect within ConnectMaxAttempts is returned and leaves the
// pipeline STOPPED. Start returns once the pipeline is RUNNING; ctx bounds
// only the startup phase.
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(StateCreated), int32(StateStarting)) {
		return ErrAlreadyStarted
	}
	p.logger.Info("pipeline starting",
		"event_channel", p.cfg.EventChannel,
		"alert_channel", p.cfg.AlertChannel,
		"event_workers", p.cfg.EventWorkers,
		"alert_workers", p.cfg.AlertWorkers,
	)

	if err := p.session.Open(ctx); err != nil {
		p.state.Store(int32(StateStopped))
		p.logger.Error("pipeline failed to start", "error", err)
		p.finish(err)
		return fmt.Errorf("opening transport: %w", err)
	}

	base := context.WithoutCancel(ctx)
	workCtx, workCancel := context.WithCancel(base)
	listenCtx, listenCancel := context.WithCancel(base)
	p.workCancel = workCancel
	p.listenCancel = listenCancel
	p.listenDone = make(chan struct{})

	g := &errgroup.Group{}
	g.Go(func() error { return p.eventPool.Run(workCtx) })
	g.Go(func() error { return p.alertPool.Run(workCtx) })
	g.Go(func() error {
		defer close(p.listenDone)
		err := p.listener.Run(listenCtx)
		if err != nil && listenCtx.Err() == nil {
			p.logger.Error("listener exited unexpectedly, stopping pipeline", "error", err)
			go func() { _ = p.Stop(context.Background()) }()
		}
		return nil
	})
	p.group = g

	sampleCtx, sampleCancel := context.WithCancel(base)
	p.sampleCancel = sampleCancel
	go p.sampleDepth(sampleCtx)

	p.startedAt.Store(p.now().UnixMilli())
	p.state.Store(int32(StateRunning))
	p.logger.Info("pipeline running")
	return nil
}

// sampleDepth publishes queue depth gauges until ctx is done.
func (p *Pipeline) sampleDepth(ctx context.Context) {
	t := time.NewTicker(p.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.recorder.QueueDepth(p.events.Name(), p.events.Pending())
			p.recorder.QueueDepth(p.alerts.Name(), p.alerts.Pending())
		}
	}
}

// Stop shuts the pipeline down: intake stops, the event queue and then the
// alert queue are drained, remaining workers are cancelled once the grace
// period expires, and the transport is closed. ctx can shorten the grace
// period. Only the first call does anything; later calls return nil.
func (p *Pipeline) Stop(ctx context.Context) error {
	if p.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
		p.finish(nil)
		return nil
	}
	if p.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return p.stop(ctx)
	}
	if p.State() == StateStarting {
		return ErrNotRunning
	}
	return nil
}

func (p *Pipeline) stop(ctx context.Context) error {
	log := p.logger
	log.Info("pipeline stopping")

	graceCtx, cancel := context.WithTimeout(ctx, p.cfg.GracePeriod)
	defer cancel()

	p.listener.Stop()
	p.listenCancel()
	select {
	case <-p.listenDone:
	case <-graceCtx.Done():
	}

	// Event workers first: they may still derive alerts while draining.
	p.eventPool.Shutdown()
	if err := p.events.DrainAndWait(graceCtx); err != nil {
		log.Warn("event queue did not drain in time",
			"pending", p.events.Pending(), "in_flight", p.events.InFlight())
	}
	p.alertPool.Shutdown()
	if err := p.alerts.DrainAndWait(graceCtx); err != nil {
		log.Warn("alert queue did not drain in time",
			"pending", p.alerts.Pending(), "in_flight", p.alerts.InFlight())
	}
	p.events.Close()
	p.alerts.Close()
	p.sampleCancel()

	exited := make(chan error, 1)
	go func() { exited <- p.group.Wait() }()

	var (
		forced   bool
		groupErr error
	)
	select {
	case groupErr = <-exited:
	case <-graceCtx.Done():
		select {
		case groupErr = <-exited:
		default:
			forced = true
		}
	}
	if forced {
		log.Error("grace period expired, cancelling workers",
			"event_active", p.eventPool.Active(),
			"alert_active", p.alertPool.Active(),
			"event_pending", p.events.Pending(),
			"alert_pending", p.alerts.Pending(),
		)
		p.workCancel()
		groupErr = <-exited
	}
	p.workCancel()
	if groupErr != nil {
		log.Warn("workers exited with error", "error", groupErr)
	}

	closeCtx, closeCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer closeCancel()
	if err := p.session.Close(closeCtx); err != nil {
		log.Warn("failed to close transport", "error", err)
	}

	p.state.Store(int32(StateStopped))
	var result error
	if forced {
		result = ErrShutdownTimeout
	}
	log.Info("pipeline stopped",
		"forced", forced,
		"listener", p.listener.Stats(),
		"handlers", p.counters.snapshot(),
	)
	p.finish(result)
	return result
}

func (p *Pipeline) finish(err error) {
	p.done <- err
	close(p.done)
}

// Wait returns a channel that receives the terminal error (nil for a clean
// stop) once the pipeline reaches STOPPED, and is then closed.
func (p *Pipeline) Wait() <-chan error {
	return p.done
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Connected reports whether the transport currently holds a subscribed
// connection.
func (p *Pipeline) Connected() bool {
	return p.session.Connected()
}

// Stats returns a point-in-time snapshot of every component.
func (p *Pipeline) Stats() Snapshot {
	s := Snapshot{
		RunID: p.runID,
		State: p.State().String(),
		Transport: TransportStats{
			Connected:  p.session.Connected(),
			Reconnects: p.session.Reconnects(),
		},
		Listener:   p.listener.Stats(),
		EventQueue: p.events.Stats(),
		AlertQueue: p.alerts.Stats(),
		EventPool:  p.eventPool.Stats(),
		AlertPool:  p.alertPool.Stats(),
		Handlers:   p.counters.snapshot(),
	}
	if ms := p.startedAt.Load(); ms > 0 {
		s.StartedAt = time.UnixMilli(ms).UTC()
	}
	return s
}
