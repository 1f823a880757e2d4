package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"eventpipe/internal/types"
)

// Handler receives every notification read by a Session. It is called from
// the session's single receive goroutine and must not block for long.
type Handler func(ctx context.Context, n Notification)

// SessionConfig holds Session tuning.
type SessionConfig struct {
	// Channels are (re)subscribed on every new connection.
	Channels []string
	// Backoff is the fixed delay between reconnect attempts.
	Backoff time.Duration
	// MaxAttempts bounds Open only. Zero means retry forever.
	MaxAttempts int
	// OnReconnect is invoked after every successful reconnect in Run.
	OnReconnect func()
	Logger      types.Logger
}

// Session owns one Connection at a time and replaces it whenever it fails.
// Once running, a Session never gives up: a permanent outage looks like a
// stream with no notifications, not a fatal error.
type Session struct {
	dialer Dialer
	cfg    SessionConfig
	logger types.Logger

	mu     sync.Mutex
	conn   Connection
	closed bool

	connected  atomic.Bool
	reconnects atomic.Uint64
}

// NewSession creates a Session. No connection is made until Open or Run.
func NewSession(dialer Dialer, cfg SessionConfig) *Session {
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Session{
		dialer: dialer,
		cfg:    cfg,
		logger: logger.With("component", "transport"),
	}
}

// Open establishes the first connection and subscribes to every configured
// channel, retrying with the fixed backoff. With MaxAttempts > 0 it gives up
// after that many failed attempts and returns the last error.
func (s *Session) Open(ctx context.Context) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		err := s.connect(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrClosed) || ctx.Err() != nil {
			return err
		}
		lastErr = err
		s.logger.Warn("transport connect failed", "attempt", attempt, "error", err)

		if s.cfg.MaxAttempts > 0 && attempt >= s.cfg.MaxAttempts {
			return types.NewAppError(types.ErrCodeTransportConnect,
				fmt.Sprintf("gave up after %d attempts", attempt), lastErr)
		}
		if err := sleep(ctx, s.cfg.Backoff); err != nil {
			return err
		}
	}
}

// Run reads notifications and passes them to h until ctx is done. On any
// receive failure the connection is dropped and replaced after the backoff;
// the new connection re-subscribes all channels. Run returns nil when ctx is
// cancelled and ErrClosed when the session was closed.
func (s *Session) Run(ctx context.Context, h Handler) error {
	for {
		conn, err := s.current(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		n, err := conn.Receive(ctx)
		if err == nil {
			h(ctx, n)
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		s.logger.Warn("transport receive failed, reconnecting",
			"error", err, "backoff", s.cfg.Backoff.String())
		s.drop(conn)
		if err := sleep(ctx, s.cfg.Backoff); err != nil {
			return nil
		}
	}
}

// current returns the live connection, reconnecting indefinitely if there
// is none.
func (s *Session) current(ctx context.Context) (Connection, error) {
	s.mu.Lock()
	conn, closed := s.conn, s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if conn != nil {
		return conn, nil
	}

	for attempt := 1; ; attempt++ {
		err := s.connect(ctx)
		if err == nil {
			n := s.reconnects.Add(1)
			s.logger.Info("transport reconnected", "attempt", attempt, "reconnects", n)
			if s.cfg.OnReconnect != nil {
				s.cfg.OnReconnect()
			}
			s.mu.Lock()
			conn = s.conn
			s.mu.Unlock()
			if conn == nil {
				return nil, ErrClosed
			}
			return conn, nil
		}
		if errors.Is(err, ErrClosed) || ctx.Err() != nil {
			return nil, err
		}
		s.logger.Warn("transport reconnect failed", "attempt", attempt, "error", err)
		if err := sleep(ctx, s.cfg.Backoff); err != nil {
			return nil, err
		}
	}
}

func (s *Session) connect(ctx context.Context) error {
	conn, err := s.dialer.Connect(ctx)
	if err != nil {
		return err
	}
	for _, ch := range s.cfg.Channels {
		if err := conn.Subscribe(ctx, ch); err != nil {
			_ = conn.Close(context.Background())
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = conn.Close(context.Background())
		return ErrClosed
	}
	s.conn = conn
	s.connected.Store(true)
	s.logger.Info("transport subscribed", "channels", s.cfg.Channels)
	return nil
}

func (s *Session) drop(conn Connection) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		s.connected.Store(false)
	}
	s.mu.Unlock()

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = conn.Close(closeCtx)
}

// Connected reports whether the session currently holds a subscribed
// connection.
func (s *Session) Connected() bool { return s.connected.Load() }

// Reconnects returns the number of successful reconnects performed by Run.
func (s *Session) Reconnects() uint64 { return s.reconnects.Load() }

// Close releases the current connection. Later Open and Run calls return
// ErrClosed. Close is idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.connected.Store(false)
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
