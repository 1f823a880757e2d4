package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventpipe/internal/types"
)

// fakeConn replays a scripted list of notifications and then fails with
// failWith, or blocks until ctx is done when failWith is nil.
type fakeConn struct {
	mu         sync.Mutex
	script     []Notification
	failWith   error
	subscribed []string
	closed     bool
}

func (c *fakeConn) Subscribe(_ context.Context, channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, channel)
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) (Notification, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Notification{}, ErrClosed
	}
	if len(c.script) > 0 {
		n := c.script[0]
		c.script = c.script[1:]
		c.mu.Unlock()
		return n, nil
	}
	fail := c.failWith
	c.mu.Unlock()

	if fail != nil {
		return Notification{}, fail
	}
	<-ctx.Done()
	return Notification{}, ctx.Err()
}

func (c *fakeConn) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) channels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.subscribed...)
}

// fakeDialer hands out conns in order; a nil entry is a failed dial.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	calls atomic.Int32
}

func (d *fakeDialer) Connect(context.Context) (Connection, error) {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil, errors.New("no more connections")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	if c == nil {
		return nil, types.NewAppError(types.ErrCodeTransportConnect, "refused", nil)
	}
	return c, nil
}

func note(payload string) Notification {
	return Notification{Channel: "events_channel", Payload: []byte(payload)}
}

func TestSession_Open_RetriesUntilConnected(t *testing.T) {
	conn := &fakeConn{}
	d := &fakeDialer{conns: []*fakeConn{nil, nil, conn}}
	s := NewSession(d, SessionConfig{Channels: []string{"events_channel"}, Backoff: time.Millisecond})

	require.NoError(t, s.Open(context.Background()))
	assert.True(t, s.Connected())
	assert.Equal(t, int32(3), d.calls.Load())
	assert.Equal(t, []string{"events_channel"}, conn.channels())
}

func TestSession_Open_GivesUpAfterMaxAttempts(t *testing.T) {
	d := &fakeDialer{conns: []*fakeConn{nil, nil, nil, nil}}
	s := NewSession(d, SessionConfig{Channels: []string{"events_channel"}, Backoff: time.Millisecond, MaxAttempts: 2})

	err := s.Open(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeTransportConnect, types.CodeOf(err))
	assert.Equal(t, int32(2), d.calls.Load())
	assert.False(t, s.Connected())
}

func TestSession_Run_ResumesAfterMidStreamFailure(t *testing.T) {
	first := &fakeConn{
		script:   []Notification{note("a")},
		failWith: errors.New("connection reset by peer"),
	}
	second := &fakeConn{script: []Notification{note("b"), note("c")}}
	d := &fakeDialer{conns: []*fakeConn{first, nil, second}}

	var reconnectHook atomic.Int32
	s := NewSession(d, SessionConfig{
		Channels:    []string{"events_channel", "alerts_channel"},
		Backoff:     5 * time.Millisecond,
		OnReconnect: func() { reconnectHook.Add(1) },
	})
	require.NoError(t, s.Open(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 3)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(_ context.Context, n Notification) {
			got <- string(n.Payload)
		})
	}()

	var payloads []string
	for i := 0; i < 3; i++ {
		select {
		case p := <-got:
			payloads = append(payloads, p)
		case <-time.After(2 * time.Second):
			t.Fatalf("only received %v", payloads)
		}
	}
	assert.Equal(t, []string{"a", "b", "c"}, payloads)
	assert.Equal(t, uint64(1), s.Reconnects())
	assert.Equal(t, int32(1), reconnectHook.Load())
	assert.True(t, first.isClosed(), "failed connection is closed before reconnecting")
	assert.Equal(t, []string{"events_channel", "alerts_channel"}, second.channels(),
		"every channel is re-subscribed on the new connection")
	assert.True(t, s.Connected())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSession_Run_ReturnsOnCancelDuringBackoff(t *testing.T) {
	conn := &fakeConn{failWith: errors.New("broken")}
	d := &fakeDialer{conns: []*fakeConn{conn}}
	s := NewSession(d, SessionConfig{Channels: []string{"c"}, Backoff: time.Hour})
	require.NoError(t, s.Open(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, func(context.Context, Notification) {}) }()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, s.Connected())
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run stuck in backoff after cancel")
	}
}

func TestSession_Close(t *testing.T) {
	conn := &fakeConn{}
	d := &fakeDialer{conns: []*fakeConn{conn}}
	s := NewSession(d, SessionConfig{Channels: []string{"c"}, Backoff: time.Millisecond})
	require.NoError(t, s.Open(context.Background()))

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))
	assert.True(t, conn.isClosed())
	assert.False(t, s.Connected())

	err := s.Run(context.Background(), func(context.Context, Notification) {})
	assert.ErrorIs(t, err, ErrClosed)
}
