// Package queue provides the bounded in-memory buffer that sits between the
// listener and the worker pools.
//
// Every item handed out by Dequeue must be acknowledged with Ack once the
// consumer is done with it. DrainAndWait uses that bookkeeping to tell
// "queue empty" apart from "queue empty but a worker is still busy with the
// last item".
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"eventpipe/internal/types"
)

var (
	// ErrQueueFull is returned by TryEnqueue when the queue is at capacity.
	ErrQueueFull = types.NewAppError(types.ErrCodeQueueFull, "queue is at capacity", nil)

	// ErrClosed is returned once the queue has been closed and, for Dequeue,
	// no buffered items remain.
	ErrClosed = types.NewAppError(types.ErrCodeQueueClosed, "queue is closed", nil)
)

// Queue is a FIFO buffer with a fixed capacity. Transfer into the queue is a
// move: the producer must not touch an item after a successful enqueue.
type Queue[T any] struct {
	name string

	// slots holds one token per item that is buffered or about to be
	// buffered; its capacity is the queue bound.
	slots chan struct{}
	items chan T

	mu         sync.Mutex
	unfinished int
	idle       chan struct{} // closed whenever unfinished == 0
	closed     bool
	closeCh    chan struct{}

	enqueued atomic.Uint64
	rejected atomic.Uint64
	acked    atomic.Uint64
}

// Stats is a point-in-time view of a queue.
type Stats struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	Pending  int    `json:"pending"`
	InFlight int    `json:"in_flight"`
	Enqueued uint64 `json:"enqueued"`
	Rejected uint64 `json:"rejected"`
	Acked    uint64 `json:"acked"`
	Closed   bool   `json:"closed"`
}

// New creates a queue that holds at most capacity items. A capacity below 1
// is treated as 1.
func New[T any](name string, capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	idle := make(chan struct{})
	close(idle)
	return &Queue[T]{
		name:    name,
		slots:   make(chan struct{}, capacity),
		items:   make(chan T, capacity),
		idle:    idle,
		closeCh: make(chan struct{}),
	}
}

// Name returns the queue name used in logs and metrics.
func (q *Queue[T]) Name() string { return q.name }

// Cap returns the fixed capacity.
func (q *Queue[T]) Cap() int { return cap(q.items) }

// TryEnqueue adds item without blocking. It returns ErrQueueFull when no
// capacity is free and ErrClosed after Close.
func (q *Queue[T]) TryEnqueue(item T) error {
	select {
	case q.slots <- struct{}{}:
	default:
		q.rejected.Add(1)
		return ErrQueueFull
	}
	return q.push(item)
}

// Enqueue adds item, waiting for capacity until ctx is done or the queue is
// closed. Callers that must not stall bound ctx with a deadline.
func (q *Queue[T]) Enqueue(ctx context.Context, item T) error {
	select {
	case q.slots <- struct{}{}:
	case <-q.closeCh:
		return ErrClosed
	case <-ctx.Done():
		q.rejected.Add(1)
		return ctx.Err()
	}
	return q.push(item)
}

// push runs with a slot already reserved, so the send on items cannot block.
func (q *Queue[T]) push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		<-q.slots
		return ErrClosed
	}
	if q.unfinished == 0 {
		q.idle = make(chan struct{})
	}
	q.unfinished++
	q.items <- item
	q.enqueued.Add(1)
	return nil
}

// Dequeue removes the oldest item, waiting until one is available, ctx is
// done, or the queue is closed and empty. The caller owns the item and must
// call Ack when finished with it.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	select {
	case item := <-q.items:
		<-q.slots
		return item, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-q.closeCh:
		select {
		case item := <-q.items:
			<-q.slots
			return item, nil
		default:
			return zero, ErrClosed
		}
	}
}

// Ack marks one previously dequeued item as fully processed. Calling Ack
// more often than Dequeue succeeded is a programming error and panics,
// mirroring sync.WaitGroup.
func (q *Queue[T]) Ack() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.unfinished <= len(q.items) {
		panic("queue: Ack called without a matching Dequeue")
	}
	q.unfinished--
	q.acked.Add(1)
	if q.unfinished == 0 {
		close(q.idle)
	}
}

// Pending returns the number of buffered items not yet dequeued.
func (q *Queue[T]) Pending() int {
	return len(q.items)
}

// InFlight returns the number of dequeued items not yet acknowledged.
func (q *Queue[T]) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished - len(q.items)
}

// DrainAndWait blocks until the queue is empty and every dequeued item has
// been acknowledged, or ctx is done.
func (q *Queue[T]) DrainAndWait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake. Buffered items can still be dequeued; blocked
// Enqueue calls return ErrClosed. Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.closeCh)
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	select {
	case <-q.closeCh:
		return true
	default:
		return false
	}
}

// Stats returns a snapshot of the queue counters.
func (q *Queue[T]) Stats() Stats {
	return Stats{
		Name:     q.name,
		Capacity: q.Cap(),
		Pending:  q.Pending(),
		InFlight: q.InFlight(),
		Enqueued: q.enqueued.Load(),
		Rejected: q.rejected.Load(),
		Acked:    q.acked.Load(),
		Closed:   q.Closed(),
	}
}

// IsFull reports whether err is a capacity rejection.
func IsFull(err error) bool {
	return errors.Is(err, ErrQueueFull)
}
