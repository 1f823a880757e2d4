// Package worker runs a fixed number of goroutines that drain a bounded
// queue. The event pipeline and the alert sub-pipeline each own one Pool so
// that neither can starve the other.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"eventpipe/internal/queue"
	"eventpipe/internal/types"
)

// Handler processes one item. It owns the item for the duration of the call.
// Failures are the handler's to log; the pool acknowledges the item whatever
// the outcome.
type Handler[T any] func(ctx context.Context, item T)

// Options tune a Pool.
type Options struct {
	// PollInterval bounds each Dequeue wait so idle workers notice Shutdown.
	PollInterval time.Duration
	Logger       types.Logger
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Name      string `json:"name"`
	Size      int    `json:"size"`
	Active    int    `json:"active"`
	Processed uint64 `json:"processed"`
	Panics    uint64 `json:"panics"`
}

// Pool is a fixed-size set of workers consuming one queue.
type Pool[T any] struct {
	name   string
	size   int
	q      *queue.Queue[T]
	handle Handler[T]
	poll   time.Duration
	logger types.Logger

	shutdown  atomic.Bool
	active    atomic.Int32
	processed atomic.Uint64
	panics    atomic.Uint64
}

// New creates a pool of size workers. A size below 1 is treated as 1.
func New[T any](name string, size int, q *queue.Queue[T], handle Handler[T], opts Options) *Pool[T] {
	if size < 1 {
		size = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Pool[T]{
		name:   name,
		size:   size,
		q:      q,
		handle: handle,
		poll:   opts.PollInterval,
		logger: logger.With("pool", name),
	}
}

// Run starts the workers and blocks until all of them exit. Workers exit
// once Shutdown has been called and the queue has nothing left to claim, when
// the queue is closed and empty, or when ctx is cancelled. Run returns
// ctx.Err() if it ended because of cancellation and nil otherwise.
func (p *Pool[T]) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.work(ctx, id)
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil && (!p.shutdown.Load() || p.q.Pending() > 0) {
		return err
	}
	return nil
}

func (p *Pool[T]) work(ctx context.Context, id int) {
	log := p.logger.With("worker", id)
	for {
		if p.shutdown.Load() && p.q.Pending() == 0 {
			return
		}

		pollCtx, cancel := context.WithTimeout(ctx, p.poll)
		item, err := p.q.Dequeue(pollCtx)
		cancel()
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return
			}
			continue
		}

		p.process(ctx, log, item)
	}
}

func (p *Pool[T]) process(ctx context.Context, log types.Logger, item T) {
	p.active.Add(1)
	defer p.active.Add(-1)
	defer p.q.Ack()
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			log.Error("worker recovered from panic",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	p.handle(ctx, item)
	p.processed.Add(1)
}

// Shutdown tells workers to exit once the queue has no pending items. It does
// not interrupt an item that is being processed.
func (p *Pool[T]) Shutdown() {
	p.shutdown.Store(true)
}

// Active returns the number of items currently being processed.
func (p *Pool[T]) Active() int {
	return int(p.active.Load())
}

// Name returns the pool name.
func (p *Pool[T]) Name() string { return p.name }

// Stats returns a snapshot of the pool counters.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Name:      p.name,
		Size:      p.size,
		Active:    p.Active(),
		Processed: p.processed.Load(),
		Panics:    p.panics.Load(),
	}
}
