// Package worker drains the change queue into the replica, one event at a
// time, so change integration runs on a single logical thread.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/rostersync/internal/adapters/mq/queue"
	"github.com/okian/rostersync/internal/domain/engine"
	"github.com/okian/rostersync/internal/domain/types"
	"github.com/okian/rostersync/pkg/logger"
	"github.com/okian/rostersync/pkg/metrics"
)

// Handler applies one change event.
type Handler interface {
	OnChange(ctx context.Context, ch types.Change) engine.Outcome
}

// Queue defines how the worker receives events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Event
}

// Worker processes change events until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for the loop to exit.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker over an in-process queue.
type InMemoryWorker struct {
	queue   Queue
	handler Handler
	name    string

	processed atomic.Int64
	outcomes  func(engine.Outcome)

	shutdown chan struct{}
	stopped  atomic.Bool
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, h Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		handler:  h,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			w.process(ctx, event)
		}
	}
}

// Shutdown stops the worker. It is safe to call more than once.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	if w.stopped.CompareAndSwap(false, true) {
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed once the loop has exited.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// Processed returns the number of events handled so far.
func (w *InMemoryWorker) Processed() int64 { return w.processed.Load() }

func (w *InMemoryWorker) process(ctx context.Context, event queue.Event) {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	out := w.handler.OnChange(ctx, event)
	w.processed.Add(1)
	if out == engine.OutcomeUnknown {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "unknown_collection")
	}
	if w.outcomes != nil {
		w.outcomes(out)
	}
}
