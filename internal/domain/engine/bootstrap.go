package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/rostersync/internal/domain/types"
	"github.com/okian/rostersync/pkg/logger"
	"github.com/okian/rostersync/pkg/metrics"
)

// Reader is the read half of the remote source.
type Reader interface {
	Select(ctx context.Context, collection string, order types.Order) ([]types.Row, error)
}

// Bootstrap performs the initial load of every collection.
type Bootstrap struct {
	ec      *Context
	remote  Reader
	loaders []Loader
	mu      sync.Mutex // one load at a time
	dead    atomic.Bool
	log     logger.Logger
}

// NewBootstrap creates a loader over the given collections.
func NewBootstrap(ec *Context, r Reader, loaders ...Loader) *Bootstrap {
	return &Bootstrap{ec: ec, remote: r, loaders: loaders, log: ec.Logger.Named("bootstrap")}
}

// Load fetches every collection concurrently and installs all of them only
// if every fetch succeeded. Results arriving after ctx is done or after
// Teardown are discarded. Loads are serialized; change events that arrive
// while one is in flight are applied on top of whatever it leaves behind.
func (b *Bootstrap) Load(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dead.Load() {
		return ErrTornDown
	}
	start := time.Now()
	b.ec.State.SetLoading(true)
	defer b.ec.State.SetLoading(false)

	b.ec.intake.hold()
	var install func()
	defer func() {
		if n := b.ec.intake.release(context.WithoutCancel(ctx), install); n > 0 {
			b.log.Debug(ctx, "applied changes held during load", logger.Int("changes", n))
		}
	}()

	installs := make([]func(context.Context), len(b.loaders))
	g, gctx := errgroup.WithContext(ctx)
	for i, l := range b.loaders {
		g.Go(func() error {
			rows, err := b.remote.Select(gctx, l.Collection(), l.Order())
			if err != nil {
				return fmt.Errorf("select %s: %w", l.Collection(), err)
			}
			installs[i] = l.Prepare(rows)
			return nil
		})
	}
	err := g.Wait()
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	if b.dead.Load() || ctx.Err() != nil {
		metrics.RecordBootstrap(metrics.OutcomeDiscarded, elapsed)
		b.log.Debug(ctx, "bootstrap results discarded")
		return ErrTornDown
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrBootstrap, err)
		b.ec.State.Fail(err)
		metrics.RecordBootstrap(metrics.OutcomeFailed, elapsed)
		b.log.Error(ctx, "bootstrap failed", logger.Error(err))
		return err
	}

	install = func() {
		for _, fn := range installs {
			fn(ctx)
		}
	}
	b.ec.State.Clear()
	metrics.RecordBootstrap(metrics.OutcomeOK, elapsed)
	b.log.Info(ctx, "bootstrap complete",
		logger.Int("collections", len(installs)),
		logger.Float64("duration_ms", elapsed))
	return nil
}

// Teardown marks the consumer gone. A load in flight will not install its
// results and later loads fail with ErrTornDown.
func (b *Bootstrap) Teardown() {
	b.dead.Store(true)
}
