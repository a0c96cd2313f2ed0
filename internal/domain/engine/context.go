// Package engine is the replica synchronization core: optimistic mutations
// with rollback, integration of remote change events, and the initial load.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/okian/rostersync/internal/domain/inflight"
	"github.com/okian/rostersync/internal/domain/types"
	"github.com/okian/rostersync/pkg/logger"
	"github.com/okian/rostersync/pkg/metrics"
)

// RollbackPolicy decides what a failed remote update does to the local record.
type RollbackPolicy string

const (
	// RollbackSymmetric restores the pre-image for every failed mutation.
	RollbackSymmetric RollbackPolicy = "symmetric"
	// RollbackLegacy leaves a failed update's optimistic value in place.
	// Failed creates and deletes are still undone.
	RollbackLegacy RollbackPolicy = "legacy"
)

// Context is the state every engine component shares explicitly.
type Context struct {
	Tracker inflight.Tracker
	State   *State
	Logger  logger.Logger
	Policy  RollbackPolicy

	intake *intake
}

// NewContext fills unset fields with defaults.
func NewContext(ec Context) *Context {
	if ec.Tracker == nil {
		ec.Tracker = inflight.NewTracker()
	}
	if ec.State == nil {
		ec.State = NewState()
	}
	if ec.Logger == nil {
		ec.Logger = logger.Nop()
	}
	if ec.Policy == "" {
		ec.Policy = RollbackSymmetric
	}
	ec.intake = &intake{}
	return &ec
}

// write runs fn as a tracked remote write on collection/id. The token is
// released on every exit path, panics included. The remote call does not
// observe ctx cancellation once issued.
func (ec *Context) write(ctx context.Context, op, collection, id string, fn func(context.Context) error) error {
	tok := ec.Tracker.Begin(ctx, collection, id)
	defer ec.Tracker.End(ctx, tok)

	start := time.Now()
	err := fn(context.WithoutCancel(ctx))
	metrics.RecordRemoteCall(op, float64(time.Since(start).Microseconds())/1000, err)
	return err
}

// intake holds change events back while a load is in flight. Held events
// are applied after the load's snapshot is installed, in arrival order and
// before any later event, so a change committed between a fetch and its
// install is not overwritten.
type intake struct {
	mu      sync.Mutex
	held    bool
	pending []types.Change
	apply   func(context.Context, types.Change) Outcome
}

// pass applies ch through apply, or queues it while held.
func (in *intake) pass(ch types.Change, apply func() Outcome) Outcome {
	if in == nil {
		return apply()
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.held {
		in.pending = append(in.pending, ch)
		return OutcomeDeferred
	}
	return apply()
}

func (in *intake) hold() {
	if in == nil {
		return
	}
	in.mu.Lock()
	in.held = true
	in.mu.Unlock()
}

// release runs install, if any, then applies the held events. Events
// arriving meanwhile wait for it to finish. It returns how many were held.
func (in *intake) release(ctx context.Context, install func()) int {
	if in == nil {
		if install != nil {
			install()
		}
		return 0
	}
	in.mu.Lock()
	defer in.mu.Unlock()

	if install != nil {
		install()
	}
	pending := in.pending
	in.pending = nil
	in.held = false
	if in.apply != nil {
		for _, ch := range pending {
			in.apply(ctx, ch)
		}
	}
	return len(pending)
}
