package engine

import (
	"context"

	"github.com/okian/rostersync/internal/domain/types"
	"github.com/okian/rostersync/pkg/logger"
	"github.com/okian/rostersync/pkg/metrics"
)

// Outcome is what the integrator did with one change event.
type Outcome string

const (
	OutcomeApplied    Outcome = metrics.OutcomeApplied
	OutcomeSuppressed Outcome = metrics.OutcomeSuppressed
	OutcomeIgnored    Outcome = metrics.OutcomeIgnored // target absent or duplicate
	OutcomeUnknown    Outcome = metrics.OutcomeUnknown
	OutcomeDeferred   Outcome = metrics.OutcomeDeferred // held until the running load installs
)

// Integrator merges change events from the remote subscription into the
// replica, dropping events caused by this replica's own in-flight writes.
type Integrator struct {
	ec       *Context
	appliers map[string]Applier
	log      logger.Logger
}

// NewIntegrator routes events to appliers by collection name.
func NewIntegrator(ec *Context, appliers ...Applier) *Integrator {
	m := make(map[string]Applier, len(appliers))
	for _, a := range appliers {
		m[a.Collection()] = a
	}
	i := &Integrator{ec: ec, appliers: m, log: ec.Logger.Named("integrator")}
	if ec.intake != nil {
		ec.intake.apply = i.apply
	}
	return i
}

// OnChange handles one change event. It never fails: anything it cannot
// apply is logged and reported through the outcome. While a load is in
// flight the event is deferred and applied once the load is installed.
func (i *Integrator) OnChange(ctx context.Context, ch types.Change) Outcome {
	out := i.ec.intake.pass(ch, func() Outcome { return i.apply(ctx, ch) })
	if out == OutcomeDeferred {
		metrics.RecordChangeEvent(ch.Collection, string(ch.Kind), string(out))
		i.log.Debug(ctx, "change event deferred",
			logger.String("collection", ch.Collection),
			logger.String("kind", string(ch.Kind)),
			logger.String("id", ch.RecordID()))
	}
	return out
}

func (i *Integrator) apply(ctx context.Context, ch types.Change) Outcome {
	id := ch.RecordID()
	out := i.dispatch(ctx, ch, id)
	metrics.RecordChangeEvent(ch.Collection, string(ch.Kind), string(out))

	switch out {
	case OutcomeUnknown:
		i.log.Warn(ctx, "change event ignored",
			logger.String("collection", ch.Collection),
			logger.String("kind", string(ch.Kind)),
			logger.String("id", id))
	default:
		i.log.Debug(ctx, "change event",
			logger.String("collection", ch.Collection),
			logger.String("kind", string(ch.Kind)),
			logger.String("id", id),
			logger.String("outcome", string(out)))
	}
	return out
}

func (i *Integrator) dispatch(ctx context.Context, ch types.Change, id string) Outcome {
	if i.ec.Tracker.Suppressed(ctx, ch.Collection, id) {
		return OutcomeSuppressed
	}
	a, ok := i.appliers[ch.Collection]
	if !ok {
		return OutcomeUnknown
	}
	return a.Apply(ctx, ch)
}
