// Package service is the composition root of the replica: it wires the
// store, the engine, the change intake and the remote source together and
// exposes the consumer surface used by the HTTP API and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	eventqueue "github.com/okian/rostersync/internal/adapters/mq/queue"
	"github.com/okian/rostersync/internal/adapters/mq/worker"
	"github.com/okian/rostersync/internal/adapters/remote"
	"github.com/okian/rostersync/internal/adapters/repository"
	"github.com/okian/rostersync/internal/domain/codec"
	"github.com/okian/rostersync/internal/domain/engine"
	"github.com/okian/rostersync/internal/domain/inflight"
	"github.com/okian/rostersync/internal/domain/model"
	"github.com/okian/rostersync/pkg/logger"
	"github.com/okian/rostersync/pkg/metrics"
)

const stopTimeout = 5 * time.Second

// Service owns one replica and keeps it in sync with a remote source.
type Service struct {
	mu sync.Mutex

	source remote.Source
	rt     atomic.Pointer[runtime]

	// Core components
	replica    *repository.Replica
	ec         *engine.Context
	integrator *engine.Integrator
	loaders    []engine.Loader
	members    *engine.Mutator[model.Member, model.MemberPatch]
	raids      *engine.Mutator[model.Raid, model.RaidPatch]
	awards     *engine.Mutator[model.Award, model.AwardPatch]
	scheduled  *engine.Mutator[model.Scheduled, model.ScheduledPatch]
	handles    map[string]engine.Handle

	// Configuration
	queueSize int
	mode      inflight.Mode
	policy    engine.RollbackPolicy
	now       func() time.Time
	newID     func() string

	logger logger.Logger
}

// runtime is everything that lives between Start and Stop.
type runtime struct {
	cancel   context.CancelFunc
	sub      remote.Subscription
	queue    *eventqueue.InMemoryQueue
	worker   *worker.InMemoryWorker
	boot     *engine.Bootstrap
	pumpDone chan struct{}
}

// New wires a replica of src. Nothing talks to src until Start.
func New(src remote.Source, opts ...Option) *Service {
	s := &Service{
		source:    src,
		queueSize: 10_000,
		mode:      inflight.Keyed,
		policy:    engine.RollbackSymmetric,
		now:       time.Now,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.replica = repository.NewReplica()
	s.ec = engine.NewContext(engine.Context{
		Tracker: inflight.NewTracker(inflight.WithMode(s.mode)),
		Logger:  s.logger,
		Policy:  s.policy,
	})

	clock := codec.WithClock(s.now)
	mb := engine.NewBinding[model.Member, model.MemberPatch](codec.NewMembers(clock), s.replica.Members)
	rb := engine.NewBinding[model.Raid, model.RaidPatch](codec.NewRaids(clock), s.replica.Raids)
	ab := engine.NewBinding[model.Award, model.AwardPatch](codec.NewAwards(clock), s.replica.Awards)
	sb := engine.NewBinding[model.Scheduled, model.ScheduledPatch](codec.NewScheduled(clock), s.replica.Scheduled)

	var mopts []engine.MutatorOption
	if s.newID != nil {
		mopts = append(mopts, engine.WithIDGenerator(s.newID))
	}
	s.members = engine.NewMutator(s.ec, mb, src, mopts...)
	s.raids = engine.NewMutator(s.ec, rb, src, mopts...)
	s.awards = engine.NewMutator(s.ec, ab, src, mopts...)
	s.scheduled = engine.NewMutator(s.ec, sb, src, mopts...)

	s.integrator = engine.NewIntegrator(s.ec, mb, rb, ab, sb)
	s.loaders = []engine.Loader{mb, rb, ab, sb}
	s.handles = map[string]engine.Handle{
		mb.Collection(): s.members.Rows(),
		rb.Collection(): s.raids.Rows(),
		ab.Collection(): s.awards.Rows(),
		sb.Collection(): s.scheduled.Rows(),
	}
	return s
}

// Start subscribes to remote changes, loads every collection and starts
// applying changes. Changes that arrive during the load are queued and
// applied on top of it. A failed load is reported through Err and does
// not stop the service; Reload retries it.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rt.Load() != nil {
		return nil
	}
	s.logger.Info(ctx, "starting replica service...")

	runCtx, cancel := context.WithCancel(ctx)
	sub, err := s.source.Subscribe(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %w", ErrSubscribe, err)
	}

	rt := &runtime{
		cancel:   cancel,
		sub:      sub,
		queue:    eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize)),
		boot:     engine.NewBootstrap(s.ec, s.source, s.loaders...),
		pumpDone: make(chan struct{}),
	}
	rt.worker = worker.NewInMemoryWorker(rt.queue, s.integrator,
		worker.WithName("changes"),
		worker.WithLogger(s.logger),
		worker.WithOutcomeHook(func(engine.Outcome) { s.observe() }),
	)
	go s.pump(runCtx, rt)

	if err := rt.boot.Load(ctx); err != nil {
		if errors.Is(err, engine.ErrTornDown) {
			s.shutdown(rt, false)
			return fmt.Errorf("start: %w", context.Cause(ctx))
		}
		s.logger.Warn(ctx, "initial load failed, serving empty replica", logger.Error(err))
	}
	s.observe()

	go rt.worker.Run(runCtx)
	s.rt.Store(rt)

	s.logger.Info(ctx, "replica service started",
		logger.Int("queueSize", s.queueSize),
		logger.String("suppression", string(s.mode)),
		logger.String("rollback", string(s.policy)),
	)
	return nil
}

// pump moves subscription changes into the intake queue until the
// subscription ends.
func (s *Service) pump(ctx context.Context, rt *runtime) {
	defer close(rt.pumpDone)
	for ch := range rt.sub.Changes() {
		if !rt.queue.Enqueue(ctx, ch) {
			s.logger.Warn(ctx, "change dropped",
				logger.String("collection", ch.Collection),
				logger.String("kind", string(ch.Kind)),
				logger.String("id", ch.RecordID()))
		}
	}
}

// Stop tears the service down. Writes already issued still complete.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt := s.rt.Swap(nil)
	if rt == nil {
		return
	}
	s.logger.Info(context.Background(), "stopping replica service...")
	s.shutdown(rt, true)
	s.logger.Info(context.Background(), "replica service stopped")
}

func (s *Service) shutdown(rt *runtime, running bool) {
	rt.boot.Teardown()
	rt.cancel()
	_ = rt.sub.Close()
	<-rt.pumpDone

	if running {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := rt.worker.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "worker did not stop", logger.Error(err))
		}
	}
	_ = rt.queue.Close()
}

// Reload repeats the initial load, replacing every collection. Changes the
// worker hands over while it runs are held and applied on top of the new
// snapshot. Concurrent reloads run one after another.
func (s *Service) Reload(ctx context.Context) error {
	rt := s.rt.Load()
	if rt == nil {
		return ErrNotStarted
	}
	err := rt.boot.Load(ctx)
	s.observe()
	return err
}

// Loading reports whether a load is in progress.
func (s *Service) Loading() bool { return s.ec.State.Loading() }

// Err returns the most recent unresolved failure, or nil.
func (s *Service) Err() error { return s.ec.State.Err() }

// Collection returns the wire-form handle of the named collection.
func (s *Service) Collection(name string) (engine.Handle, error) {
	h, ok := s.handles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrUnknownCollection, name)
	}
	return h, nil
}

// Members returns the roster, highest DKP first.
func (s *Service) Members(ctx context.Context) []model.Member { return s.replica.Members.List(ctx) }

// Raids returns the raid history, newest first.
func (s *Service) Raids(ctx context.Context) []model.Raid { return s.replica.Raids.List(ctx) }

// Awards returns the loot history, newest first.
func (s *Service) Awards(ctx context.Context) []model.Award { return s.replica.Awards.List(ctx) }

// Scheduled returns upcoming raids, soonest first.
func (s *Service) Scheduled(ctx context.Context) []model.Scheduled {
	return s.replica.Scheduled.List(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	rt := s.rt.Load()
	stats := map[string]any{
		"started":     rt != nil,
		"queueSize":   s.queueSize,
		"suppression": string(s.mode),
		"rollback":    string(s.policy),
		"loading":     s.Loading(),
		"inflight":    s.ec.Tracker.Size(),
		"records":     s.replica.Counts(),
	}
	if err := s.Err(); err != nil {
		stats["error"] = err.Error()
	}
	if rt != nil {
		queueLen := rt.queue.Len(context.Background())
		stats["queueLength"] = queueLen
		stats["processed"] = rt.worker.Processed()
		metrics.UpdateQueueSize(queueLen)
	}
	return stats
}

func (s *Service) observe() {
	for name, n := range s.replica.Counts() {
		metrics.UpdateReplicaRecords(name, n)
	}
}
