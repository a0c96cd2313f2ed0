package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/rostersync/internal/domain/types"
	"github.com/okian/rostersync/pkg/logger"
	"github.com/okian/rostersync/pkg/metrics"
)

// Writer is the write half of the remote source.
type Writer interface {
	Insert(ctx context.Context, collection string, row types.Row) error
	Update(ctx context.Context, collection, id string, patch types.Row) error
	Delete(ctx context.Context, collection, id string) error
}

// Edit is one member of a bulk update.
type Edit[P any] struct {
	ID    string
	Patch P
}

// Mutator performs optimistic mutations on one collection: apply locally,
// write remotely, undo locally if the write fails.
type Mutator[T, P any] struct {
	ec     *Context
	b      *Binding[T, P]
	remote Writer
	newID  func() string
	log    logger.Logger
}

// NewMutator creates the coordinator for b's collection.
func NewMutator[T, P any](ec *Context, b *Binding[T, P], w Writer, opts ...MutatorOption) *Mutator[T, P] {
	cfg := mutatorConfig{newID: uuid.NewString}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Mutator[T, P]{
		ec:     ec,
		b:      b,
		remote: w,
		newID:  cfg.newID,
		log:    ec.Logger.Named("mutator").Named(b.Collection()),
	}
}

// Collection returns the collection name.
func (m *Mutator[T, P]) Collection() string { return m.b.Collection() }

// Create inserts rec, assigning an id if it has none. On remote failure the
// record is removed again.
func (m *Mutator[T, P]) Create(ctx context.Context, rec T) (T, error) {
	c, coll := m.b.codec, m.b.Collection()
	if c.Key(rec) == "" {
		rec = c.WithKey(rec, m.newID())
	}
	id := c.Key(rec)

	inserted := m.b.store.Insert(ctx, rec)
	err := m.ec.write(ctx, "insert", coll, id, func(ctx context.Context) error {
		return m.remote.Insert(ctx, coll, c.ToWire(rec))
	})
	if err != nil {
		if inserted {
			m.b.store.Delete(ctx, id)
			m.rolledBack(ctx, "create", id)
		}
		return rec, m.fail(ctx, "create", id, err)
	}
	m.succeed(ctx, "create", id)
	return rec, nil
}

// Update merges patch into the record with the given id and sends only the
// patch's present fields. The remote write is issued even if the record is
// not held locally. It returns the record as the replica now holds it.
func (m *Mutator[T, P]) Update(ctx context.Context, id string, patch P) (T, error) {
	c, coll := m.b.codec, m.b.Collection()

	prev, next, applied := m.b.store.Modify(ctx, id, func(cur T) T {
		return c.WithKey(c.Merge(cur, patch), id)
	})

	err := m.ec.write(ctx, "update", coll, id, func(ctx context.Context) error {
		return m.remote.Update(ctx, coll, id, c.PatchToWire(patch))
	})
	if err != nil {
		if applied && m.ec.Policy == RollbackSymmetric {
			m.b.store.Update(ctx, prev)
			m.rolledBack(ctx, "update", id)
			next = prev
		}
		return next, m.fail(ctx, "update", id, err)
	}
	m.succeed(ctx, "update", id)
	return next, nil
}

// Delete removes the record with the given id. On remote failure it is
// restored at its former position.
func (m *Mutator[T, P]) Delete(ctx context.Context, id string) error {
	coll := m.b.Collection()

	prev, idx, removed := m.b.store.Delete(ctx, id)
	err := m.ec.write(ctx, "delete", coll, id, func(ctx context.Context) error {
		return m.remote.Delete(ctx, coll, id)
	})
	if err != nil {
		if removed {
			m.b.store.Restore(ctx, prev, idx)
			m.rolledBack(ctx, "delete", id)
		}
		return m.fail(ctx, "delete", id, err)
	}
	m.succeed(ctx, "delete", id)
	return nil
}

// BulkUpdate applies every edit locally, then issues all remote writes
// concurrently. Failed writes are reported together; nothing is rolled back.
func (m *Mutator[T, P]) BulkUpdate(ctx context.Context, edits []Edit[P]) error {
	c, coll := m.b.codec, m.b.Collection()

	for _, e := range edits {
		m.b.store.Modify(ctx, e.ID, func(cur T) T {
			return c.WithKey(c.Merge(cur, e.Patch), e.ID)
		})
	}

	failures := make([]string, len(edits))
	var (
		mu     sync.Mutex
		failed int
		g      errgroup.Group
	)
	for i, e := range edits {
		g.Go(func() error {
			err := m.ec.write(ctx, "update", coll, e.ID, func(ctx context.Context) error {
				return m.remote.Update(ctx, coll, e.ID, c.PatchToWire(e.Patch))
			})
			metrics.RecordMutation(coll, "bulk_update", outcome(err))
			if err != nil {
				mu.Lock()
				failures[i] = err.Error()
				failed++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if failed == 0 {
		m.ec.State.Clear()
		m.log.Debug(ctx, "bulk update confirmed", logger.Int("edits", len(edits)))
		return nil
	}

	msgs := make([]string, 0, failed)
	for _, f := range failures {
		if f != "" {
			msgs = append(msgs, f)
		}
	}
	err := fmt.Errorf("%w: %s", ErrBulkPartial, strings.Join(msgs, "; "))
	m.ec.State.Fail(err)
	m.log.Warn(ctx, "bulk update partially failed",
		logger.Int("edits", len(edits)),
		logger.Int("failed", failed),
		logger.Error(err))
	return err
}

func (m *Mutator[T, P]) succeed(ctx context.Context, op, id string) {
	m.ec.State.Clear()
	metrics.RecordMutation(m.b.Collection(), op, metrics.OutcomeOK)
	m.log.Debug(ctx, "mutation confirmed", logger.String("op", op), logger.String("id", id))
}

func (m *Mutator[T, P]) fail(ctx context.Context, op, id string, cause error) error {
	err := fmt.Errorf("%w: %s %s/%s: %w", ErrWrite, op, m.b.Collection(), id, cause)
	m.ec.State.Fail(err)
	metrics.RecordMutation(m.b.Collection(), op, metrics.OutcomeFailed)
	m.log.Warn(ctx, "mutation failed", logger.String("op", op), logger.String("id", id), logger.Error(cause))
	return err
}

func (m *Mutator[T, P]) rolledBack(ctx context.Context, op, id string) {
	metrics.RecordRollback(m.b.Collection(), op)
	m.log.Debug(ctx, "optimistic apply rolled back", logger.String("op", op), logger.String("id", id))
}

func outcome(err error) string {
	if err != nil {
		return metrics.OutcomeFailed
	}
	return metrics.OutcomeOK
}
