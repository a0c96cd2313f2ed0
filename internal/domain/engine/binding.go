package engine

import (
	"context"

	"github.com/okian/rostersync/internal/domain/codec"
	"github.com/okian/rostersync/internal/domain/types"
)

// Store is the replica collection an engine binding writes to.
type Store[T any] interface {
	ReplaceAll(ctx context.Context, records []T)
	Insert(ctx context.Context, rec T) bool
	Update(ctx context.Context, rec T) (T, bool)
	Modify(ctx context.Context, id string, fn func(T) T) (prev, next T, ok bool)
	Delete(ctx context.Context, id string) (T, int, bool)
	Restore(ctx context.Context, rec T, index int) bool
	Get(ctx context.Context, id string) (T, bool)
	List(ctx context.Context) []T
	Len() int
}

// Applier applies a transcoded change event to one collection.
type Applier interface {
	Collection() string
	Apply(ctx context.Context, ch types.Change) Outcome
}

// Loader prepares one collection's bootstrap contents.
type Loader interface {
	Collection() string
	Order() types.Order
	// Prepare transcodes rows and returns the function that installs them.
	Prepare(rows []types.Row) func(context.Context)
}

// Binding ties a collection codec to its replica store.
type Binding[T, P any] struct {
	codec codec.Codec[T, P]
	store Store[T]
}

// NewBinding binds c to s.
func NewBinding[T, P any](c codec.Codec[T, P], s Store[T]) *Binding[T, P] {
	return &Binding[T, P]{codec: c, store: s}
}

func (b *Binding[T, P]) Collection() string { return b.codec.Collection() }

func (b *Binding[T, P]) Order() types.Order { return b.codec.DefaultOrder() }

func (b *Binding[T, P]) Prepare(rows []types.Row) func(context.Context) {
	records := make([]T, 0, len(rows))
	for _, row := range rows {
		records = append(records, b.codec.ToLocal(row))
	}
	return func(ctx context.Context) { b.store.ReplaceAll(ctx, records) }
}

func (b *Binding[T, P]) Apply(ctx context.Context, ch types.Change) Outcome {
	switch ch.Kind {
	case types.Insert:
		if ch.New.ID() == "" {
			return OutcomeIgnored
		}
		if b.store.Insert(ctx, b.codec.ToLocal(ch.New)) {
			return OutcomeApplied
		}
	case types.Update:
		if ch.New.ID() == "" {
			return OutcomeIgnored
		}
		if _, ok := b.store.Update(ctx, b.codec.ToLocal(ch.New)); ok {
			return OutcomeApplied
		}
	case types.Delete:
		if _, _, ok := b.store.Delete(ctx, ch.RecordID()); ok {
			return OutcomeApplied
		}
	default:
		return OutcomeUnknown
	}
	return OutcomeIgnored
}

// List returns the collection's records in order.
func (b *Binding[T, P]) List(ctx context.Context) []T { return b.store.List(ctx) }

// Get returns one record by id.
func (b *Binding[T, P]) Get(ctx context.Context, id string) (T, bool) { return b.store.Get(ctx, id) }

// Codec returns the binding's transcoder.
func (b *Binding[T, P]) Codec() codec.Codec[T, P] { return b.codec }
