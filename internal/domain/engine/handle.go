package engine

import (
	"context"

	"github.com/okian/rostersync/internal/domain/types"
)

// Handle is a collection's consumer surface in wire form, for callers that
// do not know the collection's Go types.
type Handle interface {
	Collection() string
	List(ctx context.Context) []types.Row
	Get(ctx context.Context, id string) (types.Row, bool)
	Create(ctx context.Context, row types.Row) (types.Row, error)
	// Update returns nil when the record is not held locally.
	Update(ctx context.Context, id string, patch types.Row) (types.Row, error)
	Delete(ctx context.Context, id string) error
	BulkUpdate(ctx context.Context, edits []types.Edit) error
}

type rowHandle[T, P any] struct {
	m *Mutator[T, P]
}

// Rows returns the wire-form handle of the mutator's collection.
func (m *Mutator[T, P]) Rows() Handle {
	return rowHandle[T, P]{m: m}
}

func (h rowHandle[T, P]) Collection() string { return h.m.Collection() }

func (h rowHandle[T, P]) List(ctx context.Context) []types.Row {
	c := h.m.b.codec
	recs := h.m.b.store.List(ctx)
	rows := make([]types.Row, len(recs))
	for i, r := range recs {
		rows[i] = c.ToWire(r)
	}
	return rows
}

func (h rowHandle[T, P]) Get(ctx context.Context, id string) (types.Row, bool) {
	rec, ok := h.m.b.store.Get(ctx, id)
	if !ok {
		return nil, false
	}
	return h.m.b.codec.ToWire(rec), true
}

func (h rowHandle[T, P]) Create(ctx context.Context, row types.Row) (types.Row, error) {
	c := h.m.b.codec
	rec, err := h.m.Create(ctx, c.ToLocal(row))
	return c.ToWire(rec), err
}

func (h rowHandle[T, P]) Update(ctx context.Context, id string, patch types.Row) (types.Row, error) {
	c := h.m.b.codec
	rec, err := h.m.Update(ctx, id, c.PatchFromWire(patch))
	if c.Key(rec) == "" {
		return nil, err
	}
	return c.ToWire(rec), err
}

func (h rowHandle[T, P]) Delete(ctx context.Context, id string) error {
	return h.m.Delete(ctx, id)
}

func (h rowHandle[T, P]) BulkUpdate(ctx context.Context, edits []types.Edit) error {
	c := h.m.b.codec
	typed := make([]Edit[P], len(edits))
	for i, e := range edits {
		typed[i] = Edit[P]{ID: e.ID, Patch: c.PatchFromWire(e.Patch)}
	}
	return h.m.BulkUpdate(ctx, typed)
}
