// Package remote defines the contract of the backing data source the
// replica mirrors, and the change fan-out shared by its implementations.
package remote

import (
	"context"

	"github.com/okian/rostersync/internal/domain/types"
)

// Source is the remote collaborator: ordered reads, row writes and a
// row-level change subscription covering every replicated collection.
type Source interface {
	// Select returns every row of collection in the requested order.
	Select(ctx context.Context, collection string, order types.Order) ([]types.Row, error)

	Insert(ctx context.Context, collection string, row types.Row) error

	// Update applies a sparse patch: fields absent from patch are untouched.
	Update(ctx context.Context, collection, id string, patch types.Row) error

	Delete(ctx context.Context, collection, id string) error

	// Subscribe starts delivering change notifications. Delivery is
	// at-least-once and ordered per record, not across collections.
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription is a live change feed.
type Subscription interface {
	// Changes is closed once the subscription ends.
	Changes() <-chan types.Change
	Close() error
}
