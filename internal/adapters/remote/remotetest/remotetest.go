// Package remotetest provides an in-memory remote.Source with failure
// injection and manual change emission for tests.
package remotetest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/okian/rostersync/internal/adapters/remote"
	"github.com/okian/rostersync/internal/domain/types"
)

// Op names a remote operation.
type Op string

const (
	OpSelect Op = "select"
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Call describes one operation issued against the fake.
type Call struct {
	Op         Op
	Collection string
	ID         string
	Row        types.Row
}

// Interceptor runs before a call is served. A non-nil error fails the call.
type Interceptor func(ctx context.Context, c Call) error

// Source is an in-memory remote.Source.
type Source struct {
	mu        sync.Mutex
	tables    map[string][]types.Row
	calls     []Call
	intercept []Interceptor
	publish   bool
	broker    *remote.Broker
}

var _ remote.Source = (*Source)(nil)

// New creates an empty fake that publishes a change for every successful write.
func New() *Source {
	s := &Source{
		tables:  make(map[string][]types.Row),
		publish: true,
		broker:  remote.NewBroker(remote.DefaultBuffer),
	}
	for _, c := range types.Collections() {
		s.tables[c] = nil
	}
	return s
}

// Quiet stops publishing changes for successful writes.
func (s *Source) Quiet() *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish = false
	return s
}

// Seed appends rows to collection without publishing changes.
func (s *Source) Seed(collection string, rows ...types.Row) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.tables[collection] = append(s.tables[collection], r.Clone())
	}
	return s
}

// Intercept registers fn to run before every call.
func (s *Source) Intercept(fn Interceptor) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intercept = append(s.intercept, fn)
	return s
}

// FailOn fails every op against collection with err. An empty collection
// matches all collections.
func (s *Source) FailOn(op Op, collection string, err error) *Source {
	return s.Intercept(func(_ context.Context, c Call) error {
		if c.Op == op && (collection == "" || c.Collection == collection) {
			return err
		}
		return nil
	})
}

// FailID fails every op targeting collection/id with err.
func (s *Source) FailID(op Op, collection, id string, err error) *Source {
	return s.Intercept(func(_ context.Context, c Call) error {
		if c.Op == op && c.Collection == collection && c.ID == id {
			return err
		}
		return nil
	})
}

// Emit publishes a change as if it came from another client.
func (s *Source) Emit(ch types.Change) {
	s.broker.Publish(ch)
}

// Rows returns a copy of collection's rows in storage order.
func (s *Source) Rows(collection string) []types.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Row, len(s.tables[collection]))
	for i, r := range s.tables[collection] {
		out[i] = r.Clone()
	}
	return out
}

// Calls returns every call served or failed so far.
func (s *Source) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsOf returns the calls with the given op.
func (s *Source) CallsOf(op Op) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Subscribers returns the number of live subscriptions.
func (s *Source) Subscribers() int {
	return s.broker.Subscribers()
}

// Close ends every subscription.
func (s *Source) Close() {
	s.broker.Close()
}

func (s *Source) before(ctx context.Context, c Call) error {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	hooks := append([]Interceptor(nil), s.intercept...)
	s.mu.Unlock()

	for _, fn := range hooks {
		if err := fn(ctx, c); err != nil {
			return err
		}
	}
	if !types.IsCollection(c.Collection) {
		return fmt.Errorf("%w: %s", remote.ErrUnknownCollection, c.Collection)
	}
	return nil
}

func (s *Source) Select(ctx context.Context, collection string, order types.Order) ([]types.Row, error) {
	if err := s.before(ctx, Call{Op: OpSelect, Collection: collection}); err != nil {
		return nil, err
	}
	rows := s.Rows(collection)
	remote.SortRows(rows, order)
	return rows, nil
}

func (s *Source) Insert(ctx context.Context, collection string, row types.Row) error {
	id := row.ID()
	if err := s.before(ctx, Call{Op: OpInsert, Collection: collection, ID: id, Row: row.Clone()}); err != nil {
		return err
	}
	if id == "" {
		return remote.ErrMissingID
	}

	s.mu.Lock()
	if s.find(collection, id) >= 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", remote.ErrConflict, collection, id)
	}
	s.tables[collection] = append(s.tables[collection], row.Clone())
	publish := s.publish
	s.mu.Unlock()

	if publish {
		s.broker.Publish(types.Change{Collection: collection, Kind: types.Insert, New: row.Clone()})
	}
	return nil
}

func (s *Source) Update(ctx context.Context, collection, id string, patch types.Row) error {
	if err := s.before(ctx, Call{Op: OpUpdate, Collection: collection, ID: id, Row: patch.Clone()}); err != nil {
		return err
	}

	s.mu.Lock()
	i := s.find(collection, id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", remote.ErrNotFound, collection, id)
	}
	old := s.tables[collection][i]
	next := remote.Merge(old, patch)
	next[types.IDField] = old[types.IDField]
	s.tables[collection][i] = next
	publish := s.publish
	s.mu.Unlock()

	if publish {
		s.broker.Publish(types.Change{Collection: collection, Kind: types.Update, New: next.Clone(), Old: old.Clone()})
	}
	return nil
}

func (s *Source) Delete(ctx context.Context, collection, id string) error {
	if err := s.before(ctx, Call{Op: OpDelete, Collection: collection, ID: id}); err != nil {
		return err
	}

	s.mu.Lock()
	i := s.find(collection, id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", remote.ErrNotFound, collection, id)
	}
	old := s.tables[collection][i]
	s.tables[collection] = append(s.tables[collection][:i:i], s.tables[collection][i+1:]...)
	publish := s.publish
	s.mu.Unlock()

	if publish {
		s.broker.Publish(types.Change{Collection: collection, Kind: types.Delete, Old: old.Clone()})
	}
	return nil
}

func (s *Source) Subscribe(ctx context.Context) (remote.Subscription, error) {
	return s.broker.Subscribe(ctx)
}

// find returns the index of id in collection. Caller holds s.mu.
func (s *Source) find(collection, id string) int {
	for i, r := range s.tables[collection] {
		if r.ID() == id {
			return i
		}
	}
	return -1
}

// ErrInjected is a ready-made failure for FailOn and FailID.
var ErrInjected = errors.New("injected remote failure")
