// Package repository holds the in-memory replica: one ordered, id-keyed
// collection per replicated table.
package repository

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/rostersync/pkg/metrics"
)

// snapshot is an immutable view of a collection. Writers build a new one
// and publish it atomically; readers never see a half-applied change.
type snapshot[T any] struct {
	items []T
	index map[string]int
}

// Collection is an ordered set of records with unique keys.
//
// Absent targets are silent no-ops for every operation: change events may
// arrive out of order and the store tolerates them.
type Collection[T any] struct {
	name string
	key  func(T) string
	less func(a, b T) bool

	mu   sync.Mutex // serializes writers
	snap atomic.Pointer[snapshot[T]]
}

// NewCollection creates an empty collection. less ranks records for
// ordered insertion; a nil less prepends every new record.
func NewCollection[T any](name string, key func(T) string, less func(a, b T) bool) *Collection[T] {
	c := &Collection[T]{name: name, key: key, less: less}
	c.snap.Store(&snapshot[T]{index: map[string]int{}})
	return c
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// ReplaceAll discards the contents and installs records in the given order.
// Later duplicates of an id are dropped.
func (c *Collection[T]) ReplaceAll(_ context.Context, records []T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]T, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		id := c.key(rec)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		items = append(items, rec)
	}
	c.publish(items)
}

// Insert adds rec before the first record it ranks ahead of. It reports
// false and changes nothing if the id is already present.
func (c *Collection[T]) Insert(_ context.Context, rec T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.snap.Load()
	if _, ok := cur.index[c.key(rec)]; ok {
		return false
	}
	c.publish(slices.Insert(slices.Clone(cur.items), c.position(cur.items, rec), rec))
	return true
}

func (c *Collection[T]) position(items []T, rec T) int {
	if c.less == nil {
		return 0
	}
	for i, it := range items {
		if c.less(rec, it) {
			return i
		}
	}
	return len(items)
}

// Update replaces the record with the same id in place and returns the
// previous value. It reports false if the id is absent.
func (c *Collection[T]) Update(_ context.Context, rec T) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var prev T
	cur := c.snap.Load()
	i, ok := cur.index[c.key(rec)]
	if !ok {
		return prev, false
	}
	prev = cur.items[i]
	items := slices.Clone(cur.items)
	items[i] = rec
	c.publish(items)
	return prev, true
}

// Modify replaces the record with the given id by fn applied to its
// current value, in place and under the writer lock, so a concurrent
// writer cannot land between the read and the write. It reports false
// and does not call fn if the id is absent. fn must keep the id.
func (c *Collection[T]) Modify(_ context.Context, id string, fn func(T) T) (prev, next T, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.snap.Load()
	i, ok := cur.index[id]
	if !ok {
		return prev, next, false
	}
	prev = cur.items[i]
	next = fn(prev)
	items := slices.Clone(cur.items)
	items[i] = next
	c.publish(items)
	return prev, next, true
}

// Delete removes the record with the given id and returns it with its
// former position. It reports false if the id is absent.
func (c *Collection[T]) Delete(_ context.Context, id string) (T, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var prev T
	cur := c.snap.Load()
	i, ok := cur.index[id]
	if !ok {
		return prev, -1, false
	}
	prev = cur.items[i]
	c.publish(slices.Delete(slices.Clone(cur.items), i, i+1))
	return prev, i, true
}

// Restore re-inserts rec at index, clamped to the current bounds. It
// reports false if the id is already present.
func (c *Collection[T]) Restore(_ context.Context, rec T, index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.snap.Load()
	if _, ok := cur.index[c.key(rec)]; ok {
		return false
	}
	index = max(0, min(index, len(cur.items)))
	c.publish(slices.Insert(slices.Clone(cur.items), index, rec))
	return true
}

// Get returns the record with the given id.
func (c *Collection[T]) Get(_ context.Context, id string) (T, bool) {
	cur := c.snap.Load()
	i, ok := cur.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	return cur.items[i], true
}

// Index returns the position of id, or -1.
func (c *Collection[T]) Index(_ context.Context, id string) int {
	if i, ok := c.snap.Load().index[id]; ok {
		return i
	}
	return -1
}

// List returns a copy of the records in collection order.
func (c *Collection[T]) List(_ context.Context) []T {
	return slices.Clone(c.snap.Load().items)
}

// Len returns the number of records.
func (c *Collection[T]) Len() int {
	return len(c.snap.Load().items)
}

// publish installs items as the new snapshot. Caller holds c.mu.
func (c *Collection[T]) publish(items []T) {
	start := time.Now()
	index := make(map[string]int, len(items))
	for i, it := range items {
		index[c.key(it)] = i
	}
	c.snap.Store(&snapshot[T]{items: items, index: index})

	metrics.UpdateReplicaRecords(c.name, len(items))
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
}
