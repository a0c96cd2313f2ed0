// Package inflight tracks remote writes issued by this replica so that the
// change notifications they cause are not applied a second time.
package inflight

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/rostersync/pkg/metrics"
)

// Mode selects how an in-flight write suppresses change events.
type Mode string

const (
	// Keyed suppresses only events for the collection/id pairs being written.
	Keyed Mode = "keyed"
	// Global suppresses every event while any write is in flight.
	Global Mode = "global"
)

// Token identifies one registered write. The zero Token is inert.
type Token struct {
	seq uint64
	key string
}

// Tracker records in-flight writes.
type Tracker interface {
	// Begin registers a write to collection/id and returns its token.
	Begin(ctx context.Context, collection, id string) Token

	// End releases the token. Releasing the same token twice is a no-op.
	End(ctx context.Context, tok Token)

	// Suppressed reports whether an event for collection/id must be dropped.
	Suppressed(ctx context.Context, collection, id string) bool

	Size() int64
}

type tracker struct {
	mu     sync.Mutex
	mode   Mode
	refs   map[string]int    // key -> outstanding writes
	tokens map[uint64]string // live token seq -> key
	seq    uint64
	size   atomic.Int64
}

// NewTracker creates a tracker. The default mode is Keyed.
func NewTracker(opts ...Option) Tracker {
	t := &tracker{
		mode:   Keyed,
		refs:   make(map[string]int),
		tokens: make(map[uint64]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func key(collection, id string) string {
	return collection + "/" + id
}

func (t *tracker) Begin(_ context.Context, collection, id string) Token {
	k := key(collection, id)

	t.mu.Lock()
	t.seq++
	tok := Token{seq: t.seq, key: k}
	t.tokens[tok.seq] = k
	t.refs[k]++
	n := t.size.Add(1)
	t.mu.Unlock()

	metrics.UpdateInflightWrites(n)
	return tok
}

func (t *tracker) End(_ context.Context, tok Token) {
	if tok.seq == 0 {
		return
	}

	t.mu.Lock()
	k, live := t.tokens[tok.seq]
	if !live {
		t.mu.Unlock()
		return
	}
	delete(t.tokens, tok.seq)
	if t.refs[k] <= 1 {
		delete(t.refs, k)
	} else {
		t.refs[k]--
	}
	n := t.size.Add(-1)
	t.mu.Unlock()

	metrics.UpdateInflightWrites(n)
}

func (t *tracker) Suppressed(_ context.Context, collection, id string) bool {
	if t.mode == Global {
		return t.size.Load() > 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refs[key(collection, id)] > 0
}

func (t *tracker) Size() int64 {
	return t.size.Load()
}
