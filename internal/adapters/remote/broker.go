package remote

import (
	"context"
	"sync"

	"github.com/okian/rostersync/internal/domain/types"
	"github.com/okian/rostersync/pkg/metrics"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 1024

// Broker fans change notifications out to subscribers. A subscriber whose
// buffer is full misses the change; it is counted and dropped.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	next   uint64
	buffer int
	closed bool
}

// NewBroker creates a broker with the given per-subscriber buffer.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{subs: make(map[uint64]*subscription), buffer: buffer}
}

// Subscribe registers a subscriber. It ends when ctx is done, when Close is
// called on it, or when the broker is closed.
func (b *Broker) Subscribe(ctx context.Context) (Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.next++
	s := &subscription{
		id:     b.next,
		broker: b,
		ch:     make(chan types.Change, b.buffer),
		done:   make(chan struct{}),
	}
	b.subs[s.id] = s
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

// Publish delivers ch to every subscriber without blocking.
func (b *Broker) Publish(ch types.Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		select {
		case s.ch <- ch:
		default:
			metrics.RecordSubscriptionDrop()
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription and rejects new ones.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		_ = s.Close()
	}
}

func (b *Broker) remove(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s.id]; ok {
		delete(b.subs, s.id)
		close(s.ch)
	}
}

type subscription struct {
	id     uint64
	broker *Broker
	ch     chan types.Change
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Changes() <-chan types.Change { return s.ch }

func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.broker.remove(s)
	})
	return nil
}
