package streamsink

import (
	"context"
	"sync"
)

// Subscriber reacts to published Updates. Unlike hooks.Bus (which this is
// grounded on), a streamsink Subscriber returning an error never halts
// delivery to the remaining subscribers: this bus is strictly best-effort.
type Subscriber interface {
	HandleUpdate(ctx context.Context, update Update) error
}

// SubscriberFunc adapts a plain function to Subscriber.
type SubscriberFunc func(ctx context.Context, update Update) error

// HandleUpdate calls f.
func (f SubscriberFunc) HandleUpdate(ctx context.Context, update Update) error { return f(ctx, update) }

// Subscription represents an active registration on a Bus. Close is
// idempotent and safe to call multiple times.
type Subscription interface {
	Close()
}

// Bus is an in-memory, fan-out Sink: every registered subscriber receives
// every Update, synchronously in the publisher's goroutine. Subscribers are
// held in a map, so the order in which they are called is not defined. A subscriber error is swallowed (the next subscriber still
// runs); Bus.Send itself always returns nil, since streamsink is
// best-effort by contract.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*subscription]Subscriber
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[*subscription]Subscriber)}
}

type subscription struct {
	bus  *Bus
	once sync.Once
}

func (s *subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s)
		s.bus.mu.Unlock()
	})
}

// Subscribe registers sub and returns a Subscription that can be closed to
// unregister.
func (b *Bus) Subscribe(sub Subscriber) Subscription {
	s := &subscription{bus: b}
	b.mu.Lock()
	b.subscribers[s] = sub
	b.mu.Unlock()
	return s
}

// Send implements Sink by fanning update out to every registered
// subscriber. Errors from individual subscribers are not surfaced; all
// subscribers are always attempted.
func (b *Bus) Send(ctx context.Context, update Update) error {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()
	for _, sub := range subs {
		_ = sub.HandleUpdate(ctx, update)
	}
	return nil
}
