package events

import (
	"context"
	"log"
	"sync"
)

// MemoryBus is an in-process EventBus used when EventStoreDB is not
// reachable (single-node deployments, tests). Delivery is synchronous
// in the publisher's goroutine: by the time Publish returns, every
// matching handler has run. Handler errors are logged, never returned
// to the publisher, matching the at-least-once semantics of the real
// bus.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   []memorySubscription
	closed bool
}

type memorySubscription struct {
	pattern  string
	consumer string
	handler  Handler
}

// NewMemoryBus creates an in-process event bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Publish delivers the event to every subscription whose pattern
// matches the event type.
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil
	}
	matched := make([]memorySubscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if matchesPattern(event.Type, sub.pattern) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matched {
		if err := sub.handler(ctx, event); err != nil {
			log.Printf("Handler error for event %s (consumer %s): %v", event.ID, sub.consumer, err)
		}
	}
	return nil
}

// Subscribe registers a handler for events matching the pattern.
func (b *MemoryBus) Subscribe(ctx context.Context, pattern string, consumerName string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, memorySubscription{
		pattern:  pattern,
		consumer: consumerName,
		handler:  handler,
	})
	return nil
}

// Close drops all subscriptions.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = nil
}

// Health always reports healthy; the bus lives in this process.
func (b *MemoryBus) Health() error {
	return nil
}
