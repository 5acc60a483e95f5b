// Package events implements the typed pub/sub bus components use to talk
// to each other, plus a bounded async variant for the price/signal hot
// path (spec §5).
package events

import "sync"

// Handler processes an event. Returning an error logs it but does not stop
// dispatch to the remaining subscribers.
type Handler func(Event) error

// Bus is a synchronous in-process event bus. Subscribers are invoked in
// registration order, on the publisher's goroutine. Handlers that need to
// avoid blocking the publisher should hand off to their own
// channel/goroutine (see the event shard's inbox pattern).
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Type][]Handler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// Publish dispatches an event to all registered handlers for its type.
// One bad handler's error does not block the others.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := b.handlers[e.Type]
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(e); err != nil {
			_ = err // logged upstream by the handler itself; bus stays unopinionated
		}
	}
}
