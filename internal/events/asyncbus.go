package events

import "sync"

// KeyFunc extracts the coalescing key (typically a market_id or event_id)
// an AsyncBus uses to decide what to drop under backpressure.
type KeyFunc func(Event) string

// AsyncBus is the bounded, non-blocking variant of Bus for the hot
// price/signal path (spec §5). Each publish never blocks the caller: if the
// consumer is behind, a newer event for the same key replaces the pending
// one rather than queuing, so the dispatcher always catches up on the
// latest state instead of working through a backlog of stale prices.
type AsyncBus struct {
	key KeyFunc

	mu      sync.Mutex
	pending map[string]Event
	order   []string
	waiting map[string]bool
	notify  chan struct{}

	subMu    sync.RWMutex
	handlers map[Type][]Handler

	closeOnce sync.Once
	done      chan struct{}
}

// NewAsyncBus constructs an AsyncBus and starts its single dispatch
// goroutine. key is used to coalesce backpressure; callers whose events
// have no natural key can pass a KeyFunc that returns e.ID to disable
// coalescing (every event gets its own slot).
func NewAsyncBus(key KeyFunc) *AsyncBus {
	b := &AsyncBus{
		key:      key,
		pending:  make(map[string]Event),
		waiting:  make(map[string]bool),
		notify:   make(chan struct{}, 1),
		handlers: make(map[Type][]Handler),
		done:     make(chan struct{}),
	}
	go b.dispatchLoop()
	return b
}

// Subscribe registers a handler for a given event type. Not safe to call
// concurrently with Publish for the same type beyond Go's usual memory
// model guarantees; register all handlers before Start-ing producers.
func (b *AsyncBus) Subscribe(t Type, h Handler) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// Publish never blocks. If a pending event already sits under the same key,
// it is overwritten; the dispatcher only ever sees the most recent one.
func (b *AsyncBus) Publish(e Event) {
	k := b.key(e)

	b.mu.Lock()
	if _, exists := b.pending[k]; !exists {
		b.order = append(b.order, k)
	}
	b.pending[k] = e
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Close stops the dispatch goroutine. Already-queued events are dropped.
func (b *AsyncBus) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

func (b *AsyncBus) dispatchLoop() {
	for {
		select {
		case <-b.done:
			return
		case <-b.notify:
		}

		for {
			e, ok := b.popOne()
			if !ok {
				break
			}
			b.subMu.RLock()
			handlers := b.handlers[e.Type]
			b.subMu.RUnlock()
			for _, h := range handlers {
				if err := h(e); err != nil {
					_ = err // logged upstream by the handler itself
				}
			}
		}
	}
}

func (b *AsyncBus) popOne() (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.order) == 0 {
		return Event{}, false
	}
	k := b.order[0]
	b.order = b.order[1:]
	e, ok := b.pending[k]
	delete(b.pending, k)
	return e, ok
}
