// Package eventbus dispatches the derived-effect events the Coordinator
// emits (persisted inserts/upserts, classification assignments,
// contradiction and violation edges) to in-process handlers and to
// bounded subscriber channels.
//
// The dispatch-loop shape — priority-sorted handlers, resilient to a
// single handler's error, sorted lazily on each Publish — is grounded
// on the teacher's internal/eventbus/bus.go. The teacher dispatches
// synchronously and stops there; this bus additionally fans each event
// out to bounded subscriber channels with blocking sends, which is what
// spec.md §5's "multi-producer, multi-consumer, lossless, with
// backpressure: if consumers fall behind, producers block rather than
// drop" requires.
package eventbus

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Bus dispatches events to registered handlers and bounded subscriber
// channels.
type Bus struct {
	mu          sync.RWMutex
	handlers    []Handler
	subscribers map[int]chan *Event
	nextSubID   int
}

// New creates an empty event bus.
func New() *Bus {
	return &Bus{subscribers: make(map[int]chan *Event)}
}

// Register adds a handler to the bus. Handlers are sorted by priority on
// each Publish call, so registration order does not matter.
func (b *Bus) Register(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Unregister removes a handler by ID. Returns true if a handler was removed.
func (b *Bus) Unregister(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.handlers {
		if h.ID() == id {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Subscribe returns a channel that receives every event published after
// this call, with capacity buffer. A slow or stalled consumer causes
// Publish to block rather than drop events once the buffer fills — the
// bounded-channel lossless-backpressure model spec.md §5 mandates.
// Unsubscribe must be called to release the channel and stop blocking
// Publish on it.
func (b *Bus) Subscribe(buffer int) (ch <-chan *Event, unsubscribe func()) {
	b.mu.Lock()
	id := b.nextSubID
	b.nextSubID++
	out := make(chan *Event, buffer)
	b.subscribers[id] = out
	b.mu.Unlock()

	return out, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(c)
		}
	}
}

// Publish runs matching handlers in priority order, then fans the event
// out to every subscriber channel. Handler errors are logged but do not
// stop the chain. Publish blocks on a full subscriber channel until it
// has room or ctx is cancelled.
func (b *Bus) Publish(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("eventbus: nil event")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	b.mu.RLock()
	matching := b.matchingHandlers(event.Type)
	subs := make([]chan *Event, 0, len(b.subscribers))
	for _, c := range b.subscribers {
		subs = append(subs, c)
	}
	b.mu.RUnlock()

	for _, h := range matching {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("eventbus: context canceled: %w", err)
		}
		if err := h.Handle(ctx, event); err != nil {
			log.Printf("eventbus: handler %q error for %s: %v", h.ID(), event.Type, err)
		}
	}

	for _, c := range subs {
		select {
		case c <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// Handlers returns all registered handlers, for introspection.
func (b *Bus) Handlers() []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, len(b.handlers))
	copy(out, b.handlers)
	return out
}

// matchingHandlers returns handlers that handle eventType, sorted by
// priority (lowest first). Must be called with at least a read lock held.
func (b *Bus) matchingHandlers(eventType EventType) []Handler {
	var matched []Handler
	for _, h := range b.handlers {
		for _, t := range h.Handles() {
			if t == eventType {
				matched = append(matched, h)
				break
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Priority() < matched[j].Priority()
	})
	return matched
}
