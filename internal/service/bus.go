package service

import (
	"sync"
	"sync/atomic"
	"time"
)

// ResourceLayers is the resource name of layer events.
const ResourceLayers = "layers"

// Event is a catalog mutation. An empty ID means every resource of the kind.
type Event struct {
	Resource string    `json:"resource"`
	Action   string    `json:"action"` // created, updated, deleted, reloaded
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
}

// EventBus fans catalog events out to subscribers. Delivery never blocks the
// publisher: a subscriber whose buffer is full misses the event.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[chan Event]struct{}
	dropped atomic.Int64
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]struct{})}
}

// Publish stamps e and offers it to every subscriber.
func (b *EventBus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel buffering up to 16 events.
func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes ch and closes it.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}

// Dropped is the number of deliveries skipped because a subscriber was full.
func (b *EventBus) Dropped() int64 {
	return b.dropped.Load()
}
