package service

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Resources published on the bus.
const (
	ResourceStyles     = "styles"
	ResourceStories    = "stories"
	ResourceBlocks     = "blocks"
	ResourceReferences = "references"
	ResourceLayers     = "layers"
)

// Actions published on the bus.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Event represents a resource mutation.
type Event struct {
	Resource string    `json:"resource"`
	Action   string    `json:"action"`
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
}

// EventBus is a fan-out pub/sub for resource change events. Slow subscribers
// miss events rather than block publishers.
type EventBus struct {
	mu    sync.RWMutex
	subs  map[chan Event]struct{}
	clock clockwork.Clock
}

// NewEventBus creates an event bus stamping events with clock. A nil clock
// uses the wall clock.
func NewEventBus(clock clockwork.Clock) *EventBus {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &EventBus{subs: make(map[chan Event]struct{}), clock: clock}
}

// Publish sends an event to all subscribers (non-blocking). A nil bus is a
// no-op so services can run without one.
func (b *EventBus) Publish(resource, action, id string) {
	if b == nil {
		return
	}
	e := Event{Resource: resource, Action: action, ID: id, At: b.clock.Now()}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a buffered channel that receives events.
func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers reports the number of live subscriptions.
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
