package orchestrator

import (
	"sync"
	"time"
)

// Event is one lifecycle notification pushed to event stream subscribers.
type Event struct {
	Type      string      `json:"type"` // "decision", "responses", "feedback", "state"
	RequestID string      `json:"request_id"`
	State     string      `json:"state"`
	Payload   interface{} `json:"payload,omitempty"`
	At        time.Time   `json:"at"`
}

// eventBus fans events out to subscribers. Slow subscribers drop events
// rather than stalling request handling.
type eventBus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[int]chan Event)}
}

func (b *eventBus) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, 32)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

func (b *eventBus) publish(ev Event) {
	ev.At = time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
