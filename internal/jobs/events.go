package jobs

import (
	"sync"
	"time"

	"github.com/nadzzz/podcastd/internal/podcast"
)

// Event records one job transition.
type Event struct {
	Seq       int64          `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	JobID     string         `json:"task_id"`
	ClientID  string         `json:"auth_id"`
	Status    podcast.Status `json:"status"`
	Error     string         `json:"error,omitempty"`
}

// EventBus fans transitions out to per-client subscribers.
type EventBus struct {
	mu      sync.RWMutex
	nextSeq int64
	subs    map[string]map[chan Event]struct{}
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[string]map[chan Event]struct{})}
}

// Publish assigns the sequence number and timestamp and delivers the event to
// the client's subscribers. Slow subscribers miss events rather than block
// the publisher.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	for ch := range b.subs[event.ClientID] {
		select {
		case ch <- event:
		default:
		}
	}
	return event
}

// Subscribe returns a channel receiving clientID's future events and a
// function that unsubscribes and closes it.
func (b *EventBus) Subscribe(clientID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	b.mu.Lock()
	if b.subs[clientID] == nil {
		b.subs[clientID] = make(map[chan Event]struct{})
	}
	b.subs[clientID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[clientID], ch)
			if len(b.subs[clientID]) == 0 {
				delete(b.subs, clientID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}
