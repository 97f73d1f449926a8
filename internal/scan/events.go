package scan

import (
	"sync"
	"time"
)

// EventType discriminates Event.
type EventType string

const (
	EventState    EventType = "state"
	EventProgress EventType = "progress"
	EventOutcome  EventType = "outcome"
	EventSession  EventType = "session"
	EventMode     EventType = "mode"
)

// Event is one notification on the controller's stream.
type Event struct {
	Type      EventType `json:"type"`
	Time      time.Time `json:"time"`
	State     string    `json:"state,omitempty"`
	Progress  float64   `json:"progress,omitempty"`
	Outcome   *Outcome  `json:"outcome,omitempty"`
	Mode      Mode      `json:"mode,omitempty"`
	Active    bool      `json:"active"`
	AttemptID string    `json:"attemptId,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
}

const subscriberBuffer = 32

// broker fans events out to subscribers. Slow subscribers lose events rather
// than stall an attempt.
type broker struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func (b *broker) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[chan Event]struct{})
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *broker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
