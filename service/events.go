package service

import (
	"sync"
	"time"
)

// EventType tags the events the controller publishes while arbitrating the
// foreground application.
type EventType string

const (
	EventStateChanged   EventType = "state_changed"
	EventGestureOutcome EventType = "gesture_outcome"
	EventAppLaunching   EventType = "app_launching"
	EventAppExited      EventType = "app_exited"
	EventLaunchFailed   EventType = "launch_failed"
	EventRetryScheduled EventType = "retry_scheduled"
)

// Event is one observable step of the supervision lifecycle, streamed to
// websocket subscribers.
type Event struct {
	Type     EventType `json:"type"`
	Time     time.Time `json:"time"`
	State    State     `json:"state,omitempty"`
	App      string    `json:"app,omitempty"`
	RunID    string    `json:"runId,omitempty"`
	TapCount int       `json:"tapCount,omitempty"`
	ExitCode int       `json:"exitCode,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

const subscriberBuffer = 16

// eventBus fans controller events out to subscribers. Slow subscribers drop
// events rather than stalling supervision.
type eventBus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[int]chan Event)}
}

func (b *eventBus) subscribe() (int, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch
	return id, ch
}

func (b *eventBus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *eventBus) publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
