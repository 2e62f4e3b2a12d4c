package input

import "time"

// TouchEvent is a single touch edge read from the touchscreen.
type TouchEvent struct {
	// Timestamp is the monotonic read time of the event.
	Timestamp time.Time
	// TouchDown is true for a finger-down edge, false for finger-up.
	TouchDown bool
}

// EventSource produces a stream of touch events from one input device.
// NextEvent blocks until an event is available, the stream ends, or the
// device read fails.
type EventSource interface {
	NextEvent() (TouchEvent, error)
	Close() error
}
