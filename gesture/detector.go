package gesture

import (
	"fmt"
	"time"

	"github.com/kiosk-next/kioskd/input"
	"github.com/kiosk-next/kioskd/utils"
)

// Config holds the unlock gesture parameters.
type Config struct {
	// TargetTaps is the number of touch-down events that confirm the gesture.
	TargetTaps int
	// Window is how long the operator has to reach TargetTaps.
	Window time.Duration
}

func (c Config) Validate() error {
	if c.TargetTaps <= 0 {
		return fmt.Errorf("target tap count must be positive, got %d", c.TargetTaps)
	}
	if c.Window <= 0 {
		return fmt.Errorf("gesture window must be positive, got %s", c.Window)
	}
	return nil
}

// Kind tags how a detection run ended.
type Kind int

const (
	// Confirmed means the tap target was reached inside the window.
	Confirmed Kind = iota
	// TimedOut means the window elapsed before the target was reached.
	TimedOut
	// SourceFailed means the event source failed before any outcome.
	SourceFailed
)

func (k Kind) String() string {
	switch k {
	case Confirmed:
		return "confirmed"
	case TimedOut:
		return "timed_out"
	case SourceFailed:
		return "source_failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the terminal result of one detection run. Exactly one Outcome
// is produced per call to Detect.
type Outcome struct {
	Kind     Kind
	TapCount int
	Elapsed  time.Duration
	// Err is set only for SourceFailed.
	Err error
}

type delivery struct {
	ev  input.TouchEvent
	err error
}

// Detect runs a single detection pass: it counts touch-down events from src
// and races the count against a deadline armed for cfg.Window.
//
// The count check precedes the window check for each event, so a tap that
// reaches the target exactly at the window boundary confirms the gesture.
// When the deadline fires, events that arrived before it are drained and
// processed first, so event arrival order wins ties against the timer.
func Detect(src input.EventSource, cfg Config) Outcome {
	if err := cfg.Validate(); err != nil {
		return Outcome{Kind: SourceFailed, Err: err}
	}

	start := time.Now()
	timer := time.NewTimer(cfg.Window)
	defer timer.Stop()

	events := make(chan delivery)
	done := make(chan struct{})
	defer close(done)

	// the reader owns the blocking device read; it stops on the first source
	// error or once the detector has produced its outcome
	go func() {
		for {
			ev, err := src.NextEvent()
			select {
			case events <- delivery{ev: ev, err: err}:
				if err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	return consume(events, timer.C, cfg, start)
}

// consume counts touch-down deliveries against the deadline and returns the
// single terminal outcome. Elapsed times come from event timestamps relative
// to start when the source provides them.
func consume(events <-chan delivery, deadline <-chan time.Time, cfg Config, start time.Time) Outcome {
	taps := 0

	process := func(d delivery) (Outcome, bool) {
		if d.err != nil {
			return Outcome{Kind: SourceFailed, TapCount: taps, Elapsed: time.Since(start), Err: d.err}, true
		}
		if !d.ev.TouchDown {
			return Outcome{}, false
		}

		elapsed := time.Since(start)
		if !d.ev.Timestamp.IsZero() {
			elapsed = d.ev.Timestamp.Sub(start)
		}

		if elapsed <= cfg.Window {
			taps++
			utils.Verbose("touch %d/%d at %.2fs", taps, cfg.TargetTaps, elapsed.Seconds())
			if taps >= cfg.TargetTaps {
				return Outcome{Kind: Confirmed, TapCount: taps, Elapsed: elapsed}, true
			}
			return Outcome{}, false
		}
		return Outcome{Kind: TimedOut, TapCount: taps, Elapsed: elapsed}, true
	}

	for {
		select {
		case d := <-events:
			if out, final := process(d); final {
				return out
			}
		case <-deadline:
			// events that raced the deadline are processed first
			for {
				select {
				case d := <-events:
					if out, final := process(d); final {
						return out
					}
				default:
					return Outcome{Kind: TimedOut, TapCount: taps, Elapsed: cfg.Window}
				}
			}
		}
	}
}
