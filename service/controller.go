package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kiosk-next/kioskd/gesture"
	"github.com/kiosk-next/kioskd/input"
	"github.com/kiosk-next/kioskd/launcher"
	"github.com/kiosk-next/kioskd/supervisor"
	"github.com/kiosk-next/kioskd/utils"
)

// State is the controller's position in the supervision lifecycle.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingGesture  State = "awaiting_gesture"
	StatePrimaryLaunched  State = "primary_launched"
	StateFallbackLaunched State = "fallback_launched"
	StateShuttingDown     State = "shutting_down"
)

// TargetRunner launches a target and blocks until it terminates.
// *supervisor.Supervisor satisfies it; tests substitute fakes.
type TargetRunner interface {
	RunTarget(spec launcher.Spec) supervisor.Report
}

// Options wires a Controller.
type Options struct {
	Gesture gesture.Config
	// Policy is the fallback chain. PrimaryIndex is launched after a
	// confirmed gesture, FallbackIndex otherwise.
	Policy        supervisor.Policy
	PrimaryIndex  int
	FallbackIndex int
	Runner        TargetRunner
	// OpenSource opens the touch event source. May be nil when no
	// touchscreen is configured; detection is then skipped entirely.
	OpenSource func() (input.EventSource, error)
	// RestartDelay is the pause before relaunching a target that exited
	// naturally and restarts in place.
	RestartDelay time.Duration
	// RetryInitialDelay and RetryMaxDelay bound the exponential backoff
	// applied when the last-resort target fails to launch.
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
}

// Status is a point-in-time snapshot of the controller for the control
// server.
type Status struct {
	State      State  `json:"state"`
	CurrentApp string `json:"currentApp,omitempty"`
	// Gesture reflects the detection run that selected the current chain.
	Gesture       *GestureStatus `json:"gesture,omitempty"`
	LastRun       *RunStatus     `json:"lastRun,omitempty"`
	UptimeSeconds float64        `json:"uptimeSeconds"`
}

type GestureStatus struct {
	Outcome        string  `json:"outcome"`
	TapCount       int     `json:"tapCount"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
}

type RunStatus struct {
	RunID    string `json:"runId"`
	App      string `json:"app"`
	Started  bool   `json:"started"`
	PID      int    `json:"pid,omitempty"`
	ExitCode int    `json:"exitCode"`
}

// Controller owns the top-level arbitration: gesture outcome picks the
// initial target, then the policy table drives every restart and fallback.
// All state fields are mutated only by the Run goroutine; the mutex exists
// for Status readers.
type Controller struct {
	opts Options
	bus  *eventBus

	mu            sync.RWMutex
	state         State
	currentTarget int
	lastOutcome   *gesture.Outcome
	lastReport    *supervisor.Report
	startedAt     time.Time
}

func New(opts Options) (*Controller, error) {
	if err := opts.Gesture.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	if opts.Runner == nil {
		return nil, fmt.Errorf("controller needs a target runner")
	}
	if opts.PrimaryIndex < 0 || opts.PrimaryIndex >= len(opts.Policy) ||
		opts.FallbackIndex < 0 || opts.FallbackIndex >= len(opts.Policy) {
		return nil, fmt.Errorf("target indexes out of policy range")
	}

	return &Controller{
		opts:  opts,
		bus:   newEventBus(),
		state: StateIdle,
	}, nil
}

// Subscribe registers a listener for controller events.
func (c *Controller) Subscribe() (int, <-chan Event) {
	return c.bus.subscribe()
}

func (c *Controller) Unsubscribe(id int) {
	c.bus.unsubscribe(id)
}

// Status returns a snapshot for the control server.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Status{State: c.state}
	if !c.startedAt.IsZero() {
		st.UptimeSeconds = time.Since(c.startedAt).Seconds()
	}
	if c.state == StatePrimaryLaunched || c.state == StateFallbackLaunched {
		st.CurrentApp = c.opts.Policy[c.currentTarget].Spec.AppName
	}
	if c.lastOutcome != nil {
		st.Gesture = &GestureStatus{
			Outcome:        c.lastOutcome.Kind.String(),
			TapCount:       c.lastOutcome.TapCount,
			ElapsedSeconds: c.lastOutcome.Elapsed.Seconds(),
		}
	}
	if c.lastReport != nil {
		st.LastRun = &RunStatus{
			RunID:    c.lastReport.RunID,
			App:      c.lastReport.AppName,
			Started:  c.lastReport.Started,
			PID:      c.lastReport.PID,
			ExitCode: c.lastReport.ExitCode,
		}
	}
	return st
}

// Run drives the service until ctx is cancelled. Launch failures never end
// it; only shutdown does. On shutdown the currently running foreground
// application is left alive, supervision simply stops.
func (c *Controller) Run(ctx context.Context) {
	c.mu.Lock()
	c.startedAt = time.Now()
	c.mu.Unlock()

	idx, proceed := c.selectInitialTarget(ctx)
	if proceed {
		c.superviseLoop(ctx, idx)
	}
	c.setState(StateShuttingDown, "")
}

// selectInitialTarget runs gesture detection and maps its outcome to a
// policy index. A device error or nil opener degrades straight to the
// fallback target: some application must always reach the screen.
func (c *Controller) selectInitialTarget(ctx context.Context) (int, bool) {
	if c.opts.OpenSource == nil {
		utils.Info("no touch input configured, starting fallback target directly")
		return c.opts.FallbackIndex, true
	}

	src, err := c.opts.OpenSource()
	if err != nil {
		utils.Warn("touch input unavailable, skipping gesture detection: %v", err)
		return c.opts.FallbackIndex, true
	}

	c.setState(StateAwaitingGesture, "")
	utils.Info("waiting for %d touches within %s...", c.opts.Gesture.TargetTaps, c.opts.Gesture.Window)

	outcomes := make(chan gesture.Outcome, 1)
	go func() {
		outcomes <- gesture.Detect(src, c.opts.Gesture)
	}()

	select {
	case out := <-outcomes:
		_ = src.Close()
		c.recordOutcome(out)
		if out.Kind == gesture.Confirmed {
			utils.Info("gesture confirmed: %d taps in %.2fs", out.TapCount, out.Elapsed.Seconds())
			return c.opts.PrimaryIndex, true
		}
		utils.Info("gesture %s after %d taps", out.Kind, out.TapCount)
		return c.opts.FallbackIndex, true
	case <-ctx.Done():
		_ = src.Close()
		return 0, false
	}
}

// superviseLoop runs targets per the policy table until shutdown or a
// StopSupervision rule. Report delivery strictly precedes the
// next target selection, so no two targets ever run concurrently for this
// slot.
func (c *Controller) superviseLoop(ctx context.Context, idx int) {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = c.opts.RetryInitialDelay
	retry.MaxInterval = c.opts.RetryMaxDelay
	// the last target in the chain must never give up while we are alive
	retry.MaxElapsedTime = 0
	retry.Reset()

	for {
		if ctx.Err() != nil {
			return
		}

		rule := c.opts.Policy[idx]
		c.setTarget(idx)

		c.bus.publish(Event{Type: EventAppLaunching, Time: time.Now(), State: c.currentState(), App: rule.Spec.AppName})

		reports := make(chan supervisor.Report, 1)
		go func() {
			reports <- c.opts.Runner.RunTarget(rule.Spec)
		}()

		var report supervisor.Report
		select {
		case report = <-reports:
		case <-ctx.Done():
			// stop supervising; the foreground application keeps running
			return
		}
		c.recordReport(report)

		if report.LaunchFailed() {
			detail := "launch failed"
			if report.LaunchErr != nil {
				detail = report.LaunchErr.Error()
			}
			c.bus.publish(Event{
				Type: EventLaunchFailed, Time: time.Now(), State: c.currentState(),
				App: rule.Spec.AppName, RunID: report.RunID, Detail: detail,
			})

			next, ok := c.opts.Policy.Next(idx)
			if !ok {
				utils.Error("no fallback remains after launch failure of %s", rule.Spec.AppName)
				return
			}
			if next != idx {
				// a deeper fallback exists; switch to it immediately
				idx = next
				continue
			}

			delay := retry.NextBackOff()
			utils.Warn("retrying %s in %s", rule.Spec.AppName, delay)
			c.bus.publish(Event{
				Type: EventRetryScheduled, Time: time.Now(), State: c.currentState(),
				App: rule.Spec.AppName, Detail: delay.String(),
			})
			if !sleepCtx(ctx, delay) {
				return
			}
			continue
		}

		retry.Reset()
		c.bus.publish(Event{
			Type: EventAppExited, Time: time.Now(), State: c.currentState(),
			App: rule.Spec.AppName, RunID: report.RunID, ExitCode: report.ExitCode,
		})

		next, ok := c.opts.Policy.Next(idx)
		if !ok {
			utils.Info("supervision for %s ends by policy", rule.Spec.AppName)
			return
		}
		if next == idx {
			if !sleepCtx(ctx, c.opts.RestartDelay) {
				return
			}
		}
		idx = next
	}
}

func (c *Controller) setTarget(idx int) {
	state := StateFallbackLaunched
	if idx == c.opts.PrimaryIndex && c.opts.PrimaryIndex != c.opts.FallbackIndex {
		state = StatePrimaryLaunched
	}
	c.mu.Lock()
	c.currentTarget = idx
	c.mu.Unlock()
	c.setState(state, c.opts.Policy[idx].Spec.AppName)
}

func (c *Controller) setState(state State, app string) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.mu.Unlock()

	if changed {
		utils.Verbose("state -> %s", state)
		c.bus.publish(Event{Type: EventStateChanged, Time: time.Now(), State: state, App: app})
	}
}

func (c *Controller) currentState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) recordOutcome(out gesture.Outcome) {
	c.mu.Lock()
	c.lastOutcome = &out
	c.mu.Unlock()

	detail := ""
	if out.Err != nil {
		detail = out.Err.Error()
	}
	c.bus.publish(Event{
		Type: EventGestureOutcome, Time: time.Now(), State: c.currentState(),
		TapCount: out.TapCount, Detail: detail,
	})
}

func (c *Controller) recordReport(report supervisor.Report) {
	c.mu.Lock()
	c.lastReport = &report
	c.mu.Unlock()
}

// sleepCtx sleeps for d unless ctx is cancelled first. Returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
