package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiosk-next/kioskd/gesture"
	"github.com/kiosk-next/kioskd/input"
	"github.com/kiosk-next/kioskd/launcher"
	"github.com/kiosk-next/kioskd/supervisor"
)

// scriptedRunner returns canned reports in order and records every launch.
type scriptedRunner struct {
	mu      sync.Mutex
	reports []supervisor.Report
	calls   []launcher.Spec
	// block, when set, makes runs past the script hang until release closes
	release chan struct{}
}

func (r *scriptedRunner) RunTarget(spec launcher.Spec) supervisor.Report {
	r.mu.Lock()
	r.calls = append(r.calls, spec)
	n := len(r.calls)
	r.mu.Unlock()

	if n <= len(r.reports) {
		rep := r.reports[n-1]
		rep.AppName = spec.AppName
		return rep
	}
	if r.release != nil {
		<-r.release
	}
	return supervisor.Report{AppName: spec.AppName, Started: true, ExitCode: 0}
}

func (r *scriptedRunner) launchNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.calls))
	for i, s := range r.calls {
		names[i] = s.AppName
	}
	return names
}

// burstSource emits n touch-down events immediately, then blocks.
type burstSource struct {
	n      int
	reads  int
	mu     sync.Mutex
	closed chan struct{}
	once   sync.Once
}

func newBurstSource(n int) *burstSource {
	return &burstSource{n: n, closed: make(chan struct{})}
}

func (s *burstSource) NextEvent() (input.TouchEvent, error) {
	s.mu.Lock()
	i := s.reads
	s.reads++
	s.mu.Unlock()

	if i < s.n {
		return input.TouchEvent{Timestamp: time.Now(), TouchDown: true}, nil
	}
	<-s.closed
	return input.TouchEvent{}, errors.New("source closed")
}

func (s *burstSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func testPolicy() supervisor.Policy {
	return supervisor.Policy{
		{
			Spec:          launcher.Spec{AppName: "network-settings", Command: []string{"nm-connection-editor"}},
			OnExit:        supervisor.AdvanceToFallback,
			FallbackIndex: 1,
		},
		{
			Spec:   launcher.Spec{AppName: "kiosk-browser", Command: []string{"chromium", "--kiosk"}},
			OnExit: supervisor.RestartSame,
		},
	}
}

func testOptions(runner TargetRunner, open func() (input.EventSource, error)) Options {
	return Options{
		Gesture:           gesture.Config{TargetTaps: 3, Window: 500 * time.Millisecond},
		Policy:            testPolicy(),
		PrimaryIndex:      0,
		FallbackIndex:     1,
		Runner:            runner,
		OpenSource:        open,
		RestartDelay:      5 * time.Millisecond,
		RetryInitialDelay: 5 * time.Millisecond,
		RetryMaxDelay:     20 * time.Millisecond,
	}
}

func TestNew_Validation(t *testing.T) {
	runner := &scriptedRunner{}

	_, err := New(testOptions(runner, nil))
	assert.NoError(t, err)

	bad := testOptions(runner, nil)
	bad.Gesture.TargetTaps = 0
	_, err = New(bad)
	assert.Error(t, err)

	bad = testOptions(runner, nil)
	bad.Policy = nil
	_, err = New(bad)
	assert.Error(t, err)

	bad = testOptions(runner, nil)
	bad.Runner = nil
	_, err = New(bad)
	assert.Error(t, err)

	bad = testOptions(runner, nil)
	bad.FallbackIndex = 9
	_, err = New(bad)
	assert.Error(t, err)
}

func TestRun_ConfirmedGestureLaunchesPrimary(t *testing.T) {
	runner := &scriptedRunner{
		reports: []supervisor.Report{
			{Started: true, ExitCode: 0}, // primary exits naturally
		},
		release: make(chan struct{}),
	}
	src := newBurstSource(3)

	c, err := New(testOptions(runner, func() (input.EventSource, error) { return src, nil }))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	// wait until the fallback (second launch) is running
	require.Eventually(t, func() bool {
		return len(runner.launchNames()) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	names := runner.launchNames()
	assert.Equal(t, "network-settings", names[0])
	assert.Equal(t, "kiosk-browser", names[1])

	cancel()
	close(runner.release)
	<-done
	assert.Equal(t, StateShuttingDown, c.Status().State)
}

func TestRun_TimeoutLaunchesFallback(t *testing.T) {
	runner := &scriptedRunner{release: make(chan struct{})}
	src := newBurstSource(1) // one tap, then silence past the window

	opts := testOptions(runner, func() (input.EventSource, error) { return src, nil })
	opts.Gesture.Window = 50 * time.Millisecond
	c, err := New(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(runner.launchNames()) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "kiosk-browser", runner.launchNames()[0])

	st := c.Status()
	require.NotNil(t, st.Gesture)
	assert.Equal(t, "timed_out", st.Gesture.Outcome)

	cancel()
	close(runner.release)
	<-done
}

func TestRun_DeviceErrorSkipsDetection(t *testing.T) {
	runner := &scriptedRunner{release: make(chan struct{})}
	open := func() (input.EventSource, error) { return nil, errors.New("no device") }

	c, err := New(testOptions(runner, open))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(runner.launchNames()) >= 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "kiosk-browser", runner.launchNames()[0])

	cancel()
	close(runner.release)
	<-done
}

func TestRun_PrimaryLaunchFailureFallsBackImmediately(t *testing.T) {
	runner := &scriptedRunner{
		reports: []supervisor.Report{
			{LaunchErr: errors.New("AppImage missing")}, // primary fails to start
		},
		release: make(chan struct{}),
	}
	src := newBurstSource(3)

	started := time.Now()
	c, err := New(testOptions(runner, func() (input.EventSource, error) { return src, nil }))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(runner.launchNames()) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	// no retry delay between the failed primary and the fallback
	assert.Less(t, time.Since(started), time.Second)
	names := runner.launchNames()
	assert.Equal(t, []string{"network-settings", "kiosk-browser"}, names[:2])

	cancel()
	close(runner.release)
	<-done
}

func TestRun_FallbackRestartsAfterNaturalExits(t *testing.T) {
	// three natural exits of the fallback, then hold
	runner := &scriptedRunner{
		reports: []supervisor.Report{
			{Started: true, ExitCode: 0},
			{Started: true, ExitCode: 1},
			{Started: true, ExitCode: 0},
		},
		release: make(chan struct{}),
	}

	c, err := New(testOptions(runner, nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(runner.launchNames()) >= 4
	}, 2*time.Second, 5*time.Millisecond)

	for _, name := range runner.launchNames() {
		assert.Equal(t, "kiosk-browser", name)
	}

	cancel()
	close(runner.release)
	<-done
}

func TestRun_FallbackLaunchFailureRetriesWithBackoff(t *testing.T) {
	runner := &scriptedRunner{
		reports: []supervisor.Report{
			{LaunchErr: errors.New("chromium missing")},
			{LaunchErr: errors.New("chromium missing")},
		},
		release: make(chan struct{}),
	}

	c, err := New(testOptions(runner, nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	// failures do not stop the loop; the third attempt still happens
	require.Eventually(t, func() bool {
		return len(runner.launchNames()) >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	close(runner.release)
	<-done
}

func TestRun_FallbackNeverReturnsToPrimary(t *testing.T) {
	// primary exits, then many fallback exits: the primary must not be
	// launched again without a fresh confirmed gesture
	runner := &scriptedRunner{
		reports: []supervisor.Report{
			{Started: true, ExitCode: 0},
			{Started: true, ExitCode: 0},
			{Started: true, ExitCode: 0},
			{Started: true, ExitCode: 0},
		},
		release: make(chan struct{}),
	}
	src := newBurstSource(3)

	c, err := New(testOptions(runner, func() (input.EventSource, error) { return src, nil }))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(runner.launchNames()) >= 4
	}, 2*time.Second, 5*time.Millisecond)

	names := runner.launchNames()
	assert.Equal(t, "network-settings", names[0])
	for _, name := range names[1:] {
		assert.Equal(t, "kiosk-browser", name)
	}

	cancel()
	close(runner.release)
	<-done
}

func TestRun_ShutdownDuringGesture(t *testing.T) {
	runner := &scriptedRunner{}
	src := newBurstSource(0) // no taps at all; detection would run the full window

	opts := testOptions(runner, func() (input.EventSource, error) { return src, nil })
	opts.Gesture.Window = 10 * time.Second
	c, err := New(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return c.Status().State == StateAwaitingGesture
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not shut down during gesture detection")
	}

	assert.Empty(t, runner.launchNames())
	assert.Equal(t, StateShuttingDown, c.Status().State)
}

func TestRun_ShutdownStopsRestarts(t *testing.T) {
	runner := &scriptedRunner{release: make(chan struct{})}

	c, err := New(testOptions(runner, nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(runner.launchNames()) >= 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop while a run was in flight")
	}
	// the in-flight run is abandoned, not awaited
	close(runner.release)
}

func TestRun_LaunchFailureWithoutErrorDoesNotPanic(t *testing.T) {
	// a runner may report a failed launch without an error value; the
	// controller must still publish the failure and move on
	runner := &scriptedRunner{
		reports: []supervisor.Report{{}}, // Started=false, LaunchErr=nil
		release: make(chan struct{}),
	}
	src := newBurstSource(3)

	c, err := New(testOptions(runner, func() (input.EventSource, error) { return src, nil }))
	require.NoError(t, err)

	id, events := c.Subscribe()
	defer c.Unsubscribe(id)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	var failure Event
	deadline := time.After(2 * time.Second)
	for failure.Type != EventLaunchFailed {
		select {
		case ev := <-events:
			failure = ev
		case <-deadline:
			t.Fatal("no launch failure event published")
		}
	}
	assert.Equal(t, "launch failed", failure.Detail)

	// supervision continues onto the fallback
	require.Eventually(t, func() bool {
		return len(runner.launchNames()) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	close(runner.release)
	<-done
}

func TestEvents_PublishedDuringLifecycle(t *testing.T) {
	runner := &scriptedRunner{
		reports: []supervisor.Report{{Started: true, ExitCode: 0}},
		release: make(chan struct{}),
	}

	c, err := New(testOptions(runner, nil))
	require.NoError(t, err)

	id, events := c.Subscribe()
	defer c.Unsubscribe(id)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	seen := make(map[EventType]bool)
	deadline := time.After(2 * time.Second)
	for !(seen[EventAppLaunching] && seen[EventAppExited]) {
		select {
		case ev := <-events:
			seen[ev.Type] = true
		case <-deadline:
			t.Fatalf("missing lifecycle events, saw %v", seen)
		}
	}

	cancel()
	close(runner.release)
	<-done
}

func TestEventBus_SlowSubscriberDropsEvents(t *testing.T) {
	bus := newEventBus()
	id, ch := bus.subscribe()
	defer bus.unsubscribe(id)

	// publish past the buffer; must not block
	for i := 0; i < subscriberBuffer*2; i++ {
		bus.publish(Event{Type: EventStateChanged})
	}

	assert.Equal(t, subscriberBuffer, len(ch))
}
