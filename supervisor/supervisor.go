package supervisor

import (
	"time"

	"github.com/google/uuid"

	"github.com/kiosk-next/kioskd/launcher"
	"github.com/kiosk-next/kioskd/utils"
)

// Report describes how one supervised run of a target ended. Started is true
// only when the launch succeeded, so a natural exit code is never reported
// for a process that was never watched.
type Report struct {
	RunID    string
	AppName  string
	Started  bool
	PID      int
	ExitCode int
	// LaunchErr is set when the launch itself failed; Started is false.
	LaunchErr error
	Duration  time.Duration
}

// LaunchFailed reports whether the target never started.
func (r Report) LaunchFailed() bool {
	return !r.Started
}

// Supervisor launches a target and watches it until it exits.
type Supervisor struct {
	launcher launcher.Launcher
}

func New(l launcher.Launcher) *Supervisor {
	return &Supervisor{launcher: l}
}

// RunTarget starts spec and blocks until the launched process terminates.
// Launch and wait are one unit from the caller's perspective: there is never
// a started process that nobody is watching. Launch failures are reported
// immediately; retry policy belongs to the caller.
func (s *Supervisor) RunTarget(spec launcher.Spec) Report {
	runID := uuid.New().String()
	start := time.Now()

	proc, err := s.launcher.Launch(spec)
	if err != nil {
		utils.Error("run %s: launching %s failed: %v", runID, spec.AppName, err)
		return Report{
			RunID:     runID,
			AppName:   spec.AppName,
			LaunchErr: err,
			Duration:  time.Since(start),
		}
	}

	utils.Info("run %s: %s started (pid %d)", runID, spec.AppName, proc.PID())

	code, waitErr := proc.Wait()
	if waitErr != nil {
		utils.Warn("run %s: waiting for %s: %v", runID, spec.AppName, waitErr)
	}
	utils.Info("run %s: %s exited with code %d after %s", runID, spec.AppName, code, time.Since(start).Round(time.Millisecond))

	return Report{
		RunID:    runID,
		AppName:  spec.AppName,
		Started:  true,
		PID:      proc.PID(),
		ExitCode: code,
		Duration: time.Since(start),
	}
}
