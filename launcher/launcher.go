package launcher

import (
	"fmt"
	"strings"
)

// Spec is an immutable description of how to start one application.
type Spec struct {
	// AppName is the human-readable name used in logs and events.
	AppName string
	// Command is the argv of the application, program first.
	Command []string
	// User is the OS user to launch as. Empty means the current user.
	User string
	// Env holds variables applied on top of the assembled environment.
	Env map[string]string
}

func (s Spec) Validate() error {
	if s.AppName == "" {
		return fmt.Errorf("launch spec has no app name")
	}
	if len(s.Command) == 0 || s.Command[0] == "" {
		return fmt.Errorf("launch spec for %s has no command", s.AppName)
	}
	return nil
}

// String renders the spec for logs.
func (s Spec) String() string {
	who := s.User
	if who == "" {
		who = "current user"
	}
	return fmt.Sprintf("%s (%s, as %s)", s.AppName, strings.Join(s.Command, " "), who)
}

// Process is a handle to a started, detached application.
type Process interface {
	PID() int
	// Wait blocks until the process exits and returns its exit code.
	// Safe to call more than once.
	Wait() (int, error)
}

// Launcher starts detached processes. Identity switching, environment
// assembly, and the platform detachment technique live behind this single
// call; callers only see a Process or a failure.
type Launcher interface {
	Launch(spec Spec) (Process, error)
}
