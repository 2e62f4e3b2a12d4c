package launcher

import (
	"errors"
	"fmt"
	"os/user"
	"sort"
	"time"

	"github.com/kiosk-next/kioskd/utils"
)

// DefaultStartupGrace is how long a launched process must survive before the
// launch counts as successful.
const DefaultStartupGrace = 2 * time.Second

// strategy is one concrete way of starting a spec.
type strategy struct {
	name string
	argv []string
	env  []string
}

// ExecLauncher starts detached OS processes. For identity switches it tries
// a fixed strategy order: sudo -u USER -E first, then systemd-run --uid.
// Specs without an identity switch run with a single direct-exec strategy.
// The first strategy whose process survives StartupGrace wins.
type ExecLauncher struct {
	// StartupGrace is how long a process must keep running after start for
	// the launch to be reported as successful. Zero disables the probe.
	StartupGrace time.Duration

	identities  *identityCache
	currentUser func() (*user.User, error)
}

func NewExecLauncher(grace time.Duration) *ExecLauncher {
	return &ExecLauncher{
		StartupGrace: grace,
		identities:   newIdentityCache(),
		currentUser:  user.Current,
	}
}

// Launch implements Launcher. Exactly one strategy's process is left running
// on success; failed attempts either never started or already exited.
func (l *ExecLauncher) Launch(spec Spec) (Process, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	strategies, err := l.buildStrategies(spec)
	if err != nil {
		return nil, err
	}

	var attempts []error
	for _, st := range strategies {
		utils.Verbose("launching %s via %s", spec.AppName, st.name)
		proc, err := startDetached(st.argv, st.env)
		if err != nil {
			attempts = append(attempts, fmt.Errorf("%s: %w", st.name, err))
			continue
		}

		if l.StartupGrace > 0 {
			if code, exited := proc.exitedWithin(l.StartupGrace); exited {
				attempts = append(attempts, fmt.Errorf("%s: exited with code %d during startup", st.name, code))
				continue
			}
		}

		utils.Info("%s launched via %s (pid %d)", spec.AppName, st.name, proc.PID())
		return proc, nil
	}

	return nil, fmt.Errorf("all launch strategies failed for %s: %w", spec.AppName, errors.Join(attempts...))
}

// buildStrategies resolves the target identity and assembles the ordered
// strategy list for the spec.
func (l *ExecLauncher) buildStrategies(spec Spec) ([]strategy, error) {
	if !l.needsIdentitySwitch(spec.User) {
		return []strategy{{
			name: "direct",
			argv: spec.Command,
			env:  mergeEnv(environ(), spec.Env),
		}}, nil
	}

	id, err := l.identities.resolve(spec.User)
	if err != nil {
		return nil, err
	}

	overrides := sessionEnv(id)
	for k, v := range spec.Env {
		overrides[k] = v
	}
	env := mergeEnv(environ(), overrides)

	sudoArgv := append([]string{"sudo", "-u", id.Username, "-E"}, spec.Command...)

	systemdArgv := []string{"systemd-run", "--collect", "--uid=" + id.UID}
	for _, k := range sortedKeys(overrides) {
		systemdArgv = append(systemdArgv, "--setenv="+k+"="+overrides[k])
	}
	systemdArgv = append(systemdArgv, spec.Command...)

	return []strategy{
		{name: "sudo", argv: sudoArgv, env: env},
		{name: "systemd-run", argv: systemdArgv, env: env},
	}, nil
}

func (l *ExecLauncher) needsIdentitySwitch(username string) bool {
	if username == "" {
		return false
	}
	if cur, err := l.currentUser(); err == nil && cur.Username == username {
		return false
	}
	return true
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
