package launcher

import (
	"errors"
	"os"
	"os/exec"
	"time"
)

func environ() []string {
	return os.Environ()
}

// launchedProcess wraps a started command. A single goroutine consumes
// cmd.Wait and publishes the result, so PID, Wait, and the startup probe can
// all be used without racing on the handle.
type launchedProcess struct {
	cmd     *exec.Cmd
	done    chan struct{}
	code    int
	waitErr error
}

// startDetached starts argv in its own process group with stdio on the null
// device, so the child outlives the daemon and never touches our terminal.
func startDetached(argv []string, env []string) (*launchedProcess, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = env
	configureDetachedProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &launchedProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		p.code = cmd.ProcessState.ExitCode()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			p.waitErr = err
		}
		close(p.done)
	}()
	return p, nil
}

func (p *launchedProcess) PID() int {
	return p.cmd.Process.Pid
}

// Wait blocks until the process exits. A non-zero exit status is reported
// through the code, not the error.
func (p *launchedProcess) Wait() (int, error) {
	<-p.done
	return p.code, p.waitErr
}

// exitedWithin reports whether the process terminated within d. Used as the
// post-start liveness probe: a kiosk app that dies this fast never brought
// up its window.
func (p *launchedProcess) exitedWithin(d time.Duration) (int, bool) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-p.done:
		return p.code, true
	case <-t.C:
		return 0, false
	}
}
