//go:build unix

package launcher

import (
	"os/exec"
	"syscall"
)

// configureDetachedProcAttr puts the command in its own process group on
// Unix systems, so the launched application survives the daemon's exit and
// never receives signals aimed at us.
func configureDetachedProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
}
