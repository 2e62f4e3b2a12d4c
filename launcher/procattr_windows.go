//go:build windows

package launcher

import (
	"os/exec"
)

// configureDetachedProcAttr is a no-op on Windows since process groups
// work differently there. Identity-switch strategies are Unix-only anyway.
func configureDetachedProcAttr(cmd *exec.Cmd) {
	// No-op on Windows
}
