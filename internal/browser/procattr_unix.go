//go:build !windows

package browser

import (
	"os/exec"
	"syscall"
)

// setProcAttr puts the launched browser in its own process group so kill()
// can tree-terminate it without taking down this process.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
