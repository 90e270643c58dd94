//go:build !windows

package browser

import "syscall"

// signalProcessGroup sends sig to pid's process group, falling back to the
// bare pid if the group can't be resolved. Mirrors the child-process
// manager's own tree-kill logic since both need "verify, then terminate the
// group, escalate."
func signalProcessGroup(pid int, sig syscall.Signal) error {
	pgid, err := syscall.Getpgid(pid)
	if err == nil && pgid > 0 {
		return syscall.Kill(-pgid, sig)
	}
	return syscall.Kill(pid, sig)
}

func isProcessAlive(pid int) bool {
	return syscall.Kill(pid, syscall.Signal(0)) == nil
}

func signalTerm(pid int) error { return syscall.Kill(pid, syscall.SIGTERM) }
func signalKill(pid int) error { return syscall.Kill(pid, syscall.SIGKILL) }
