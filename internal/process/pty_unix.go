//go:build unix

package process

import "github.com/creack/pty"

// startPTY attaches proc.cmd to a new pseudo-terminal and starts it. The pty
// merges stdout and stderr into a single stream, which is fine for programs
// that only emit interactive/colored output when isatty() reports a
// terminal; callers that need the streams split should not set UsePTY.
func startPTY(proc *ManagedProcess) error {
	// pty.Start makes the child a session leader (Setsid), which already
	// gives it its own process group; a session leader cannot also call
	// setpgid, so the Setpgid flag from setProcAttr is cleared here.
	if proc.cmd.SysProcAttr != nil {
		proc.cmd.SysProcAttr.Setpgid = false
	}
	ptmx, err := pty.Start(proc.cmd)
	if err != nil {
		return err
	}

	go func() {
		buf := make([]byte, 4096)
		for {
			n, readErr := ptmx.Read(buf)
			if n > 0 {
				proc.stdout.Write(buf[:n])
			}
			if readErr != nil {
				return
			}
		}
	}()

	return nil
}
