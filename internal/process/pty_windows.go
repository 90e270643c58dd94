//go:build windows

package process

import gopty "github.com/aymanbagabas/go-pty"

// startPTY attaches the process to a ConPTY-backed pseudo-terminal. Unlike
// the unix path, go-pty's Cmd is not an *exec.Cmd, so proc.cmd is left
// unstarted and proc.ptyPID/ptyWait/ptyKill carry the real process instead.
func startPTY(proc *ManagedProcess) error {
	p, err := gopty.New()
	if err != nil {
		return err
	}

	cmd := p.Command(proc.Command, proc.Args...)
	cmd.Dir = proc.ProjectPath
	if len(proc.Env) > 0 {
		cmd.Env = proc.Env
	}
	if err := cmd.Start(); err != nil {
		_ = p.Close()
		return err
	}

	proc.ptyPID = cmd.Process.Pid

	go func() {
		buf := make([]byte, 4096)
		for {
			n, readErr := p.Read(buf)
			if n > 0 {
				proc.stdout.Write(buf[:n])
			}
			if readErr != nil {
				return
			}
		}
	}()

	proc.ptyWait = func() error {
		err := cmd.Wait()
		_ = p.Close()
		return err
	}
	proc.ptyKill = func() error {
		return cmd.Process.Kill()
	}
	return nil
}
