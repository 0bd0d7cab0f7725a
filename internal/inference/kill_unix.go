//go:build !windows

package inference

import (
	"os/exec"
	"syscall"
)

// setProcAttrs places the server in its own process group so the whole tree
// can be killed in one signal.
func setProcAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessTree force-kills the process group of the command, taking any
// worker subprocesses the server spawned down with it.
func killProcessTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		// Process is already gone or not ours; fall back to a direct kill.
		return cmd.Process.Kill()
	}
	if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		return err
	}
	return nil
}
