//go:build windows

package inference

import (
	"os/exec"
	"strconv"
)

func setProcAttrs(cmd *exec.Cmd) {
	// Process groups are handled through taskkill on Windows.
}

// killProcessTree force-kills the process and its descendants via taskkill.
func killProcessTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	kill := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(cmd.Process.Pid))
	if err := kill.Run(); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}
