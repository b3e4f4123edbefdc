//go:build windows

package executor

import "os/exec"

// setupProcessGroup is a no-op on Windows, where process groups do not
// exist in the Unix sense.
func setupProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup kills the direct process only.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
