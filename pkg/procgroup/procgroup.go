// Package procgroup starts encoder processes in their own process group so
// that termination signals reach every child the encoder spawned.
package procgroup

import (
	"os/exec"
)

// Set configures the command to start in a new process group.
// Mandatory for Terminate and Kill to reach the whole group.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Terminate asks the process group to exit cleanly (SIGTERM on unix).
// A process that already exited is not an error.
func Terminate(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return terminate(cmd)
}

// Kill force-kills the process group (SIGKILL on unix).
// A process that already exited is not an error.
func Kill(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return kill(cmd)
}
