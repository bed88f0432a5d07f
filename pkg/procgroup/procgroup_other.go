//go:build !unix

package procgroup

import (
	"errors"
	"os"
	"os/exec"
)

func set(cmd *exec.Cmd) {}

func terminate(cmd *exec.Cmd) error {
	// No SIGTERM outside unix; Interrupt is the closest request to exit.
	err := cmd.Process.Signal(os.Interrupt)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func kill(cmd *exec.Cmd) error {
	err := cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
