//go:build unix

package procgroup

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func terminate(cmd *exec.Cmd) error {
	return signalGroup(cmd, unix.SIGTERM)
}

func kill(cmd *exec.Cmd) error {
	return signalGroup(cmd, unix.SIGKILL)
}

// signalGroup delivers sig to the process group led by cmd.
// ESRCH means the group is already gone and is treated as success.
func signalGroup(cmd *exec.Cmd, sig unix.Signal) error {
	pid := cmd.Process.Pid

	// A child started by Set leads a group with its own pid, which outlives
	// the leader while orphaned members remain.
	target := -pid
	if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
		pgid, err := unix.Getpgid(pid)
		if err != nil {
			if errors.Is(err, unix.ESRCH) {
				return nil
			}
			return err
		}
		// Never hit a group the child does not lead; it may be our own.
		if pgid != pid {
			target = pid
		}
	}

	if err := unix.Kill(target, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return err
	}
	return nil
}
