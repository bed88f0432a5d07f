//go:build unix

package procgroup

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSetMakesGroupLeader(t *testing.T) {
	cmd := exec.Command("sh", "-c", "sleep 10")
	Set(cmd)
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = Kill(cmd)
		_ = cmd.Wait()
	})

	pgid, err := unix.Getpgid(cmd.Process.Pid)
	require.NoError(t, err)
	assert.Equal(t, cmd.Process.Pid, pgid, "process should lead its own group")
}

func TestTerminateStopsGroup(t *testing.T) {
	cmd := exec.Command("sh", "-c", "sleep 10 & sleep 10")
	Set(cmd)
	require.NoError(t, cmd.Start())
	pgid := cmd.Process.Pid

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, Terminate(cmd))

	err := cmd.Wait()
	require.Error(t, err, "terminated shell should not exit cleanly")

	// The background sleep belonged to the same group and must be gone too.
	require.Eventually(t, func() bool {
		return groupGone(pgid)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestKillIgnoresTerm(t *testing.T) {
	cmd := exec.Command("sh", "-c", "trap '' TERM; while true; do sleep 1; done")
	Set(cmd)
	require.NoError(t, cmd.Start())

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, Terminate(cmd))

	select {
	case <-done:
		t.Fatal("process ignoring SIGTERM should still be running")
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, Kill(cmd))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("process survived SIGKILL")
	}
}

func TestSignalAfterExitIsNoop(t *testing.T) {
	cmd := exec.Command("sh", "-c", "exit 0")
	Set(cmd)
	require.NoError(t, cmd.Start())
	require.NoError(t, cmd.Wait())

	assert.NoError(t, Terminate(cmd))
	assert.NoError(t, Kill(cmd))
	assert.NoError(t, Kill(nil))
}

func TestKillReachesOrphanedMembers(t *testing.T) {
	cmd := exec.Command("sh", "-c", "sleep 10 & exit 0")
	Set(cmd)
	require.NoError(t, cmd.Start())
	require.NoError(t, cmd.Wait())
	pgid := cmd.Process.Pid

	require.NoError(t, unix.Kill(-pgid, syscall.Signal(0)), "background sleep should still be alive")
	require.NoError(t, Kill(cmd))

	require.Eventually(t, func() bool {
		return groupGone(pgid)
	}, 2*time.Second, 20*time.Millisecond)
}

// groupGone reports whether no live process remains in the group. Killed
// members may linger as zombies when nothing reaps orphans, so on linux the
// process table is consulted instead of relying on signal 0.
func groupGone(pgid int) bool {
	if unix.Kill(-pgid, syscall.Signal(0)) == unix.ESRCH {
		return true
	}
	if runtime.GOOS != "linux" {
		return false
	}
	stats, _ := filepath.Glob("/proc/[0-9]*/stat")
	for _, path := range stats {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		// Fields after the parenthesised command: state ppid pgrp ...
		rest := string(data)
		if i := strings.LastIndexByte(rest, ')'); i >= 0 {
			rest = rest[i+1:]
		}
		fields := strings.Fields(rest)
		if len(fields) < 3 {
			continue
		}
		if fields[2] == strconv.Itoa(pgid) && fields[0] != "Z" {
			return false
		}
	}
	return true
}
