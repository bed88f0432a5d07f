package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "run", "probe", "sweep", "status", "start", "stop", "snapshot"} {
		assert.Contains(t, names, want)
	}
}

func TestSweepCommandUsesFlagOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "segment_001.ts"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "playlist.m3u8"), []byte("#EXTM3U"), 0644))

	out, err := execute(t, "sweep", "--output-dir", dir, "--max-age", "0s", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 1 segment(s)")

	_, err = os.Stat(filepath.Join(dir, "playlist.m3u8"))
	assert.NoError(t, err)
}

func TestSweepCommandReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "segment_001.ts"), []byte("x"), 0644))

	cfgPath := filepath.Join(t.TempDir(), "rtsp2hls.yaml")
	content := "stream:\n  output_dir: " + dir + "\njanitor:\n  max_age: 0s\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))

	out, err := execute(t, "sweep", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 1 segment(s) from "+dir)
}

func TestInvalidConfigIsRejected(t *testing.T) {
	_, err := execute(t, "sweep", "--log-level", "loud")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "log.level"))
}

func TestRunRequiresURL(t *testing.T) {
	_, err := execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url")
}
