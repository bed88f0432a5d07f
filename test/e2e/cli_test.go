package e2e

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	// Path to the compiled binary (go build -o rtsp2hls ./cmd/rtsp2hls).
	binaryPath = "../../rtsp2hls"
)

func TestCLIHelp(t *testing.T) {
	if !binaryExists() {
		t.Skip("Binary not found at " + binaryPath + ", skipping")
	}

	output, err := exec.Command(binaryPath, "--help").CombinedOutput()
	require.NoError(t, err)

	out := strings.ToLower(string(output))
	for _, expected := range []string{"rtsp2hls", "serve", "run", "probe", "sweep"} {
		assert.Contains(t, out, expected)
	}
}

func TestCLISweep(t *testing.T) {
	if !binaryExists() {
		t.Skip("Binary not found at " + binaryPath + ", skipping")
	}

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "segment_000.ts"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "segment_001.ts"), []byte("x"), 0644))

	output, err := exec.Command(binaryPath, "sweep", "--output-dir", dir, "--max-age", "0s").CombinedOutput()
	require.NoError(t, err, string(output))
	assert.Contains(t, string(output), "deleted 2 segment(s)")
}

func TestCLIServeLifecycle(t *testing.T) {
	if !binaryExists() {
		t.Skip("Binary not found at " + binaryPath + ", skipping")
	}

	addr := freeAddr(t)
	base := "http://" + addr
	outDir := t.TempDir()

	cmd := exec.Command(binaryPath, "serve",
		"--listen", addr,
		"--public-url", base,
		"--output-dir", outDir,
		"--log-level", "warn",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	require.NoError(t, cmd.Start())

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	defer func() {
		if cmd.ProcessState == nil {
			_ = cmd.Process.Kill()
		}
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 100*time.Millisecond)

	output, err := exec.Command(binaryPath, "status", "--server", base).CombinedOutput()
	require.NoError(t, err, string(output))
	assert.Contains(t, string(output), `"is_running": false`)

	// Scheme validation happens before ffmpeg is needed.
	output, err = exec.Command(binaryPath, "start", "http://example.com/live", "--server", base).CombinedOutput()
	require.Error(t, err)
	assert.Contains(t, string(output), "Invalid RTSP/RTMP URL format")

	resp, err := http.Get(base + "/stream/playlist.m3u8")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, cmd.Process.Signal(syscall.SIGTERM))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("serve did not exit after SIGTERM")
	}
}

func TestCLIRunStreamsLocalSource(t *testing.T) {
	if !binaryExists() {
		t.Skip("Binary not found at " + binaryPath + ", skipping")
	}
	source := os.Getenv("RTSP2HLS_E2E_SOURCE")
	if source == "" {
		t.Skip("RTSP2HLS_E2E_SOURCE not set, skipping")
	}
	if !checkFFmpegInstalled() {
		t.Skip("FFmpeg not found, skipping")
	}

	outDir := t.TempDir()
	cmd := exec.Command(binaryPath, "run", "--url", source, "--output-dir", outDir, "--quiet", "--max-duration", "20s")
	output, err := runWithTimeout(cmd, 2*time.Minute)
	require.NoError(t, err, output)

	assert.Contains(t, output, filepath.Join(outDir, "playlist.m3u8"))
}

func binaryExists() bool {
	_, err := os.Stat(binaryPath)
	return err == nil
}

func checkFFmpegInstalled() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func runWithTimeout(cmd *exec.Cmd, timeout time.Duration) (string, error) {
	var out strings.Builder
	cmd.Stdout = &out
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return "", err
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		return out.String(), err
	case <-time.After(timeout):
		_ = cmd.Process.Signal(os.Interrupt)
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			_ = cmd.Process.Kill()
			<-done
		}
		return out.String(), fmt.Errorf("command timed out after %s", timeout)
	}
}
