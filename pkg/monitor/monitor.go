// Package monitor attaches to a spawned encoder process, consumes its
// diagnostic stream line by line and reports when the process exits.
package monitor

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/heyjunin/rtsp2hls/pkg/logger"
	"github.com/heyjunin/rtsp2hls/pkg/metrics"
)

const (
	// DefaultRingSize is the number of diagnostic lines kept for failure reports.
	DefaultRingSize = 256
	// DefaultDrainTimeout bounds how long the stream is read after the process exits.
	DefaultDrainTimeout = 2 * time.Second
)

// DefaultErrorPatterns are the case-insensitive substrings that mark a
// diagnostic line as an error.
var DefaultErrorPatterns = []string{"error", "failed"}

// Options configures a Monitor.
type Options struct {
	Logger        logger.Logger
	RingSize      int
	ErrorPatterns []string
	DrainTimeout  time.Duration

	// OnErrorLine is called from the reader goroutine for every error line.
	OnErrorLine func(line string)

	// OnExit is called once after the process has exited and its stream is
	// drained. It must not block on anything the process owner holds while
	// waiting for Done.
	OnExit func(err error, tail []string, stopping bool)
}

// Monitor observes one encoder process.
type Monitor struct {
	cmd    *exec.Cmd
	opts   Options
	log    logger.Logger
	ring   *LineRing
	reader *os.File

	closeReader sync.Once
	scanDone    chan struct{}
	reaped      chan struct{}
	done        chan struct{}

	stopping   atomic.Bool
	errorLines atomic.Int64

	mu       sync.RWMutex
	exited   bool
	waitErr  error
	exitCode int
}

// Start wires the process stderr to a pipe, starts it and begins monitoring.
// The process must not have been started yet and must not have Stderr set.
func Start(cmd *exec.Cmd, opts Options) (*Monitor, error) {
	if opts.RingSize <= 0 {
		opts.RingSize = DefaultRingSize
	}
	if len(opts.ErrorPatterns) == 0 {
		opts.ErrorPatterns = DefaultErrorPatterns
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	cmd.Stderr = w

	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return nil, err
	}
	// The child holds its own copy; ours must go so EOF arrives when it exits.
	_ = w.Close()

	m := &Monitor{
		cmd:      cmd,
		opts:     opts,
		log:      logger.OrDefault(opts.Logger),
		ring:     NewLineRing(opts.RingSize),
		reader:   r,
		scanDone: make(chan struct{}),
		reaped:   make(chan struct{}),
		done:     make(chan struct{}),
		exitCode: -1,
	}

	go m.scan()
	go m.wait()

	return m, nil
}

func (m *Monitor) scan() {
	defer close(m.scanDone)

	scanner := bufio.NewScanner(m.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanLines)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		m.ring.Add(line)

		if m.isError(line) {
			m.errorLines.Add(1)
			metrics.EncoderErrorLines.Inc()
			m.log.Warn(line, "ffmpeg", map[string]interface{}{"pid": m.PID()})
			if m.opts.OnErrorLine != nil {
				m.opts.OnErrorLine(line)
			}
			continue
		}
		m.log.Debug(line, "ffmpeg", nil)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		// Keep the pipe empty so the encoder never blocks on a full stderr.
		m.log.Warn("Diagnostic stream read failed", "monitor", map[string]interface{}{"error": err.Error()})
		_, _ = io.Copy(io.Discard, m.reader)
	}
}

func (m *Monitor) wait() {
	err := m.cmd.Wait()

	code := -1
	if m.cmd.ProcessState != nil {
		code = m.cmd.ProcessState.ExitCode()
	}

	m.mu.Lock()
	m.exited = true
	m.waitErr = err
	m.exitCode = code
	m.mu.Unlock()
	close(m.reaped)

	// Grandchildren may still hold the write end; stop reading after the grace period.
	select {
	case <-m.scanDone:
	case <-time.After(m.opts.DrainTimeout):
		m.log.Warn("Diagnostic stream not drained after exit", "monitor", map[string]interface{}{
			"pid":     m.PID(),
			"timeout": m.opts.DrainTimeout.String(),
		})
		m.closeStream()
		<-m.scanDone
	}
	m.closeStream()

	m.log.Debug("Encoder process exited", "monitor", map[string]interface{}{
		"pid":         m.PID(),
		"exit_code":   code,
		"stopping":    m.Stopping(),
		"error_lines": m.ErrorLines(),
	})

	if m.opts.OnExit != nil {
		m.opts.OnExit(err, m.Tail(20), m.Stopping())
	}
	close(m.done)
}

func (m *Monitor) closeStream() {
	m.closeReader.Do(func() {
		_ = m.reader.Close()
	})
}

func (m *Monitor) isError(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range m.opts.ErrorPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Done is closed once the process has exited, its stream is drained and
// OnExit has returned.
func (m *Monitor) Done() <-chan struct{} { return m.done }

// ProcessExited is closed as soon as the process has been reaped, before its
// diagnostic stream is drained. Tail may still be incomplete until Done.
func (m *Monitor) ProcessExited() <-chan struct{} { return m.reaped }

// Exited reports whether the process has been reaped.
func (m *Monitor) Exited() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exited
}

// Err returns the error from Wait, valid after Exited.
func (m *Monitor) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.waitErr
}

// ExitCode returns the process exit code, or -1 while running or when killed by a signal.
func (m *Monitor) ExitCode() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exitCode
}

// Tail returns up to n of the most recent diagnostic lines.
func (m *Monitor) Tail(n int) []string { return m.ring.LastN(n) }

// ErrorLines returns how many lines were classified as errors.
func (m *Monitor) ErrorLines() int64 { return m.errorLines.Load() }

// MarkStopping records that the owner is terminating the process on purpose.
func (m *Monitor) MarkStopping() { m.stopping.Store(true) }

// Stopping reports whether MarkStopping was called.
func (m *Monitor) Stopping() bool { return m.stopping.Load() }

// PID returns the process id.
func (m *Monitor) PID() int {
	if m.cmd.Process == nil {
		return 0
	}
	return m.cmd.Process.Pid
}

// Cmd returns the monitored command.
func (m *Monitor) Cmd() *exec.Cmd { return m.cmd }

// scanLines splits on \n or \r; ffmpeg rewrites its stats line with carriage returns.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
