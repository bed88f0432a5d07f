package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/heyjunin/rtsp2hls/pkg/logger"
	"github.com/schollz/progressbar/v3"
)

// Event describes the phase a foreground conversion is in.
type Event struct {
	// Status is the overall status ("initialized", "waiting", "streaming", "completed", "failed").
	Status string `json:"status"`
	// Step is the high-level phase (e.g. "probing", "starting", "manifest").
	Step string `json:"step"`
	// Stage is a human-readable description of the phase.
	Stage string `json:"stage"`
	// ElapsedSeconds since Begin was first called.
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	// Timestamp marks when the event occurred in RFC3339 format.
	Timestamp string `json:"timestamp"`
}

// Reporter reports phases of work whose length is unknown, such as waiting
// for a live source to produce its first segment.
type Reporter interface {
	// Begin enters a waiting phase and shows the spinner.
	Begin(step, stage string)
	// Tick advances the spinner without changing the phase.
	Tick()
	// Finish ends the current phase with the given status.
	Finish(status, stage string)
	// Updates returns a channel that emits events on every phase change.
	Updates() <-chan Event
	// JSON returns the latest Event as a JSON string.
	JSON() (string, error)
}

type reporterOptions struct {
	statusFilePath string
	writer         io.Writer
	hidden         bool
}

// ReporterOption configures a DefaultReporter.
type ReporterOption func(*reporterOptions)

// WithStatusFile writes the latest event as JSON to path on every phase change.
func WithStatusFile(path string) ReporterOption {
	return func(opts *reporterOptions) {
		opts.statusFilePath = path
	}
}

// WithWriter sets where the spinner is drawn. Defaults to stderr.
func WithWriter(w io.Writer) ReporterOption {
	return func(opts *reporterOptions) {
		opts.writer = w
	}
}

// WithHidden disables the spinner; events and the status file still work.
func WithHidden(hidden bool) ReporterOption {
	return func(opts *reporterOptions) {
		opts.hidden = hidden
	}
}

// DefaultReporter draws an indeterminate progressbar spinner and publishes
// Events to a channel and optional status file.
type DefaultReporter struct {
	Bar     *progressbar.ProgressBar
	Event   Event
	Started time.Time

	opts      reporterOptions
	updatesCh chan Event
	closed    bool
	mu        sync.Mutex
}

// NewReporter creates a DefaultReporter.
func NewReporter(opts ...ReporterOption) *DefaultReporter {
	options := reporterOptions{writer: os.Stderr}
	for _, opt := range opts {
		opt(&options)
	}
	if options.hidden {
		options.writer = io.Discard
	}

	return &DefaultReporter{
		opts: options,
		Event: Event{
			Status:    "initialized",
			Timestamp: time.Now().Format(time.RFC3339),
		},
		updatesCh: make(chan Event, 10),
	}
}

// Begin starts a new spinner for the phase, replacing any previous one.
func (r *DefaultReporter) Begin(step, stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if r.Started.IsZero() {
		r.Started = time.Now()
	}
	if r.Bar != nil {
		_ = r.Bar.Finish()
	}

	r.Bar = progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(stage),
		progressbar.OptionSetWriter(r.opts.writer),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionClearOnFinish(),
	)

	r.setEventInternal("waiting", step, stage)
}

// Tick advances the spinner.
func (r *DefaultReporter) Tick() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Bar == nil {
		return
	}
	_ = r.Bar.Add(1)
}

// Finish clears the spinner and records the final status of the phase. A
// "completed" or "failed" status closes the Updates channel.
func (r *DefaultReporter) Finish(status, stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if r.Bar != nil {
		_ = r.Bar.Finish()
		r.Bar = nil
	}

	r.setEventInternal(status, r.Event.Step, stage)

	if status == "completed" || status == "failed" {
		r.closed = true
		close(r.updatesCh)
	}
}

// Updates returns the channel for receiving events.
func (r *DefaultReporter) Updates() <-chan Event {
	return r.updatesCh
}

// JSON returns the current event as a JSON string.
func (r *DefaultReporter) JSON() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := json.Marshal(r.Event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal progress event: %w", err)
	}
	return string(data), nil
}

// setEventInternal requires the lock to be held.
func (r *DefaultReporter) setEventInternal(status, step, stage string) {
	r.Event.Status = status
	r.Event.Step = step
	r.Event.Stage = stage
	r.Event.Timestamp = time.Now().Format(time.RFC3339)
	if !r.Started.IsZero() {
		r.Event.ElapsedSeconds = time.Since(r.Started).Seconds()
	}

	// Non-blocking; slow consumers miss intermediate phases.
	select {
	case r.updatesCh <- r.Event:
	default:
	}

	r.writeStatusFileInternal()
}

// writeStatusFileInternal requires the lock to be held.
func (r *DefaultReporter) writeStatusFileInternal() {
	if r.opts.statusFilePath == "" {
		return
	}

	content, err := json.MarshalIndent(r.Event, "", "  ")
	if err != nil {
		logger.Warn("Failed to marshal progress event to JSON", "progress", map[string]interface{}{
			"path":  r.opts.statusFilePath,
			"error": err.Error(),
		})
		return
	}

	if err := os.WriteFile(r.opts.statusFilePath, content, 0644); err != nil {
		logger.Warn("Failed to write status file", "progress", map[string]interface{}{
			"path":  r.opts.statusFilePath,
			"error": err.Error(),
		})
	}
}

// Track runs fn while spinning under the given phase. The phase ends as
// "done" on success; on error it is left to the caller to Finish.
func Track(ctx context.Context, r Reporter, step, stage string, fn func(ctx context.Context) error) error {
	if r == nil {
		return fn(ctx)
	}

	r.Begin(step, stage)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.Tick()
			}
		}
	}()

	err := fn(ctx)
	close(stop)
	wg.Wait()

	if err == nil {
		r.Finish("done", stage)
	}
	return err
}
