// Package janitor removes stale media segments from the output directory on
// a timer, independently of whether a conversion is running.
package janitor

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/heyjunin/rtsp2hls/pkg/errors"
	"github.com/heyjunin/rtsp2hls/pkg/hls"
	"github.com/heyjunin/rtsp2hls/pkg/logger"
	"github.com/heyjunin/rtsp2hls/pkg/metrics"
)

const (
	DefaultMaxAge   = 300 * time.Second
	DefaultInterval = 60 * time.Second
)

// Janitor sweeps segment files older than a retention age.
type Janitor struct {
	dir      string
	maxAge   time.Duration
	interval time.Duration
	log      logger.Logger
	now      func() time.Time
	stat     func(path string) (time.Time, error)
	remove   func(path string) error
}

// New creates a Janitor for dir. A negative maxAge or non-positive interval
// selects the default.
func New(dir string, maxAge, interval time.Duration, log logger.Logger) *Janitor {
	if maxAge < 0 {
		maxAge = DefaultMaxAge
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Janitor{
		dir:      dir,
		maxAge:   maxAge,
		interval: interval,
		log:      logger.OrDefault(log),
		now:      time.Now,
		stat:     changeTime,
		remove:   os.Remove,
	}
}

// Sweep deletes every segment whose creation time is not after now-maxAge
// and returns how many were removed. Files already gone are skipped
// silently; other per-file failures are logged and skipped.
func (j *Janitor) Sweep(maxAge time.Duration) int {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if !stderrors.Is(err, fs.ErrNotExist) {
			metrics.JanitorErrors.Inc()
			j.log.Warn("Failed to list output directory", "janitor", map[string]interface{}{
				"dir":   j.dir,
				"error": err.Error(),
			})
		}
		return 0
	}

	cutoff := j.now().Add(-maxAge)
	deleted := 0

	for _, entry := range entries {
		if entry.IsDir() || !hls.IsSegment(entry.Name()) {
			continue
		}
		path := filepath.Join(j.dir, entry.Name())

		created, err := j.stat(path)
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				continue
			}
			j.fileError("Failed to stat segment", path, err)
			continue
		}
		if created.After(cutoff) {
			continue
		}

		if err := j.remove(path); err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				continue
			}
			j.fileError(errors.GetErrorMessage(errors.ErrSegmentDeleteFailed), path, err)
			continue
		}

		deleted++
		j.log.Debug("Removed old segment", "janitor", map[string]interface{}{
			"file": entry.Name(),
			"age":  j.now().Sub(created).Round(time.Second).String(),
		})
	}

	if deleted > 0 {
		metrics.JanitorDeleted.Add(float64(deleted))
		j.log.Info("Segment sweep finished", "janitor", map[string]interface{}{
			"dir":     j.dir,
			"deleted": deleted,
		})
	}
	return deleted
}

func (j *Janitor) fileError(message, path string, err error) {
	metrics.JanitorErrors.Inc()
	j.log.Warn(message, "janitor", map[string]interface{}{
		"file":  path,
		"error": err.Error(),
		"type":  string(errors.SystemError),
	})
}

// Serve implements suture.Service, sweeping with the configured age on every
// interval until ctx is cancelled.
func (j *Janitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.log.Info("Janitor started", "janitor", map[string]interface{}{
		"dir":      j.dir,
		"max_age":  j.maxAge.String(),
		"interval": j.interval.String(),
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.Sweep(j.maxAge)
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (j *Janitor) String() string {
	return "segment-janitor"
}
