package hls

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WaitForManifest blocks until the playlist exists with a non-zero size, the
// timeout elapses, or ctx is cancelled. The sink directory must exist.
func (s Sink) WaitForManifest(ctx context.Context, timeout time.Duration) error {
	path := s.ManifestPath()
	if nonEmpty(path) {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := watcher.Add(s.Dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", s.Dir, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// The file may have appeared between the first check and Add.
	if nonEmpty(path) {
		return nil
	}

	target := filepath.Base(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("timeout waiting for %s", target)
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			// ffmpeg writes playlist.m3u8.tmp and renames it over the manifest.
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				if nonEmpty(path) {
					return nil
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			return fmt.Errorf("watch %s: %w", s.Dir, err)
		}
	}
}

func nonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
