package client

import (
	"bufio"
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/heyjunin/rtsp2hls/pkg/errors"
	"github.com/heyjunin/rtsp2hls/pkg/hls"
)

// Snapshot downloads the current playlist and every segment it lists into
// dir, producing a playable copy of the live window. It returns the local
// playlist path.
func (c *Client) Snapshot(ctx context.Context, dir string) (string, error) {
	playlist, err := c.Download(ctx, hls.DefaultManifest, filepath.Join(dir, hls.DefaultManifest))
	if err != nil {
		return "", err
	}

	segments, err := playlistEntries(playlist)
	if err != nil {
		return "", errors.Wrap(err, errors.SystemError, "Failed to read playlist", errors.ErrUnexpectedResponse)
	}

	for _, name := range segments {
		if _, err := c.Download(ctx, name, filepath.Join(dir, name)); err != nil {
			// ffmpeg may have rotated the segment out between the two requests.
			c.log.Warn("Segment download failed", "client", map[string]interface{}{
				"segment": name,
				"error":   err.Error(),
			})
		}
	}
	return playlist, nil
}

// playlistEntries returns the segment names referenced by a media playlist.
func playlistEntries(playlistPath string) ([]string, error) {
	f, err := os.Open(playlistPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, path.Base(line))
	}
	return names, scanner.Err()
}
