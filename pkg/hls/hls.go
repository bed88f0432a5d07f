package hls

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// DefaultManifest is the playlist name the encoder writes and players request.
	DefaultManifest = "playlist.m3u8"
	// DefaultSegmentPattern is the ffmpeg filename template for media segments.
	DefaultSegmentPattern = "segment_%03d.ts"
	// SegmentExt identifies media segment files in the sink.
	SegmentExt = ".ts"
)

// Sink is the directory the encoder writes a live HLS stream into: one
// manifest plus a rolling window of numbered segments. It holds no state
// besides the paths; every query goes to the filesystem.
type Sink struct {
	Dir            string
	Manifest       string
	SegmentPattern string
}

// NewSink creates a Sink rooted at dir with the default file names.
func NewSink(dir string) Sink {
	return Sink{
		Dir:            dir,
		Manifest:       DefaultManifest,
		SegmentPattern: DefaultSegmentPattern,
	}
}

func (s Sink) withDefaults() Sink {
	if s.Manifest == "" {
		s.Manifest = DefaultManifest
	}
	if s.SegmentPattern == "" {
		s.SegmentPattern = DefaultSegmentPattern
	}
	return s
}

// Ensure creates the sink directory if it does not exist.
func (s Sink) Ensure() error {
	if s.Dir == "" {
		return fmt.Errorf("output directory not set")
	}
	return os.MkdirAll(s.Dir, 0755)
}

// ManifestPath returns the full path of the playlist.
func (s Sink) ManifestPath() string {
	return filepath.Join(s.Dir, s.withDefaults().Manifest)
}

// SegmentPath returns the ffmpeg segment filename template inside the sink.
func (s Sink) SegmentPath() string {
	return filepath.Join(s.Dir, s.withDefaults().SegmentPattern)
}

// ManifestExists reports whether the playlist is currently on disk.
func (s Sink) ManifestExists() bool {
	info, err := os.Stat(s.ManifestPath())
	return err == nil && info.Mode().IsRegular()
}

// Exists reports whether the sink directory is present.
func (s Sink) Exists() bool {
	info, err := os.Stat(s.Dir)
	return err == nil && info.IsDir()
}

// Segments lists the media segment file names currently in the sink, sorted.
func (s Sink) Segments() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && IsSegment(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// IsSegment reports whether name is a media segment file.
func IsSegment(name string) bool {
	return strings.EqualFold(filepath.Ext(name), SegmentExt)
}
