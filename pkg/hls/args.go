package hls

import (
	"fmt"
)

// LiveOptions contains the encoder settings for a live source.
type LiveOptions struct {
	SourceURL string
	// SegmentDuration is the target segment length in seconds. Defaults to 2.
	SegmentDuration int
	// ListSize is the number of segments kept in the playlist. Defaults to 5.
	ListSize          int
	FFmpegExtraParams []string
}

// BuildLiveArgs constructs the ffmpeg arguments that read the live source and
// write a rolling HLS window into the sink. ffmpeg deletes segments that fall
// out of the window itself.
func BuildLiveArgs(sink Sink, opts LiveOptions) []string {
	if opts.SegmentDuration <= 0 {
		opts.SegmentDuration = 2
	}
	if opts.ListSize <= 0 {
		opts.ListSize = 5
	}

	args := []string{
		"-i", opts.SourceURL,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
	}

	args = append(args,
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%d", opts.SegmentDuration),
		"-hls_list_size", fmt.Sprintf("%d", opts.ListSize),
		"-hls_flags", "delete_segments+append_list",
		"-hls_segment_filename", sink.SegmentPath(),
	)

	// Extra parameters go before the output so they apply to it.
	args = append(args, opts.FFmpegExtraParams...)

	args = append(args, "-y", sink.ManifestPath())

	return args
}
