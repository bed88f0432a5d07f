// Package probe checks whether a live source is reachable with ffprobe before
// an encoder is committed to it.
package probe

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/heyjunin/rtsp2hls/pkg/errors"
	"github.com/heyjunin/rtsp2hls/pkg/logger"
	"github.com/heyjunin/rtsp2hls/pkg/metrics"
)

const (
	DefaultTimeout        = 15 * time.Second
	DefaultConnectTimeout = 10 * time.Second
)

// Options configures a Prober.
type Options struct {
	FFprobeBinary string
	// Timeout bounds the whole ffprobe run.
	Timeout time.Duration
	// ConnectTimeout is handed to ffprobe as its socket timeout.
	ConnectTimeout time.Duration
}

// StreamInfo describes one elementary stream reported by ffprobe.
type StreamInfo struct {
	Index     int    `json:"index"`
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// Result is the outcome of a probe. Reason is empty when ffprobe succeeded.
type Result struct {
	OK      bool             `json:"ok"`
	Reason  errors.ErrorType `json:"reason,omitempty"`
	Detail  string           `json:"detail,omitempty"`
	Streams []StreamInfo     `json:"streams,omitempty"`
}

// ffprobeOutput is the subset of ffprobe's JSON output we read.
type ffprobeOutput struct {
	Streams []struct {
		Index     int    `json:"index"`
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width,omitempty"`
		Height    int    `json:"height,omitempty"`
	} `json:"streams"`
}

// Prober runs ffprobe against source URLs.
type Prober struct {
	opts Options
	log  logger.Logger
}

// New creates a Prober, filling defaults for unset options.
func New(opts Options, log logger.Logger) *Prober {
	if opts.FFprobeBinary == "" {
		opts.FFprobeBinary = "ffprobe"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	return &Prober{opts: opts, log: logger.OrDefault(log)}
}

// Validate reports whether the source may be used. A missing ffprobe counts
// as valid.
func (p *Prober) Validate(ctx context.Context, sourceURL string) bool {
	return p.Probe(ctx, sourceURL).OK
}

// Probe runs ffprobe against sourceURL and classifies the outcome.
func (p *Prober) Probe(ctx context.Context, sourceURL string) Result {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.opts.FFprobeBinary, p.buildArgs(sourceURL)...)
	// Children that keep stdout open must not hold Output past the deadline.
	cmd.WaitDelay = time.Second

	p.log.Debug("Probing source", "probe", map[string]interface{}{
		"command": p.opts.FFprobeBinary + " " + strings.Join(cmd.Args[1:], " "),
	})

	output, err := cmd.Output()
	result := p.classify(ctx, output, err)

	metrics.ProbeResults.WithLabelValues(resultLabel(result)).Inc()
	fields := map[string]interface{}{
		"ok":      result.OK,
		"streams": len(result.Streams),
	}
	if result.Reason != "" {
		fields["reason"] = string(result.Reason)
		fields["detail"] = result.Detail
		p.log.Warn("Source probe did not succeed", "probe", fields)
	} else {
		p.log.Info("Source probe succeeded", "probe", fields)
	}
	return result
}

func (p *Prober) buildArgs(sourceURL string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-timeout", strconv.FormatInt(p.opts.ConnectTimeout.Microseconds(), 10),
		sourceURL,
	}
}

func (p *Prober) classify(ctx context.Context, output []byte, err error) Result {
	if err == nil {
		return Result{OK: true, Streams: parseStreams(output)}
	}

	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Result{
			OK:     false,
			Reason: errors.ProbeTimeout,
			Detail: fmt.Sprintf("%s (limit %s)", errors.GetErrorMessage(errors.ErrProbeTimeout), p.opts.Timeout),
		}
	}
	if ctx.Err() != nil {
		return Result{OK: false, Reason: errors.ProbeRejected, Detail: ctx.Err().Error()}
	}

	if stderrors.Is(err, exec.ErrNotFound) || stderrors.Is(err, fs.ErrNotExist) {
		return Result{
			OK:     true,
			Reason: errors.ProbeUnavailable,
			Detail: errors.GetErrorMessage(errors.ErrProbeUnavailable),
		}
	}

	detail := err.Error()
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		detail = fmt.Sprintf("%s (exit code %d)", errors.GetErrorMessage(errors.ErrProbeRejected), exitErr.ExitCode())
	}
	return Result{OK: false, Reason: errors.ProbeRejected, Detail: detail}
}

// parseStreams extracts stream descriptions; unparseable output yields none.
func parseStreams(output []byte) []StreamInfo {
	var probeOutput ffprobeOutput
	if err := json.Unmarshal(output, &probeOutput); err != nil {
		return nil
	}

	streams := make([]StreamInfo, 0, len(probeOutput.Streams))
	for _, s := range probeOutput.Streams {
		streams = append(streams, StreamInfo{
			Index:     s.Index,
			CodecType: s.CodecType,
			CodecName: s.CodecName,
			Width:     s.Width,
			Height:    s.Height,
		})
	}
	return streams
}

func resultLabel(r Result) string {
	switch r.Reason {
	case "":
		return "ok"
	case errors.ProbeTimeout:
		return "timeout"
	case errors.ProbeUnavailable:
		return "unavailable"
	default:
		return "rejected"
	}
}
