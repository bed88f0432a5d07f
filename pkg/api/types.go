package api

import (
	"github.com/heyjunin/rtsp2hls/pkg/errors"
	"github.com/heyjunin/rtsp2hls/pkg/probe"
	"github.com/heyjunin/rtsp2hls/pkg/supervisor"
)

// StartRequest is the body of POST /api/stream/start.
type StartRequest struct {
	RTSPURL string `json:"rtsp_url"`
	// Validate runs the source probe before starting the encoder.
	Validate bool `json:"validate,omitempty"`
}

// StartResponse is returned when a session has been committed.
type StartResponse struct {
	HLSURL    string `json:"hls_url"`
	Status    string `json:"status"`
	RTSPURL   string `json:"rtsp_url"`
	StartedAt string `json:"started_at"`
	SessionID string `json:"session_id"`
}

// StopResponse is returned by POST /api/stream/stop.
type StopResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	StoppedAt string `json:"stopped_at"`
}

// StatusResponse is returned by GET /api/stream/status. HLSURL is null
// while no session is running.
type StatusResponse struct {
	supervisor.Status
	Active    bool    `json:"active"`
	HLSURL    *string `json:"hls_url"`
	Timestamp string  `json:"timestamp"`
}

// ProbeRequest is the body of POST /api/stream/probe.
type ProbeRequest struct {
	RTSPURL string `json:"rtsp_url"`
}

// ProbeResponse wraps a probe result with the probed URL.
type ProbeResponse struct {
	probe.Result
	RTSPURL string `json:"rtsp_url"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status          string `json:"status"`
	StreamOutputDir string `json:"stream_output_dir"`
	ActiveStream    bool   `json:"active_stream"`
	Timestamp       string `json:"timestamp"`
	Version         string `json:"version"`
}

// IndexResponse is returned by GET /.
type IndexResponse struct {
	Message   string            `json:"message"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string           `json:"error"`
	Type      errors.ErrorType `json:"type,omitempty"`
	Code      int              `json:"code,omitempty"`
	Details   string           `json:"details,omitempty"`
	Timestamp string           `json:"timestamp,omitempty"`
}
