package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heyjunin/rtsp2hls/pkg/errors"
	"github.com/heyjunin/rtsp2hls/pkg/hls"
	"github.com/heyjunin/rtsp2hls/pkg/logger"
	"github.com/heyjunin/rtsp2hls/pkg/probe"
	"github.com/heyjunin/rtsp2hls/pkg/supervisor"
)

type fakeStream struct {
	mu       sync.Mutex
	startErr error
	running  bool
	url      string
	starts   int
	stops    int
}

func (f *fakeStream) ValidateURL(u string) error {
	if !strings.HasPrefix(u, "rtsp://") && !strings.HasPrefix(u, "rtmp://") {
		return errors.New(errors.InvalidInput, "Invalid RTSP/RTMP URL format", "", errors.ErrUnsupportedScheme)
	}
	return nil
}

func (f *fakeStream) Start(u string) (supervisor.StartInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if err := f.ValidateURL(u); err != nil {
		return supervisor.StartInfo{}, err
	}
	if f.startErr != nil {
		return supervisor.StartInfo{}, f.startErr
	}
	f.running = true
	f.url = u
	return supervisor.StartInfo{
		SessionID: "session-1",
		SourceURL: u,
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}, nil
}

func (f *fakeStream) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
}

func (f *fakeStream) Status() supervisor.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := supervisor.Status{Running: f.running, State: "idle"}
	if f.running {
		st.State = "running"
		st.SourceURL = f.url
		st.SessionID = "session-1"
	}
	return st
}

type fakeProber struct {
	result probe.Result
	calls  int
}

func (f *fakeProber) Probe(_ context.Context, _ string) probe.Result {
	f.calls++
	return f.result
}

func newTestServer(t *testing.T, stream *fakeStream, prober *fakeProber, opts Options) (http.Handler, hls.Sink) {
	t.Helper()
	sink := hls.NewSink(t.TempDir())
	if opts.PublicBaseURL == "" {
		opts.PublicBaseURL = "http://media.example.com:5000/"
	}
	return NewServer(stream, prober, sink, opts, logger.Nop()).Router(), sink
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStartStream(t *testing.T) {
	stream := &fakeStream{}
	h, _ := newTestServer(t, stream, &fakeProber{}, Options{})

	rec := do(t, h, http.MethodPost, "/api/stream/start", `{"rtsp_url":"rtsp://cam.local/1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[StartResponse](t, rec)
	assert.Equal(t, "http://media.example.com:5000/stream/playlist.m3u8", resp.HLSURL)
	assert.Equal(t, "started", resp.Status)
	assert.Equal(t, "rtsp://cam.local/1", resp.RTSPURL)
	assert.Equal(t, "2026-01-02T03:04:05Z", resp.StartedAt)
	assert.Equal(t, "session-1", resp.SessionID)
}

func TestStartStreamErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		startErr error
		status   int
		code     int
	}{
		{"malformed body", `{"rtsp_url":`, nil, http.StatusBadRequest, errors.ErrInvalidRequestBody},
		{"bad scheme", `{"rtsp_url":"http://not-a-stream"}`, nil, http.StatusBadRequest, errors.ErrUnsupportedScheme},
		{
			"encoder exits early",
			`{"rtsp_url":"rtsp://cam.local/1"}`,
			errors.New(errors.EncoderStartupFailure, "The encoder exited during startup.", "Connection refused", errors.ErrEncoderExitedEarly),
			http.StatusBadGateway,
			errors.ErrEncoderExitedEarly,
		},
		{
			"output dir",
			`{"rtsp_url":"rtsp://cam.local/1"}`,
			errors.New(errors.SystemError, "Failed to create output directory", "", errors.ErrOutputDirectoryCreationFailed),
			http.StatusInternalServerError,
			errors.ErrOutputDirectoryCreationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestServer(t, &fakeStream{startErr: tt.startErr}, &fakeProber{}, Options{})
			rec := do(t, h, http.MethodPost, "/api/stream/start", tt.body)

			assert.Equal(t, tt.status, rec.Code)
			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestStartWithValidation(t *testing.T) {
	stream := &fakeStream{}
	prober := &fakeProber{result: probe.Result{OK: false, Reason: errors.ProbeTimeout, Detail: "timed out"}}
	h, _ := newTestServer(t, stream, prober, Options{})

	rec := do(t, h, http.MethodPost, "/api/stream/start", `{"rtsp_url":"rtsp://cam.local/1","validate":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, errors.ErrSourceProbeFailed, resp.Code)
	assert.Equal(t, "timed out", resp.Details)
	assert.Zero(t, stream.starts, "encoder must not start after a failed probe")

	prober.result = probe.Result{OK: true}
	rec = do(t, h, http.MethodPost, "/api/stream/start", `{"rtsp_url":"rtsp://cam.local/1","validate":true}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, prober.calls)

	// Invalid URLs are rejected before probing.
	rec = do(t, h, http.MethodPost, "/api/stream/start", `{"rtsp_url":"ftp://x","validate":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 2, prober.calls)
}

func TestStopAndStatus(t *testing.T) {
	stream := &fakeStream{}
	h, _ := newTestServer(t, stream, &fakeProber{}, Options{})

	rec := do(t, h, http.MethodGet, "/api/stream/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, false, raw["active"])
	assert.Nil(t, raw["hls_url"])
	assert.Equal(t, "idle", raw["state"])

	do(t, h, http.MethodPost, "/api/stream/start", `{"rtsp_url":"rtmp://live/app"}`)

	status := decode[StatusResponse](t, do(t, h, http.MethodGet, "/api/stream/status", ""))
	assert.True(t, status.Active)
	assert.True(t, status.Running)
	require.NotNil(t, status.HLSURL)
	assert.Equal(t, "http://media.example.com:5000/stream/playlist.m3u8", *status.HLSURL)
	assert.Equal(t, "rtmp://live/app", status.SourceURL)

	rec = do(t, h, http.MethodPost, "/api/stream/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stop := decode[StopResponse](t, rec)
	assert.Equal(t, "stopped", stop.Status)
	assert.NotEmpty(t, stop.StoppedAt)

	// Stopping again is fine.
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/stream/stop", "").Code)
	assert.Equal(t, 2, stream.stops)
	assert.False(t, decode[StatusResponse](t, do(t, h, http.MethodGet, "/api/stream/status", "")).Active)
}

func TestProbeEndpoint(t *testing.T) {
	prober := &fakeProber{result: probe.Result{
		OK:      true,
		Streams: []probe.StreamInfo{{Index: 0, CodecType: "video", CodecName: "h264"}},
	}}
	h, _ := newTestServer(t, &fakeStream{}, prober, Options{})

	rec := do(t, h, http.MethodPost, "/api/stream/probe", `{"rtsp_url":"rtsp://cam.local/1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ProbeResponse](t, rec)
	assert.True(t, resp.OK)
	assert.Equal(t, "rtsp://cam.local/1", resp.RTSPURL)
	require.Len(t, resp.Streams, 1)

	rec = do(t, h, http.MethodPost, "/api/stream/probe", `{"rtsp_url":"gopher://x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, prober.calls)
}

func TestHealthAndIndex(t *testing.T) {
	h, sink := newTestServer(t, &fakeStream{}, &fakeProber{}, Options{Version: "1.2.3"})

	health := decode[HealthResponse](t, do(t, h, http.MethodGet, "/api/health", ""))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "exists", health.StreamOutputDir)
	assert.Equal(t, "1.2.3", health.Version)
	assert.False(t, health.ActiveStream)

	require.NoError(t, os.RemoveAll(sink.Dir))
	health = decode[HealthResponse](t, do(t, h, http.MethodGet, "/api/health", ""))
	assert.Equal(t, "missing", health.StreamOutputDir)

	index := decode[IndexResponse](t, do(t, h, http.MethodGet, "/", ""))
	assert.Equal(t, "1.2.3", index.Version)
	assert.Equal(t, "/api/stream/start", index.Endpoints["start"])
}

func TestServesStreamFiles(t *testing.T) {
	h, sink := newTestServer(t, &fakeStream{}, &fakeProber{}, Options{})
	require.NoError(t, os.WriteFile(sink.ManifestPath(), []byte("#EXTM3U\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(sink.Dir, "segment_000.ts"), []byte("ts"), 0644))

	rec := do(t, h, http.MethodGet, "/stream/playlist.m3u8", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "#EXTM3U\n", rec.Body.String())
	assert.Equal(t, "application/vnd.apple.mpegurl", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	rec = do(t, h, http.MethodGet, "/stream/segment_000.ts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp2t", rec.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/stream/segment_999.ts", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/stream/", "").Code)
}

func TestUnknownRoute(t *testing.T) {
	h, _ := newTestServer(t, &fakeStream{}, &fakeProber{}, Options{})

	rec := do(t, h, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Endpoint not found", decode[ErrorResponse](t, rec).Error)

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/stream/start", "").Code)
}

func TestRateLimitOnControlRoutes(t *testing.T) {
	h, _ := newTestServer(t, &fakeStream{}, &fakeProber{}, Options{RateLimitEnabled: true, StreamRateLimit: 2})

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/stream/stop", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/stream/stop", "").Code)
	rec := do(t, h, http.MethodPost, "/api/stream/stop", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Status is not limited.
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/stream/status", "").Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestServer(t, &fakeStream{}, &fakeProber{}, Options{CORSOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/stream/start", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestServer(t, &fakeStream{}, &fakeProber{}, Options{})
	rec := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
