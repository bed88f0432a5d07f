// Package api exposes the conversion supervisor over HTTP and serves the
// generated HLS files.
package api

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heyjunin/rtsp2hls/pkg/hls"
	"github.com/heyjunin/rtsp2hls/pkg/logger"
	"github.com/heyjunin/rtsp2hls/pkg/probe"
	"github.com/heyjunin/rtsp2hls/pkg/supervisor"
)

// StreamController is the part of the supervisor the API drives.
type StreamController interface {
	Start(sourceURL string) (supervisor.StartInfo, error)
	Stop()
	Status() supervisor.Status
	ValidateURL(sourceURL string) error
}

// SourceProber checks a source before use.
type SourceProber interface {
	Probe(ctx context.Context, sourceURL string) probe.Result
}

// Options configures the HTTP surface.
type Options struct {
	// PublicBaseURL prefixes the playlist URL handed to clients.
	PublicBaseURL    string
	CORSOrigins      []string
	RateLimitEnabled bool
	// StreamRateLimit is the number of control requests per IP per minute.
	StreamRateLimit int
	Version         string
}

// Server holds the handlers' dependencies.
type Server struct {
	stream StreamController
	prober SourceProber
	sink   hls.Sink
	opts   Options
	log    logger.Logger
}

// NewServer creates a Server.
func NewServer(stream StreamController, prober SourceProber, sink hls.Sink, opts Options, log logger.Logger) *Server {
	if opts.PublicBaseURL == "" {
		opts.PublicBaseURL = "http://localhost:5000"
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	if opts.StreamRateLimit <= 0 {
		opts.StreamRateLimit = 10
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Server{
		stream: stream,
		prober: prober,
		sink:   sink,
		opts:   opts,
		log:    logger.OrDefault(log),
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/stream/status", s.handleStatus)

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit())
		r.Post("/api/stream/start", s.handleStart)
		r.Post("/api/stream/stop", s.handleStop)
		r.Post("/api/stream/probe", s.handleProbe)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/stream/*", http.StripPrefix("/stream/", s.streamFiles()))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Endpoint not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "Method not allowed"})
	})

	return r
}

func (s *Server) rateLimit() func(http.Handler) http.Handler {
	if !s.opts.RateLimitEnabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		s.opts.StreamRateLimit,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "Too many stream control requests"})
		}),
	)
}

// streamFiles serves the sink directory. Playlists must never be cached;
// segments are immutable once listed.
func (s *Server) streamFiles() http.Handler {
	files := http.FileServer(http.Dir(s.sink.Dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path
		if name == "" || strings.HasSuffix(name, "/") {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Stream file not found"})
			return
		}
		switch {
		case strings.HasSuffix(name, ".m3u8"):
			w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
			w.Header().Set("Cache-Control", "no-cache")
		case hls.IsSegment(name):
			w.Header().Set("Content-Type", "video/mp2t")
		}
		files.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		// Segment fetches dominate traffic; keep them at debug.
		fields := map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  chimiddleware.GetReqID(r.Context()),
			"remote":      r.RemoteAddr,
		}
		if strings.HasPrefix(r.URL.Path, "/stream/") || r.URL.Path == "/metrics" {
			s.log.Debug("HTTP request", "api", fields)
			return
		}
		s.log.Info("HTTP request", "api", fields)
	})
}

// hlsURL returns the public playlist URL.
func (s *Server) hlsURL() string {
	return s.opts.PublicBaseURL + "/stream/" + filepath.Base(s.sink.ManifestPath())
}
