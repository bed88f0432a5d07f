// Package metrics holds the Prometheus collectors shared by the conversion
// components. They register on the default registry and are exposed by the
// HTTP server under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EncoderStarts counts Start attempts by outcome ("ok", "invalid_input", "spawn_failed", "exited_early").
	EncoderStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtsp2hls_encoder_starts_total",
		Help: "Total number of encoder start attempts",
	}, []string{"result"})

	// EncoderExits counts encoder exits by reason ("stopped", "killed", "unexpected", "startup").
	EncoderExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtsp2hls_encoder_exits_total",
		Help: "Total number of encoder process exits",
	}, []string{"reason"})

	EncoderErrorLines = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtsp2hls_encoder_error_lines_total",
		Help: "Encoder diagnostic lines classified as errors",
	})

	EncoderRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rtsp2hls_encoder_running",
		Help: "1 while a conversion session is active",
	})

	JanitorDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtsp2hls_janitor_deleted_total",
		Help: "Segments removed by the janitor",
	})

	JanitorErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtsp2hls_janitor_errors_total",
		Help: "Per-file failures during janitor sweeps",
	})

	// ProbeResults counts probe outcomes ("ok", "rejected", "timeout", "unavailable").
	ProbeResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtsp2hls_probe_total",
		Help: "Total number of source probes by result",
	}, []string{"result"})
)
