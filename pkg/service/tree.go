// Package service runs the long-lived parts of the server under a suture
// supervisor tree.
package service

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/heyjunin/rtsp2hls/pkg/logger"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	// Default: 5
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	// Default: 30
	FailureDecay float64

	// FailureBackoff is the duration to wait when threshold is exceeded.
	// Default: 15s
	FailureBackoff time.Duration

	// ShutdownTimeout is the maximum time to wait for a service to stop.
	// It must exceed the encoder's graceful stop timeout.
	// Default: 10s
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's own defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the root supervisor with three layers:
//   - encoder: owns the conversion supervisor's lifetime
//   - maintenance: segment janitor
//   - api: HTTP server
type Tree struct {
	root        *suture.Supervisor
	encoder     *suture.Supervisor
	maintenance *suture.Supervisor
	api         *suture.Supervisor
	log         logger.Logger
}

// NewTree creates a supervisor tree. Zero config fields take defaults.
func NewTree(log logger.Logger, config TreeConfig) *Tree {
	defaults := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = defaults.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = defaults.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}
	log = logger.OrDefault(log)

	rootSpec := suture.Spec{
		EventHook:        EventHook(log),
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	// Children inherit the root's EventHook when added.
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("rtsp2hls", rootSpec)
	encoder := suture.New("encoder-layer", childSpec)
	maintenance := suture.New("maintenance-layer", childSpec)
	api := suture.New("api-layer", childSpec)

	root.Add(encoder)
	root.Add(maintenance)
	root.Add(api)

	return &Tree{
		root:        root,
		encoder:     encoder,
		maintenance: maintenance,
		api:         api,
		log:         log,
	}
}

// AddEncoderService adds a service to the encoder layer.
func (t *Tree) AddEncoderService(svc suture.Service) suture.ServiceToken {
	return t.encoder.Add(svc)
}

// AddMaintenanceService adds a service to the maintenance layer.
func (t *Tree) AddMaintenanceService(svc suture.Service) suture.ServiceToken {
	return t.maintenance.Add(svc)
}

// AddAPIService adds a service to the API layer.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve runs the tree until ctx is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine. The channel receives the
// result once the tree stops.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that outlived the shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

// EventHook returns a suture hook that writes supervisor events to log.
func EventHook(log logger.Logger) suture.EventHook {
	log = logger.OrDefault(log)
	return func(e suture.Event) {
		data := e.Map()
		switch e.Type() {
		case suture.EventTypeServicePanic:
			log.Error(e.String(), "service", data)
		case suture.EventTypeServiceTerminate, suture.EventTypeStopTimeout:
			log.Warn(e.String(), "service", data)
		case suture.EventTypeBackoff:
			log.Warn("Entering backoff", "service", data)
		case suture.EventTypeResume:
			log.Info("Resuming after backoff", "service", data)
		default:
			log.Debug(e.String(), "service", data)
		}
	}
}
