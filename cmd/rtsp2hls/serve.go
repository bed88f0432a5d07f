package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/heyjunin/rtsp2hls/pkg/api"
	"github.com/heyjunin/rtsp2hls/pkg/logger"
	"github.com/heyjunin/rtsp2hls/pkg/service"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, segment janitor and conversion supervisor",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("listen", ":5000", "HTTP listen address")
	cmd.Flags().String("public-url", "http://localhost:5000", "Base URL used to build playlist links")
	cmd.Flags().Duration("max-duration", 0, "Stop sessions older than this (0 disables)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, map[string]string{
		"listen":       "server.listen",
		"public-url":   "server.public_base_url",
		"max-duration": "stream.max_duration",
	})
	if err != nil {
		return err
	}
	log := logger.NewLogger()

	sink := newSink(cfg)
	if err := sink.Ensure(); err != nil {
		return err
	}

	sup, err := newSupervisor(cfg, log)
	if err != nil {
		return err
	}

	server := api.NewServer(sup, newProber(cfg, log), sink, api.Options{
		PublicBaseURL:    cfg.Server.PublicBaseURL,
		CORSOrigins:      cfg.Server.CORSOrigins,
		RateLimitEnabled: cfg.Server.RateLimitEnabled,
		StreamRateLimit:  cfg.Server.StreamRateLimit,
		Version:          version,
	}, log)

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Encoder shutdown can take the full graceful stop timeout plus the kill wait.
	tree := service.NewTree(log, service.TreeConfig{
		ShutdownTimeout: cfg.Stream.GracefulStopTimeout + cfg.Server.ShutdownTimeout,
	})
	tree.AddEncoderService(service.NewCloserService("conversion-supervisor", sup))
	tree.AddMaintenanceService(newJanitor(cfg, log))
	tree.AddAPIService(service.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Server starting", "main", map[string]interface{}{
		"listen":     cfg.Server.Listen,
		"output_dir": sink.Dir,
		"version":    version,
	})

	err = tree.Serve(ctx)

	// The tree stops its services on cancellation; Close is idempotent and
	// covers a tree that exited on its own.
	sup.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if unstopped, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(unstopped) > 0 {
		log.Warn("Services did not stop in time", "main", map[string]interface{}{
			"count": len(unstopped),
		})
	}
	log.Info("Server stopped", "main", nil)
	return nil
}
