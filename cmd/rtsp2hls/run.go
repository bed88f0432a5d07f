package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/heyjunin/rtsp2hls/pkg/errors"
	"github.com/heyjunin/rtsp2hls/pkg/logger"
	"github.com/heyjunin/rtsp2hls/pkg/progress"
	"github.com/heyjunin/rtsp2hls/pkg/supervisor"
)

var (
	runSourceURL   string
	runValidate    bool
	runWaitTimeout time.Duration
	runQuiet       bool
	runStatusFile  string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Convert one source in the foreground until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runForeground,
	}
	cmd.Flags().StringVarP(&runSourceURL, "url", "u", "", "RTSP or RTMP source URL (required)")
	cmd.Flags().BoolVar(&runValidate, "validate", false, "Probe the source with ffprobe before starting")
	cmd.Flags().DurationVar(&runWaitTimeout, "wait-timeout", 30*time.Second, "How long to wait for the first playlist")
	cmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Hide the progress spinner")
	cmd.Flags().StringVar(&runStatusFile, "status-file", "", "Write progress events as JSON to this file")
	cmd.Flags().Duration("max-duration", 0, "Stop after this long (0 runs until interrupted)")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func runForeground(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, map[string]string{"max-duration": "stream.max_duration"})
	if err != nil {
		return err
	}
	log := logger.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reporterOpts := []progress.ReporterOption{progress.WithHidden(runQuiet)}
	if runStatusFile != "" {
		reporterOpts = append(reporterOpts, progress.WithStatusFile(runStatusFile))
	}
	reporter := progress.NewReporter(reporterOpts...)

	sup, err := newSupervisor(cfg, log)
	if err != nil {
		return err
	}
	defer sup.Close()

	if runValidate {
		if err := sup.ValidateURL(runSourceURL); err != nil {
			return err
		}
		prober := newProber(cfg, log)
		err := progress.Track(ctx, reporter, "probing", "Probing source", func(ctx context.Context) error {
			if result := prober.Probe(ctx, runSourceURL); !result.OK {
				return errors.New(errors.InvalidInput, errors.GetErrorMessage(errors.ErrSourceProbeFailed),
					result.Detail, errors.ErrSourceProbeFailed)
			}
			return nil
		})
		if err != nil {
			reporter.Finish("failed", err.Error())
			return err
		}
	}

	var info supervisor.StartInfo
	err = progress.Track(ctx, reporter, "starting", "Starting encoder", func(ctx context.Context) error {
		var serr error
		info, serr = sup.Start(runSourceURL)
		return serr
	})
	if err != nil {
		reporter.Finish("failed", err.Error())
		return err
	}

	err = progress.Track(ctx, reporter, "waiting", "Waiting for playlist", func(ctx context.Context) error {
		return sup.Sink().WaitForManifest(ctx, runWaitTimeout)
	})
	if err != nil {
		reporter.Finish("failed", err.Error())
		sup.Stop()
		if ctx.Err() != nil {
			return nil
		}
		if last := sup.Status().LastError; last != nil {
			return last
		}
		return err
	}
	reporter.Finish("completed", "Streaming")

	playlist, _ := filepath.Abs(info.PlaylistPath)
	fmt.Fprintln(cmd.OutOrStdout(), playlist)

	// Block until interrupted or the encoder stops on its own.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Received signal, stopping conversion", "main", nil)
			sup.Stop()
			return nil
		case <-ticker.C:
			status := sup.Status()
			if status.Running && status.SessionID == info.SessionID {
				continue
			}
			if status.LastError != nil {
				return status.LastError
			}
			log.Info("Conversion finished", "main", map[string]interface{}{
				"session_id": info.SessionID,
			})
			return nil
		}
	}
}
