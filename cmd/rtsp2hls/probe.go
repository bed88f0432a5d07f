package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/heyjunin/rtsp2hls/pkg/logger"
	"github.com/heyjunin/rtsp2hls/pkg/probe"
	"github.com/heyjunin/rtsp2hls/pkg/progress"
)

func newProbeCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "probe <url>",
		Short: "Check a source with ffprobe and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			prober := newProber(cfg, logger.NewLogger())
			reporter := progress.NewReporter(progress.WithHidden(quiet))

			var result probe.Result
			_ = progress.Track(ctx, reporter, "probing", "Probing "+args[0], func(ctx context.Context) error {
				result = prober.Probe(ctx, args[0])
				return nil
			})
			reporter.Finish("completed", "Probe finished")

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			if !result.OK {
				return fmt.Errorf("source rejected: %s", result.Reason)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide the progress spinner")
	return cmd
}
