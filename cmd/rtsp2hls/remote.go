package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/heyjunin/rtsp2hls/pkg/client"
	"github.com/heyjunin/rtsp2hls/pkg/logger"
	"github.com/heyjunin/rtsp2hls/pkg/progress"
)

// remoteFlags are shared by the commands that talk to a running server.
func remoteFlags(cmd *cobra.Command) {
	cmd.Flags().String("server", "", "Server base URL (defaults to server.public_base_url)")
}

func newRemoteClient(cmd *cobra.Command, reporter progress.Reporter) (*client.Client, error) {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return nil, err
	}
	base, _ := cmd.Flags().GetString("server")
	if base == "" {
		base = cfg.Server.PublicBaseURL
	}
	return client.New(client.Options{
		BaseURL:  base,
		Progress: reporter,
		Logger:   logger.NewLogger(),
	}), nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newRemoteClient(cmd, nil)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			status, err := c.Status(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, status)
		},
	}
	remoteFlags(cmd)
	return cmd
}

func newStartCmd() *cobra.Command {
	var validate bool
	cmd := &cobra.Command{
		Use:   "start <url>",
		Short: "Ask a running server to start converting a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newRemoteClient(cmd, nil)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			resp, err := c.Start(ctx, args[0], validate)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
	cmd.Flags().BoolVar(&validate, "validate", false, "Have the server probe the source first")
	remoteFlags(cmd)
	return cmd
}

func newStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Ask a running server to stop the conversion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newRemoteClient(cmd, nil)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			resp, err := c.Stop(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
	remoteFlags(cmd)
	return cmd
}

func newSnapshotCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "snapshot <dir>",
		Short: "Download the current playlist and its segments from a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reporter := progress.NewReporter(progress.WithHidden(quiet))
			c, err := newRemoteClient(cmd, reporter)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			playlist, err := c.Snapshot(ctx, args[0])
			if err != nil {
				reporter.Finish("failed", err.Error())
				return err
			}
			reporter.Finish("completed", "Snapshot saved")
			fmt.Fprintln(cmd.OutOrStdout(), playlist)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide the progress spinner")
	remoteFlags(cmd)
	return cmd
}
