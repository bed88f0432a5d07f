package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heyjunin/rtsp2hls/pkg/logger"
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete segments older than the retention age once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, map[string]string{"max-age": "janitor.max_age"})
			if err != nil {
				return err
			}
			deleted := newJanitor(cfg, logger.NewLogger()).Sweep(cfg.Janitor.MaxAge)
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d segment(s) from %s\n", deleted, cfg.Stream.OutputDir)
			return nil
		},
	}
	cmd.Flags().Duration("max-age", 0, "Delete segments older than this (defaults to janitor.max_age)")
	return cmd
}
