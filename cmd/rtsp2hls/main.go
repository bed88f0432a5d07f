package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/heyjunin/rtsp2hls/pkg/config"
	"github.com/heyjunin/rtsp2hls/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var configPath string

// flagKeys maps persistent flags to configuration keys. A flag only
// overrides the loaded configuration when the user set it.
var flagKeys = map[string]string{
	"output-dir":  "stream.output_dir",
	"ffmpeg":      "stream.ffmpeg_path",
	"ffprobe":     "stream.ffprobe_path",
	"log-level":   "log.level",
	"log-console": "log.console",
}

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rtsp2hls",
		Short: "rtsp2hls - Live RTSP/RTMP to HLS converter",
		Long: `rtsp2hls converts a live RTSP or RTMP source into a rolling HLS playlist
with ffmpeg. It can run as an HTTP service that starts and stops the
conversion on request, or convert a single source in the foreground.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to a YAML config file (or set "+config.ConfigPathEnvVar+")")
	flags.String("output-dir", "stream_output", "Directory for the playlist and segments")
	flags.String("ffmpeg", "ffmpeg", "Path to ffmpeg binary")
	flags.String("ffprobe", "ffprobe", "Path to ffprobe binary")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.Bool("log-console", false, "Human-readable log output instead of JSON")

	rootCmd.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newProbeCmd(),
		newSweepCmd(),
		newStatusCmd(),
		newStartCmd(),
		newStopCmd(),
		newSnapshotCmd(),
	)
	return rootCmd
}

// loadConfig loads the configuration, applies the flags the user set and
// configures the global logger from the result.
func loadConfig(cmd *cobra.Command, extra map[string]string) (*config.Config, error) {
	overrides := map[string]interface{}{}
	collect := func(keys map[string]string) error {
		for name, key := range keys {
			flag := cmd.Flags().Lookup(name)
			if flag == nil || !flag.Changed {
				continue
			}
			if flag.Value.Type() == "bool" {
				v, err := cmd.Flags().GetBool(name)
				if err != nil {
					return err
				}
				overrides[key] = v
				continue
			}
			overrides[key] = flag.Value.String()
		}
		return nil
	}
	if err := collect(flagKeys); err != nil {
		return nil, err
	}
	if err := collect(extra); err != nil {
		return nil, err
	}

	cfg, err := config.Load(config.LoadOptions{ConfigPath: configPath, Overrides: overrides})
	if err != nil {
		return nil, err
	}

	logger.Configure(logger.Options{Level: cfg.Log.Level, Console: cfg.Log.Console})
	return cfg, nil
}
