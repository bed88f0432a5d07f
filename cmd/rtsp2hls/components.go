package main

import (
	"github.com/heyjunin/rtsp2hls/pkg/config"
	"github.com/heyjunin/rtsp2hls/pkg/hls"
	"github.com/heyjunin/rtsp2hls/pkg/janitor"
	"github.com/heyjunin/rtsp2hls/pkg/logger"
	"github.com/heyjunin/rtsp2hls/pkg/probe"
	"github.com/heyjunin/rtsp2hls/pkg/supervisor"
)

func newSink(cfg *config.Config) hls.Sink {
	return hls.NewSink(cfg.Stream.OutputDir)
}

func newSupervisor(cfg *config.Config, log logger.Logger) (*supervisor.Supervisor, error) {
	return supervisor.New(supervisor.Options{
		Sink:                newSink(cfg),
		FFmpegBinary:        cfg.Stream.FFmpegPath,
		AllowedSchemes:      cfg.Stream.AllowedSchemes,
		LivenessDelay:       cfg.Stream.LivenessDelay,
		GracefulStopTimeout: cfg.Stream.GracefulStopTimeout,
		MaxDuration:         cfg.Stream.MaxDuration,
		HLSTime:             cfg.Stream.HLSTime,
		HLSListSize:         cfg.Stream.HLSListSize,
		FFmpegExtraParams:   cfg.Stream.FFmpegExtraParams,
	}, log)
}

func newProber(cfg *config.Config, log logger.Logger) *probe.Prober {
	return probe.New(probe.Options{
		FFprobeBinary:  cfg.Stream.FFprobePath,
		Timeout:        cfg.Probe.Timeout,
		ConnectTimeout: cfg.Probe.ConnectTimeout,
	}, log)
}

func newJanitor(cfg *config.Config, log logger.Logger) *janitor.Janitor {
	return janitor.New(cfg.Stream.OutputDir, cfg.Janitor.MaxAge, cfg.Janitor.Interval, log)
}
