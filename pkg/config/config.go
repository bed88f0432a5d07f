// Package config loads rtsp2hls settings from defaults, an optional YAML
// file, RTSP2HLS_* environment variables and command-line overrides.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the complete runtime configuration.
type Config struct {
	Stream  StreamConfig  `koanf:"stream"`
	Probe   ProbeConfig   `koanf:"probe"`
	Janitor JanitorConfig `koanf:"janitor"`
	Server  ServerConfig  `koanf:"server"`
	Log     LogConfig     `koanf:"log"`
}

// StreamConfig configures the encoder and its output.
type StreamConfig struct {
	OutputDir           string        `koanf:"output_dir"`
	FFmpegPath          string        `koanf:"ffmpeg_path"`
	FFprobePath         string        `koanf:"ffprobe_path"`
	AllowedSchemes      []string      `koanf:"allowed_schemes"`
	LivenessDelay       time.Duration `koanf:"liveness_delay"`
	GracefulStopTimeout time.Duration `koanf:"graceful_stop_timeout"`
	// MaxDuration stops sessions older than this. Zero disables the limit.
	MaxDuration       time.Duration `koanf:"max_duration"`
	HLSTime           int           `koanf:"hls_time"`
	HLSListSize       int           `koanf:"hls_list_size"`
	FFmpegExtraParams []string      `koanf:"ffmpeg_extra_params"`
}

// ProbeConfig configures ffprobe source validation.
type ProbeConfig struct {
	Timeout        time.Duration `koanf:"timeout"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// JanitorConfig configures periodic segment cleanup.
type JanitorConfig struct {
	MaxAge   time.Duration `koanf:"max_age"`
	Interval time.Duration `koanf:"interval"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen           string        `koanf:"listen"`
	PublicBaseURL    string        `koanf:"public_base_url"`
	CORSOrigins      []string      `koanf:"cors_origins"`
	RateLimitEnabled bool          `koanf:"rate_limit_enabled"`
	StreamRateLimit  int           `koanf:"stream_rate_limit"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level   string `koanf:"level"`
	Console bool   `koanf:"console"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Stream: StreamConfig{
			OutputDir:           "stream_output",
			FFmpegPath:          "ffmpeg",
			FFprobePath:         "ffprobe",
			AllowedSchemes:      []string{"rtsp", "rtmp"},
			LivenessDelay:       2 * time.Second,
			GracefulStopTimeout: 5 * time.Second,
			MaxDuration:         0,
			HLSTime:             2,
			HLSListSize:         5,
		},
		Probe: ProbeConfig{
			Timeout:        15 * time.Second,
			ConnectTimeout: 10 * time.Second,
		},
		Janitor: JanitorConfig{
			MaxAge:   300 * time.Second,
			Interval: 60 * time.Second,
		},
		Server: ServerConfig{
			Listen:           ":5000",
			PublicBaseURL:    "http://localhost:5000",
			CORSOrigins:      []string{"http://localhost:3000", "http://127.0.0.1:3000"},
			RateLimitEnabled: true,
			StreamRateLimit:  10,
			ShutdownTimeout:  10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

var knownSchemes = map[string]bool{
	"rtsp":  true,
	"rtsps": true,
	"rtmp":  true,
	"rtmps": true,
	"srt":   true,
	"udp":   true,
	"http":  true,
	"https": true,
}

var logLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
	"fatal": true,
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Stream.OutputDir) == "" {
		return fmt.Errorf("stream.output_dir must not be empty")
	}
	if c.Stream.FFmpegPath == "" {
		return fmt.Errorf("stream.ffmpeg_path must not be empty")
	}
	if len(c.Stream.AllowedSchemes) == 0 {
		return fmt.Errorf("stream.allowed_schemes must list at least one scheme")
	}
	for _, s := range c.Stream.AllowedSchemes {
		if !knownSchemes[strings.ToLower(s)] {
			return fmt.Errorf("stream.allowed_schemes: unknown scheme %q", s)
		}
	}

	positive := []struct {
		key string
		d   time.Duration
	}{
		{"stream.liveness_delay", c.Stream.LivenessDelay},
		{"stream.graceful_stop_timeout", c.Stream.GracefulStopTimeout},
		{"probe.timeout", c.Probe.Timeout},
		{"probe.connect_timeout", c.Probe.ConnectTimeout},
		{"janitor.interval", c.Janitor.Interval},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", p.key, p.d)
		}
	}
	if c.Stream.MaxDuration < 0 {
		return fmt.Errorf("stream.max_duration must not be negative, got %s", c.Stream.MaxDuration)
	}
	if c.Janitor.MaxAge < 0 {
		return fmt.Errorf("janitor.max_age must not be negative, got %s", c.Janitor.MaxAge)
	}
	if c.Stream.HLSTime <= 0 {
		return fmt.Errorf("stream.hls_time must be positive, got %d", c.Stream.HLSTime)
	}
	if c.Stream.HLSListSize <= 0 {
		return fmt.Errorf("stream.hls_list_size must be positive, got %d", c.Stream.HLSListSize)
	}

	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must not be empty")
	}
	if c.Server.PublicBaseURL != "" {
		u, err := url.Parse(c.Server.PublicBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("server.public_base_url must be an absolute URL, got %q", c.Server.PublicBaseURL)
		}
	}
	if c.Server.RateLimitEnabled && c.Server.StreamRateLimit <= 0 {
		return fmt.Errorf("server.stream_rate_limit must be positive when rate limiting is enabled")
	}

	if !logLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	return nil
}
