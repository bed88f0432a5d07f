package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "RTSP2HLS_"
	// ConfigPathEnvVar names a YAML file to load when --config is not given.
	ConfigPathEnvVar = "RTSP2HLS_CONFIG"
)

// LoadOptions controls where configuration comes from.
type LoadOptions struct {
	// ConfigPath is an explicit YAML file. It must exist when set.
	ConfigPath string
	// Overrides are applied last, keyed by koanf path (e.g. "server.listen").
	// Typically built from command-line flags the user actually set.
	Overrides map[string]interface{}
}

// sliceConfigPaths are parsed from comma-separated strings when they come
// from the environment or overrides.
var sliceConfigPaths = []string{
	"stream.allowed_schemes",
	"stream.ffmpeg_extra_params",
	"server.cors_origins",
}

// Load builds the configuration in layers: defaults, YAML file, environment,
// overrides. The result is validated.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path := opts.ConfigPath
	if path == "" {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	for key, value := range opts.Overrides {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// envTransformFunc maps RTSP2HLS_SECTION_KEY to section.key. Only the first
// underscore after the prefix separates the section, so
// RTSP2HLS_STREAM_OUTPUT_DIR becomes stream.output_dir. Variables without a
// section, such as RTSP2HLS_CONFIG, are ignored.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	section, rest, ok := strings.Cut(key, "_")
	if !ok || section == "" || rest == "" {
		return ""
	}
	return section + "." + rest
}

// processSliceFields converts comma-separated strings to slices for known
// slice fields. Values from YAML are already slices and are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		strVal, ok := val.(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
