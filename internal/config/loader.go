package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// envPrefix namespaces vidaudit environment variables.
	envPrefix = "VIDAUDIT_"
)

// Load loads configuration from an optional YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (VIDAUDIT_ENGINE_CONFIDENCE_THRESHOLD, ...)
//  2. YAML config file (the path passed by the caller; skipped when empty
//     or absent)
//  3. Hardcoded defaults (NewDefaultConfig)
//
// # Environment Variable Mapping
//
// Variables are uppercased with underscore separators. The transformer strips
// the VIDAUDIT_ prefix and splits on the first underscore into section and
// field:
//
//	VIDAUDIT_VIDEO_FRAME_SKIP        -> video.frame_skip
//	VIDAUDIT_ENGINE_SEMANTIC_WEIGHT  -> engine.semantic_weight
//	VIDAUDIT_MATCHER_API_KEY         -> matcher.api_key
//
// # Example
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := loadFile(k, configPath); err != nil {
			return nil, err
		}
	}

	// Override with environment variables.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		// VIDAUDIT_ENGINE_CONFIDENCE_THRESHOLD -> engine.confidence_threshold
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Unmarshal over defaults so absent keys keep their default values.
	cfg := NewDefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile reads and parses one YAML config file into k.
func loadFile(k *koanf.Koanf, configPath string) error {
	f, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file %s exceeds %d bytes", configPath, maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// rawbytes avoids re-opening the file after the size check.
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}
	return nil
}
