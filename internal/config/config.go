// Package config provides configuration loading for vidaudit.
//
// Configuration precedence (highest to lowest): environment variables with the
// VIDAUDIT_ prefix, a YAML config file, hardcoded defaults. Thresholds and
// skip rates are plain values handed to the extraction and correlation
// components; nothing in this package is ambient or mutable after Load.
package config

import (
	"errors"
	"fmt"
)

// ErrInvalid indicates a configuration value outside its legal range.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the complete vidaudit configuration.
type Config struct {
	Logging LoggingConfig `koanf:"logging"`
	Video   VideoConfig   `koanf:"video"`
	Matcher MatcherConfig `koanf:"matcher"`
	Engine  EngineConfig  `koanf:"engine"`
	Report  ReportConfig  `koanf:"report"`
}

// LoggingConfig holds zap logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// VideoConfig holds event-extraction configuration.
type VideoConfig struct {
	// FrameSkip analyzes every Nth frame. Must be >= 1.
	FrameSkip int `koanf:"frame_skip"`
	// SceneChangeThreshold is the minimum mean-pixel-delta score for a sample
	// to open or extend an event window. Must be > 0.
	SceneChangeThreshold float64 `koanf:"scene_change_threshold"`
	// DebounceGap merges event windows closer together than this gap, so a
	// fast multi-frame transition reports as one event.
	DebounceGap Duration `koanf:"debounce_gap"`
	// MaxParallelSources bounds concurrent extraction across multiple videos.
	MaxParallelSources int `koanf:"max_parallel_sources"`
	// FFmpegPath and FFprobePath override binary discovery on PATH.
	FFmpegPath  string `koanf:"ffmpeg_path"`
	FFprobePath string `koanf:"ffprobe_path"`
}

// MatcherConfig holds semantic matcher configuration.
type MatcherConfig struct {
	// Backend selects the matcher implementation: "heuristic" or "anthropic".
	Backend string `koanf:"backend"`
	Model   string `koanf:"model"`
	APIKey  Secret `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	// Timeout bounds a single Score call. On expiry the step degrades to
	// zero confidence; the run continues.
	Timeout Duration `koanf:"timeout"`
	// RequestsPerSecond and Burst configure the rate limiter in front of the
	// remote backend. A resource policy, not a correctness requirement.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
	MaxRetries        int     `koanf:"max_retries"`
}

// EngineConfig holds correlation engine configuration.
type EngineConfig struct {
	// MaxEventsPerStep bounds the forward-looking candidate window. Must be >= 1.
	MaxEventsPerStep int `koanf:"max_events_per_step"`
	// ConfidenceThreshold is the minimum combined confidence for a step to
	// count as observed. Must be in [0, 1].
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`
	// SemanticWeight is the semantic share of the combined confidence; the
	// temporal-proximity share is 1 - SemanticWeight. In [0, 1].
	SemanticWeight float64 `koanf:"semantic_weight"`
	// TemporalDecay is the exponential decay rate applied per candidate
	// position past the cursor. Must be >= 0.
	TemporalDecay float64 `koanf:"temporal_decay"`
}

// ReportConfig holds report rendering configuration.
type ReportConfig struct {
	OutputDir string `koanf:"output_dir"`
	// MaxDescriptionLen truncates step descriptions in the Markdown table.
	MaxDescriptionLen int `koanf:"max_description_len"`
}

// NewDefaultConfig returns config with production-ready defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Video: VideoConfig{
			FrameSkip:            30,
			SceneChangeThreshold: 30,
			DebounceGap:          Duration(750_000_000), // 750ms
			MaxParallelSources:   4,
		},
		Matcher: MatcherConfig{
			Backend:           "heuristic",
			Model:             "claude-3-haiku-20240307",
			BaseURL:           "https://api.anthropic.com",
			Timeout:           Duration(15_000_000_000), // 15s
			RequestsPerSecond: 2,
			Burst:             4,
			MaxRetries:        2,
		},
		Engine: EngineConfig{
			MaxEventsPerStep:    5,
			ConfidenceThreshold: 0.6,
			SemanticWeight:      0.7,
			TemporalDecay:       0.35,
		},
		Report: ReportConfig{
			OutputDir:         "output",
			MaxDescriptionLen: 50,
		},
	}
}

// Validate checks every section. Returns the first violation found.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.Video.Validate(); err != nil {
		return err
	}
	if err := c.Matcher.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	return c.Report.Validate()
}

// Validate checks logging configuration.
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level %q (want debug|info|warn|error)", ErrInvalid, c.Level)
	}
	switch c.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: logging.format %q (want json|console)", ErrInvalid, c.Format)
	}
	return nil
}

// Validate checks extraction configuration.
func (c *VideoConfig) Validate() error {
	if c.FrameSkip < 1 {
		return fmt.Errorf("%w: video.frame_skip must be >= 1, got %d", ErrInvalid, c.FrameSkip)
	}
	if c.SceneChangeThreshold <= 0 {
		return fmt.Errorf("%w: video.scene_change_threshold must be > 0, got %g", ErrInvalid, c.SceneChangeThreshold)
	}
	if c.MaxParallelSources < 1 {
		return fmt.Errorf("%w: video.max_parallel_sources must be >= 1, got %d", ErrInvalid, c.MaxParallelSources)
	}
	return nil
}

// Validate checks matcher configuration.
func (c *MatcherConfig) Validate() error {
	switch c.Backend {
	case "heuristic", "anthropic":
	default:
		return fmt.Errorf("%w: matcher.backend %q (want heuristic|anthropic)", ErrInvalid, c.Backend)
	}
	if c.Backend == "anthropic" && !c.APIKey.IsSet() {
		return fmt.Errorf("%w: matcher.api_key required for anthropic backend", ErrInvalid)
	}
	if c.Timeout.Duration() <= 0 {
		return fmt.Errorf("%w: matcher.timeout must be positive", ErrInvalid)
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("%w: matcher.requests_per_second must be > 0, got %g", ErrInvalid, c.RequestsPerSecond)
	}
	if c.Burst < 1 {
		return fmt.Errorf("%w: matcher.burst must be >= 1, got %d", ErrInvalid, c.Burst)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: matcher.max_retries must be >= 0, got %d", ErrInvalid, c.MaxRetries)
	}
	return nil
}

// Validate checks engine configuration.
func (c *EngineConfig) Validate() error {
	if c.MaxEventsPerStep < 1 {
		return fmt.Errorf("%w: engine.max_events_per_step must be >= 1, got %d", ErrInvalid, c.MaxEventsPerStep)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: engine.confidence_threshold must be in [0,1], got %g", ErrInvalid, c.ConfidenceThreshold)
	}
	if c.SemanticWeight < 0 || c.SemanticWeight > 1 {
		return fmt.Errorf("%w: engine.semantic_weight must be in [0,1], got %g", ErrInvalid, c.SemanticWeight)
	}
	if c.TemporalDecay < 0 {
		return fmt.Errorf("%w: engine.temporal_decay must be >= 0, got %g", ErrInvalid, c.TemporalDecay)
	}
	return nil
}

// Validate checks report configuration.
func (c *ReportConfig) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("%w: report.output_dir must not be empty", ErrInvalid)
	}
	if c.MaxDescriptionLen < 1 {
		return fmt.Errorf("%w: report.max_description_len must be >= 1, got %d", ErrInvalid, c.MaxDescriptionLen)
	}
	return nil
}
