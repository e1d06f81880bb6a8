package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, NewDefaultConfig(), cfg)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Video.FrameSkip)
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeConfigFile(t, `
video:
  frame_skip: 10
  scene_change_threshold: 25.5
  debounce_gap: 500ms
engine:
  confidence_threshold: 0.9
  semantic_weight: 0.4
matcher:
  backend: heuristic
  timeout: 5s
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Video.FrameSkip)
	assert.Equal(t, 25.5, cfg.Video.SceneChangeThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.Video.DebounceGap.Duration())
	assert.Equal(t, 0.9, cfg.Engine.ConfidenceThreshold)
	assert.Equal(t, 0.4, cfg.Engine.SemanticWeight)
	assert.Equal(t, 5*time.Second, cfg.Matcher.Timeout.Duration())
	// Untouched sections keep defaults.
	assert.Equal(t, 5, cfg.Engine.MaxEventsPerStep)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
video:
  frame_skip: 10
`)
	t.Setenv("VIDAUDIT_VIDEO_FRAME_SKIP", "3")
	t.Setenv("VIDAUDIT_ENGINE_CONFIDENCE_THRESHOLD", "0.8")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Video.FrameSkip)
	assert.Equal(t, 0.8, cfg.Engine.ConfidenceThreshold)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfigFile(t, `
engine:
  confidence_threshold: 2.0
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "video: [unclosed")

	_, err := Load(path)
	require.Error(t, err)
}
