package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
clips:
  provider: ark
  poll_interval: 2s
  max_attempts: 10
render:
  fps: 25
ledger:
  backend: redis
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("STABILITY_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ark", cfg.Clips.Provider)
	assert.Equal(t, 2*time.Second, cfg.Clips.PollInterval)
	assert.Equal(t, 10, cfg.Clips.MaxAttempts)
	assert.Equal(t, 25, cfg.Render.FPS)
	assert.Equal(t, "redis", cfg.Ledger.Backend)
	assert.Equal(t, 0.5, cfg.Render.TransitionSec, "untouched defaults survive")
	assert.Equal(t, "sk-test", cfg.Secrets.StabilityKey)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Clips.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Clips.PollInterval)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("render: [1, 2"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Clips.Provider = "sora"
	cfg.Render.FPS = 0
	cfg.Ledger.Backend = "sheets"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clips.provider")
	assert.Contains(t, err.Error(), "render.fps")
	assert.Contains(t, err.Error(), "spreadsheet_id")
}
