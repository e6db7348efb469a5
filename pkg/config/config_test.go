package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "ws://localhost:8081/ws", cfg.Signaling.URL)
	assert.Equal(t, 0.05, cfg.VAD.SpeakingThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.VAD.SilenceTimeout)
	assert.True(t, cfg.Media.AudioEnabled)
	assert.True(t, cfg.Media.VideoEnabled)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestValidate(t *testing.T) {
	t.Run("defaults fail without client id", func(t *testing.T) {
		cfg := DefaultConfig()
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "client_id")
	})

	t.Run("defaults pass with client id", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Signaling.ClientID = "client-1"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("rejects out-of-range threshold", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Signaling.ClientID = "client-1"
		cfg.VAD.SpeakingThreshold = 1.5
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "speaking_threshold")
	})

	t.Run("rejects zero silence timeout", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Signaling.ClientID = "client-1"
		cfg.VAD.SilenceTimeout = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("tracing checked only when enabled", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Signaling.ClientID = "client-1"
		cfg.Tracing.Enabled = true
		cfg.Tracing.JaegerURL = ""
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "jaeger_url")
	})
}

func TestLoad(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "info", cfg.Logging.Level)
	})

	t.Run("yaml file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := []byte(`
signaling:
  url: wss://calls.example.com/ws
  client_id: client-42
vad:
  speaking_threshold: 0.1
  silence_timeout: 250ms
`)
		require.NoError(t, os.WriteFile(path, data, 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "wss://calls.example.com/ws", cfg.Signaling.URL)
		assert.Equal(t, "client-42", cfg.Signaling.ClientID)
		assert.Equal(t, 0.1, cfg.VAD.SpeakingThreshold)
		assert.Equal(t, 250*time.Millisecond, cfg.VAD.SilenceTimeout)
	})

	t.Run("env overrides win", func(t *testing.T) {
		t.Setenv("CALLKIT_SIGNALING_URL", "wss://override.example.com/ws")
		t.Setenv("CALLKIT_LOG_LEVEL", "debug")

		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "wss://override.example.com/ws", cfg.Signaling.URL)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})
}
