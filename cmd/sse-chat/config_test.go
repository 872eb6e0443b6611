package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv(endpointEnv, "")

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), false)
	require.NoError(t, err)

	assert.Equal(t, defaultEndpoint, cfg.Endpoint)
	assert.Equal(t, "/api/chat_sse", cfg.Path)
	assert.True(t, cfg.CancelPrevious)
	assert.Empty(t, cfg.ErrorMarker)
	assert.Zero(t, cfg.StreamTimeout)
	assert.Equal(t, 4<<20, cfg.MaxEventSize)
	assert.True(t, cfg.Markdown)
	assert.NotEmpty(t, cfg.Greeting)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Log.File)
}

func TestLoadConfigOverlay(t *testing.T) {
	t.Setenv(endpointEnv, "http://from-env:1234")

	path := writeConfig(t, `
endpoint: "https://chat.example.com"
errorMarker: "[connection lost]"
streamTimeout: 90s
maxEventSize: 16777216
cancelPrevious: false
log:
  file: /tmp/sse-chat.log
`)

	cfg, err := loadConfig(path, true)
	require.NoError(t, err)

	assert.Equal(t, "https://chat.example.com", cfg.Endpoint)
	assert.Equal(t, "[connection lost]", cfg.ErrorMarker)
	assert.Equal(t, 90*time.Second, cfg.StreamTimeout)
	assert.Equal(t, 16<<20, cfg.MaxEventSize)
	assert.False(t, cfg.CancelPrevious)
	assert.Equal(t, "/tmp/sse-chat.log", cfg.Log.File)
	// Keys left out keep the embedded defaults.
	assert.Equal(t, "/api/chat_sse", cfg.Path)
	assert.Equal(t, "info", cfg.Log.Level)

	opts := cfg.chatOptions()
	assert.False(t, opts.CancelPrevious)
	assert.Equal(t, "[connection lost]", opts.ErrorMarker)
	assert.Equal(t, 90*time.Second, opts.StreamTimeout)
}

func TestLoadConfigEndpointFromEnv(t *testing.T) {
	t.Setenv(endpointEnv, "http://from-env:1234")

	cfg, err := loadConfig(writeConfig(t, "greeting: \"\"\n"), true)
	require.NoError(t, err)

	assert.Equal(t, "http://from-env:1234", cfg.Endpoint)
	assert.Empty(t, cfg.Greeting)
}

func TestLoadConfigEmptyFile(t *testing.T) {
	t.Setenv(endpointEnv, "")

	cfg, err := loadConfig(writeConfig(t, ""), true)
	require.NoError(t, err)
	assert.Equal(t, defaultEndpoint, cfg.Endpoint)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "negative timeout", content: "streamTimeout: -1s\n"},
		{name: "bad timeout", content: "streamTimeout: soon\n"},
		{name: "relative path", content: "path: api/chat\n"},
		{name: "negative max event size", content: "maxEventSize: -1\n"},
		{name: "bad log level", content: "log:\n  level: loud\n"},
		{name: "not yaml", content: "endpoint: [unclosed\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(writeConfig(t, tt.content), true)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), true)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, closeLog, err := logConfig{Level: "debug"}.newLogger()
	require.NoError(t, err)
	logger.Debug().Msg("discarded")
	require.NoError(t, closeLog())

	path := filepath.Join(t.TempDir(), "chat.log")
	logger, closeLog, err = logConfig{File: path, Level: "info"}.newLogger()
	require.NoError(t, err)
	logger.Debug().Msg("filtered")
	logger.Info().Str("module", "test").Msg("kept")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"kept"`)
	assert.NotContains(t, string(data), "filtered")

	_, _, err = logConfig{Level: "loud"}.newLogger()
	assert.Error(t, err)
}
