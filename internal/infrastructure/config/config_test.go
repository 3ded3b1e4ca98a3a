package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 4, cfg.Sandbox.PoolSize)
	assert.Equal(t, 5*time.Second, cfg.Sandbox.Timeout.Std())
	assert.Equal(t, 100, cfg.Capture.Limit)
	assert.Equal(t, "json", cfg.Capture.Codec)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowOrigins)
}

func TestLoadOrDefault(t *testing.T) {
	t.Setenv(FileEnv, "")

	cfg := LoadOrDefault()
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                      "9000",
		"RUNJS_SERVER_HOST":         "127.0.0.1",
		"SANDBOX_TIMEOUT":           "250ms",
		"SANDBOX_POOL_SIZE":         "8",
		"CAPTURE_LIMIT":             "20",
		"CAPTURE_CODEC":             "msgpack+zstd",
		"LOG_LEVEL":                 "debug",
		"LOG_DEV":                   "true",
		"RATE_LIMIT_ENABLED":        "false",
		"CORS_ORIGINS":              "https://a.example,https://b.example",
		"CAPTURE_EVENTS_PER_SECOND": "12.5",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 250*time.Millisecond, cfg.Sandbox.Timeout.Std())
	assert.Equal(t, 8, cfg.Sandbox.PoolSize)
	assert.Equal(t, 20, cfg.Capture.Limit)
	assert.Equal(t, "msgpack+zstd", cfg.Capture.Codec)
	assert.Equal(t, 12.5, cfg.Capture.EventsPerSecond)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowOrigins)

	// untouched values keep their defaults
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.Equal(t, 1024, cfg.Sandbox.MaxCallStack)
}

func TestLoadInvalidEnvironment(t *testing.T) {
	t.Setenv("SANDBOX_TIMEOUT", "soon")

	_, err := Load()
	assert.Error(t, err)
	assert.Equal(t, Default(), LoadOrDefault())
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFileYAML(t *testing.T) {
	path := writeFile(t, "runjs.yaml", `
server:
  port: "7000"
sandbox:
  timeout: 2s
  dom: false
capture:
  limit: 5
cors:
  allow_origins: ["https://x.example"]
`)
	t.Setenv(FileEnv, path)
	t.Setenv("CAPTURE_LIMIT", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Sandbox.Timeout.Std())
	assert.False(t, cfg.Sandbox.EnableDOM)
	assert.Equal(t, 7, cfg.Capture.Limit, "environment overrides the file")
	assert.Equal(t, []string{"https://x.example"}, cfg.CORS.AllowOrigins)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadFileTOML(t *testing.T) {
	path := writeFile(t, "runjs.toml", `
[logging]
level = "warn"

[sandbox]
pool_size = 2
acquire_timeout = "1500ms"

[capture]
codec = "msgpack"
`)
	cfg := Default()
	require.NoError(t, LoadFile(cfg, path))

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 2, cfg.Sandbox.PoolSize)
	assert.Equal(t, 1500*time.Millisecond, cfg.Sandbox.AcquireTimeout.Std())
	assert.Equal(t, "msgpack", cfg.Capture.Codec)
	assert.Equal(t, 100, cfg.Capture.Limit)
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(t.TempDir(), "nope.yaml")},
		{"extension", writeFile(t, "runjs.ini", "port=1")},
		{"syntax", writeFile(t, "runjs.toml", "[[[")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, LoadFile(Default(), tt.path))
		})
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Std())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("x")))
}
