package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// FileEnv names the optional YAML or TOML file loaded before the environment
const FileEnv = "RUNJS_CONFIG"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Sandbox   SandboxConfig   `yaml:"sandbox" toml:"sandbox"`
	Capture   CaptureConfig   `yaml:"capture" toml:"capture"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" toml:"cors"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string   `envconfig:"PORT" yaml:"port" toml:"port"`
	Host            string   `envconfig:"HOST" yaml:"host" toml:"host"`
	ShutdownTimeout Duration `envconfig:"SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// SandboxConfig holds script execution limits.
type SandboxConfig struct {
	PoolSize       int      `envconfig:"SANDBOX_POOL_SIZE" yaml:"pool_size" toml:"pool_size"`
	Timeout        Duration `envconfig:"SANDBOX_TIMEOUT" yaml:"timeout" toml:"timeout"`
	AcquireTimeout Duration `envconfig:"SANDBOX_ACQUIRE_TIMEOUT" yaml:"acquire_timeout" toml:"acquire_timeout"`
	MaxCallStack   int      `envconfig:"SANDBOX_MAX_CALL_STACK" yaml:"max_call_stack" toml:"max_call_stack"`
	CacheBytes     int64    `envconfig:"SANDBOX_CACHE_BYTES" yaml:"cache_bytes" toml:"cache_bytes"`
	EnableDOM      bool     `envconfig:"SANDBOX_DOM" yaml:"dom" toml:"dom"`
}

// CaptureConfig holds console capture and transport settings.
type CaptureConfig struct {
	Limit           int     `envconfig:"CAPTURE_LIMIT" yaml:"limit" toml:"limit"`
	EventsPerSecond float64 `envconfig:"CAPTURE_EVENTS_PER_SECOND" yaml:"events_per_second" toml:"events_per_second"`
	Burst           int     `envconfig:"CAPTURE_BURST" yaml:"burst" toml:"burst"`
	StreamBuffer    int     `envconfig:"CAPTURE_STREAM_BUFFER" yaml:"stream_buffer" toml:"stream_buffer"`
	Codec           string  `envconfig:"CAPTURE_CODEC" yaml:"codec" toml:"codec"`
	SanitizeMarkup  bool    `envconfig:"CAPTURE_SANITIZE" yaml:"sanitize_markup" toml:"sanitize_markup"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development" toml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" yaml:"enabled" toml:"enabled"`
}

// CORSConfig holds allowed origins for the HTTP surface.
type CORSConfig struct {
	AllowOrigins []string `envconfig:"CORS_ORIGINS" yaml:"allow_origins" toml:"allow_origins"`
}

// Duration is a time.Duration read from text such as "5s" in every source
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Load starts from Default, overlays the file named by RUNJS_CONFIG when
// set, then applies environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv(FileEnv); path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process("runjs", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// LoadFile overlays a YAML (.yaml, .yml) or TOML (.toml) file onto cfg.
// Keys missing from the file keep their current values.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("config file %s: unsupported extension %q", path, ext)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// LoadOrDefault loads configuration or returns the defaults on error.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Sandbox: SandboxConfig{
			PoolSize:       4,
			Timeout:        Duration(5 * time.Second),
			AcquireTimeout: Duration(5 * time.Second),
			MaxCallStack:   1024,
			CacheBytes:     16 << 20,
			EnableDOM:      true,
		},
		Capture: CaptureConfig{
			Limit:           100,
			EventsPerSecond: 1000,
			Burst:           2000,
			StreamBuffer:    256,
			Codec:           "json",
			SanitizeMarkup:  true,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
		},
	}
}
