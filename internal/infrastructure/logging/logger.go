package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/soeminnminn/run-js/internal/shared/id"
)

// Config defines logger configuration
type Config struct {
	Level       string // "debug", "info", "warn", "error"
	Development bool
	OutputPaths []string
}

// DefaultConfig returns production logger configuration
func DefaultConfig() Config {
	return Config{
		Level:       "info",
		OutputPaths: []string{"stdout"},
	}
}

// New creates a logger. Development mode logs colored console lines with
// stack traces on warnings; production logs JSON.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}

	zapCfg := preset(cfg.Development)
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	if len(cfg.OutputPaths) > 0 {
		zapCfg.OutputPaths = cfg.OutputPaths
	}
	return zapCfg.Build()
}

// NewDefault creates a production logger, falling back to a no-op logger
func NewDefault() *zap.Logger {
	logger, err := New(DefaultConfig())
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// Run tags a log line with the run it belongs to
func Run(runID id.RunID) zap.Field {
	return zap.String("run_id", runID.String())
}

// Connection tags a log line with a stream connection
func Connection(connID id.ConnectionID) zap.Field {
	return zap.String("connection_id", connID.String())
}

func preset(development bool) zap.Config {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncoderConfig.FunctionKey = zapcore.OmitKey
		cfg.ErrorOutputPaths = []string{"stderr"}
		return cfg
	}

	// The production preset samples repeated lines
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
	cfg.DisableStacktrace = true
	return cfg
}
