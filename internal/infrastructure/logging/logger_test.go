package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/soeminnminn/run-js/internal/shared/id"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level   string
		wantErr bool
	}{
		{"debug", false},
		{"info", false},
		{"WARN", false},
		{"error", false},
		{"verbose", true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := New(Config{Level: tt.level})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestNewWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := New(Config{Level: "info", OutputPaths: []string{path}})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("Run finished", zap.String("run", "run_1"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"Run finished"`)
	assert.Contains(t, string(data), `"run":"run_1"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestNewDefault(t *testing.T) {
	assert.NotNil(t, NewDefault())
}

func TestCorrelationFields(t *testing.T) {
	run := Run(id.RunID("run_01J"))
	assert.Equal(t, "run_id", run.Key)
	assert.Equal(t, "run_01J", run.String)

	conn := Connection(id.ConnectionID("conn_1"))
	assert.Equal(t, "connection_id", conn.Key)
	assert.Equal(t, "conn_1", conn.String)
}
