package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soeminnminn/run-js/internal/infrastructure/monitoring"
	"github.com/soeminnminn/run-js/internal/runner"
	"github.com/soeminnminn/run-js/internal/sandbox"
	"github.com/soeminnminn/run-js/internal/transport"
)

func setup(t *testing.T) (*gin.Engine, *sandbox.Pool) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cache, err := sandbox.NewProgramCache(0)
	require.NoError(t, err)
	pool, err := sandbox.NewPool(context.Background(), sandbox.DefaultConfig(), 1, sandbox.WithCache(cache))
	require.NoError(t, err)
	codecs := transport.NewCodecs()
	t.Cleanup(func() {
		pool.Close()
		cache.Close()
		codecs.Close()
	})

	metrics := monitoring.NewMetrics()
	r := runner.New(pool, runner.Config{Limit: 100, EnableDOM: true}, metrics, nil)
	h := NewHandlers(r, pool, cache, metrics, codecs, "json", nil)

	router := gin.New()
	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/stats", h.Stats)
	router.GET("/metrics", h.Metrics())
	router.POST("/run", h.Run)
	return router, pool
}

func do(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestRun(t *testing.T) {
	router, _ := setup(t)

	w := do(router, http.MethodPost, "/run", `{"script":"console.log('hi', {a: 1}); 6 * 7"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Run-Id"))

	var resp struct {
		ID     string  `json:"id"`
		Value  float64 `json:"value"`
		Events []struct {
			Command string `json:"command"`
			Data    []any  `json:"data"`
		} `json:"events"`
		Error any `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, w.Header().Get("X-Run-Id"), resp.ID)
	assert.Equal(t, 42.0, resp.Value)
	assert.Nil(t, resp.Error)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "log", resp.Events[0].Command)
	assert.Equal(t, []any{"hi", map[string]any{"a": 1.0}}, resp.Events[0].Data)
}

func TestRunMsgpackZstd(t *testing.T) {
	router, _ := setup(t)

	w := do(router, http.MethodPost, "/run?codec=msgpack+zstd", `{"script":"console.warn(1)"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/msgpack", w.Header().Get("Content-Type"))
	assert.Equal(t, "zstd", w.Header().Get("Content-Encoding"))

	codec, err := transport.ParseCodec("msgpack+zstd")
	require.NoError(t, err)
	defer codec.Close()

	var resp map[string]any
	require.NoError(t, codec.Unmarshal(w.Body.Bytes(), &resp))
	events, ok := resp["events"].([]any)
	require.True(t, ok)
	require.Len(t, events, 1)
	assert.Equal(t, "warn", events[0].(map[string]any)["command"])
}

func TestRunException(t *testing.T) {
	router, _ := setup(t)

	w := do(router, http.MethodPost, "/run", `{"script":"throw new RangeError('nope')"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Error struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "RangeError", resp.Error.Name)
	assert.Equal(t, "nope", resp.Error.Message)
}

func TestRunBadRequests(t *testing.T) {
	router, _ := setup(t)

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"malformed json", "/run", `{`, http.StatusBadRequest},
		{"missing script", "/run", `{}`, http.StatusBadRequest},
		{"blank script", "/run", `{"script":"   "}`, http.StatusBadRequest},
		{"unknown codec", "/run?codec=xml", `{"script":"1"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.want, w.Code)
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

func TestHealthAndStats(t *testing.T) {
	router, pool := setup(t)

	w := do(router, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "run-js")

	do(router, http.MethodPost, "/run", `{"script":"1"}`)
	do(router, http.MethodPost, "/run", `{"script":"1"}`)

	w = do(router, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Runs  struct{ Count int } `json:"runs"`
		Cache struct {
			Misses int `json:"misses"`
		} `json:"cache"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Runs.Count)
	assert.GreaterOrEqual(t, stats.Cache.Misses, 1)

	w = do(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `runjs_runs_total{outcome="ok"} 2`)

	w = do(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, pool.Close())
	w = do(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(router, http.MethodPost, "/run", `{"script":"1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
