package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/soeminnminn/run-js/internal/console"
	"github.com/soeminnminn/run-js/internal/infrastructure/monitoring"
	"github.com/soeminnminn/run-js/internal/runner"
	"github.com/soeminnminn/run-js/internal/sandbox"
	"github.com/soeminnminn/run-js/internal/transport"
)

// Version is reported by the root and health endpoints
const Version = "0.1.0"

// PoolStats is the part of the sandbox pool the handlers report on
type PoolStats interface {
	Stats() sandbox.PoolStats
}

// CacheStats reports program cache hits and misses
type CacheStats interface {
	Stats() (hits, misses uint64)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	runner       *runner.Runner
	pool         PoolStats
	cache        CacheStats
	metrics      *monitoring.Metrics
	codecs       *transport.Codecs
	defaultCodec string
	logger       *zap.Logger
}

// NewHandlers creates a new handler set. cache may be nil.
func NewHandlers(
	r *runner.Runner,
	pool PoolStats,
	cache CacheStats,
	metrics *monitoring.Metrics,
	codecs *transport.Codecs,
	defaultCodec string,
	logger *zap.Logger,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		runner:       r,
		pool:         pool,
		cache:        cache,
		metrics:      metrics,
		codecs:       codecs,
		defaultCodec: defaultCodec,
		logger:       logger,
	}
}

// RunResponse is the body of a completed run
type RunResponse struct {
	*runner.Outcome
	Events []console.Event `json:"events" msgpack:"events"`
}

// Root identifies the service
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "run-js",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	pool := h.pool.Stats()
	status, code := "healthy", http.StatusOK
	if pool.Closed {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":  status,
		"version": Version,
		"pool":    pool,
	})
}

// Run executes a script and returns its captured events. The response
// codec comes from the codec query parameter.
func (h *Handlers) Run(c *gin.Context) {
	codec, err := h.codecs.Get(c.DefaultQuery("codec", h.defaultCodec))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req runner.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid run request: " + err.Error()})
		return
	}

	buffer := transport.NewBuffer()
	outcome, err := h.runner.Run(c.Request.Context(), req, buffer)
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			h.logger.Error("Run failed", zap.Error(err))
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}

	body, err := codec.Marshal(RunResponse{Outcome: outcome, Events: buffer.Events()})
	if err != nil {
		h.logger.Error("Failed to encode run response", zap.String("codec", codec.Name()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode response"})
		return
	}

	c.Header("X-Run-Id", outcome.ID.String())
	if enc := codec.ContentEncoding(); enc != "" {
		c.Header("Content-Encoding", enc)
	}
	c.Data(http.StatusOK, codec.ContentType(), body)
}

// Stats reports pool occupancy, run latency and program cache use
func (h *Handlers) Stats(c *gin.Context) {
	resp := gin.H{
		"pool":   h.pool.Stats(),
		"uptime": h.metrics.Uptime().Round(time.Second).String(),
		"runs":   h.metrics.Runs.Summary(),
	}
	if h.cache != nil {
		hits, misses := h.cache.Stats()
		resp["cache"] = gin.H{"hits": hits, "misses": misses}
	}
	c.JSON(http.StatusOK, resp)
}

// Metrics serves the Prometheus exposition for this service's registry
func (h *Handlers) Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(h.metrics.Registry, promhttp.HandlerOpts{}))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, runner.ErrEmptyScript),
		errors.Is(err, runner.ErrDOMDisabled):
		return http.StatusBadRequest
	case errors.Is(err, runner.ErrScriptSize):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, sandbox.ErrTimeout),
		errors.Is(err, sandbox.ErrPoolClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
