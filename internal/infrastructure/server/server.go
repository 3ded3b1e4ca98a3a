package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/soeminnminn/run-js/internal/api/http"
	"github.com/soeminnminn/run-js/internal/api/middleware"
	"github.com/soeminnminn/run-js/internal/api/ws"
	"github.com/soeminnminn/run-js/internal/infrastructure/config"
	"github.com/soeminnminn/run-js/internal/infrastructure/monitoring"
	"github.com/soeminnminn/run-js/internal/runner"
	"github.com/soeminnminn/run-js/internal/sandbox"
	"github.com/soeminnminn/run-js/internal/transport"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	http    *http.Server
	pool    *sandbox.Pool
	cache   *sandbox.ProgramCache
	codecs  *transport.Codecs
	logger  *zap.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := transport.ParseCodec(cfg.Capture.Codec); err != nil {
		return nil, fmt.Errorf("capture codec: %w", err)
	}

	logger.Info("Initializing run-js server",
		zap.String("port", cfg.Server.Port),
		zap.Int("pool_size", cfg.Sandbox.PoolSize),
		zap.Duration("timeout", cfg.Sandbox.Timeout.Std()),
	)

	metrics := monitoring.NewMetrics()

	cache, err := sandbox.NewProgramCache(cfg.Sandbox.CacheBytes)
	if err != nil {
		return nil, fmt.Errorf("program cache: %w", err)
	}
	metrics.ObserveCache(cache.Stats)

	pool, err := sandbox.NewPool(ctx, sandbox.Config{
		Timeout:          cfg.Sandbox.Timeout.Std(),
		MaxCallStackSize: cfg.Sandbox.MaxCallStack,
		EnableDOM:        cfg.Sandbox.EnableDOM,
		AcquireTimeout:   cfg.Sandbox.AcquireTimeout.Std(),
	}, cfg.Sandbox.PoolSize, sandbox.WithCache(cache), sandbox.WithLogger(logger.Named("sandbox")))
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("sandbox pool: %w", err)
	}

	run := runner.New(pool, runner.Config{
		Limit:           cfg.Capture.Limit,
		EventsPerSecond: cfg.Capture.EventsPerSecond,
		Burst:           cfg.Capture.Burst,
		EnableDOM:       cfg.Sandbox.EnableDOM,
		SanitizeMarkup:  cfg.Capture.SanitizeMarkup,
	}, metrics, logger.Named("runner"))
	codecs := transport.NewCodecs()

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORS.AllowOrigins...)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limits.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(limits))
	}

	handlers := apihttp.NewHandlers(run, pool, cache, metrics, codecs, cfg.Capture.Codec, logger.Named("http"))
	wsHandler := ws.NewHandler(run, codecs, cfg.Capture.Codec, cfg.Capture.StreamBuffer,
		cfg.CORS.AllowOrigins, metrics, logger.Named("ws"))

	// Register routes
	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/stats", handlers.Stats)
	router.GET("/metrics", handlers.Metrics())
	router.POST("/run", handlers.Run)
	router.GET("/stream", wsHandler.HandleConnection)

	logger.Info("Server initialized successfully")

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	return &Server{
		router:  router,
		http:    &http.Server{Addr: addr, Handler: router},
		pool:    pool,
		cache:   cache,
		codecs:  codecs,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP until Shutdown is called
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight runs up to the
// configured timeout and releases the sandboxes.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout.Std())
	defer cancel()

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.pool.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pool: %w", err))
	}
	s.cache.Close()
	s.codecs.Close()

	// Sync logger before exit
	_ = s.logger.Sync()
	return errors.Join(errs...)
}
