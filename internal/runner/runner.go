package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/soeminnminn/run-js/internal/console"
	"github.com/soeminnminn/run-js/internal/infrastructure/logging"
	"github.com/soeminnminn/run-js/internal/infrastructure/monitoring"
	"github.com/soeminnminn/run-js/internal/sandbox"
	"github.com/soeminnminn/run-js/internal/serialize"
	"github.com/soeminnminn/run-js/internal/shared/id"
	"github.com/soeminnminn/run-js/internal/stacktrace"
	"github.com/soeminnminn/run-js/internal/transport"
)

var (
	ErrEmptyScript = errors.New("script is empty")
	ErrScriptSize  = errors.New("script too large")
	ErrDOMDisabled = errors.New("markup supplied but the document is disabled")
)

// MaxScriptBytes bounds a submitted script
const MaxScriptBytes = 1 << 20

// Executor runs one script against a console sink
type Executor interface {
	Execute(ctx context.Context, script string, dom *sandbox.DOM, sink console.Sink) (*sandbox.Result, error)
}

// Config bounds capture for every run
type Config struct {
	Limit           int     // default container limit
	EventsPerSecond float64 // 0 disables throttling
	Burst           int
	EnableDOM       bool
	SanitizeMarkup  bool
}

// Request is one script submission
type Request struct {
	Script string `json:"script" msgpack:"script" binding:"required"`
	HTML   string `json:"html,omitempty" msgpack:"html,omitempty"`
	Limit  int    `json:"limit,omitempty" msgpack:"limit,omitempty"`
}

// Failure describes an uncaught script exception
type Failure struct {
	Name    string   `json:"name" msgpack:"name"`
	Message string   `json:"message" msgpack:"message"`
	Stack   []string `json:"stack,omitempty" msgpack:"stack,omitempty"`
}

// Outcome is the result of one run with its value already encoded
type Outcome struct {
	ID         id.RunID           `json:"id" msgpack:"id"`
	Value      any                `json:"value" msgpack:"value"`
	Mutations  []sandbox.Mutation `json:"mutations,omitempty" msgpack:"mutations,omitempty"`
	Error      *Failure           `json:"error,omitempty" msgpack:"error,omitempty"`
	DurationMs float64            `json:"duration_ms" msgpack:"duration_ms"`
	Suppressed int64              `json:"suppressed,omitempty" msgpack:"suppressed,omitempty"`
}

// Runner executes scripts and routes their console output through the
// capture pipeline: counting, throttling, then encoding.
type Runner struct {
	executor   Executor
	config     Config
	replicator *serialize.Replicator
	normalizer *stacktrace.Normalizer
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

// New creates a Runner. metrics may be nil.
func New(executor Executor, config Config, metrics *monitoring.Metrics, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Limit <= 0 {
		config.Limit = 100
	}

	opts := []serialize.Option{serialize.WithLogger(logger)}
	if config.SanitizeMarkup {
		opts = append(opts, serialize.WithSanitizer(bluemonday.UGCPolicy()))
	}
	if metrics != nil {
		opts = append(opts, serialize.WithTruncationHook(metrics.RecordTruncation))
	}

	return &Runner{
		executor:   executor,
		config:     config,
		replicator: serialize.New(opts...),
		normalizer: stacktrace.New(stacktrace.WithLogger(logger)),
		metrics:    metrics,
		logger:     logger,
	}
}

// Replicator returns the encoder used for event data
func (r *Runner) Replicator() *serialize.Replicator {
	return r.replicator
}

// Run validates req, executes it and delivers encoded events to sink as
// they are produced. The returned error covers failures outside the
// script; script exceptions are reported in Outcome.Error.
func (r *Runner) Run(ctx context.Context, req Request, sink console.Sink) (*Outcome, error) {
	if strings.TrimSpace(req.Script) == "" {
		return nil, ErrEmptyScript
	}
	if len(req.Script) > MaxScriptBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrScriptSize, len(req.Script))
	}

	var dom *sandbox.DOM
	if req.HTML != "" {
		if !r.config.EnableDOM {
			return nil, ErrDOMDisabled
		}
		var err error
		if dom, err = sandbox.NewDOM(req.HTML); err != nil {
			return nil, fmt.Errorf("parse markup: %w", err)
		}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = r.config.Limit
	}

	var pipeline console.Sink = transport.NewEncoding(sink, r.replicator, limit)
	var throttle *transport.Throttle
	if r.config.EventsPerSecond > 0 {
		throttle = transport.NewThrottle(pipeline, r.config.EventsPerSecond, r.config.Burst,
			console.KindError, console.KindAssert)
		pipeline = throttle
	}
	if r.metrics != nil {
		pipeline = monitoring.NewSink(r.metrics, pipeline)
	}

	runID := id.NewRunID()
	start := time.Now()
	result, err := r.executor.Execute(ctx, req.Script, dom, pipeline)
	elapsed := time.Since(start)

	outcome := &Outcome{ID: runID, DurationMs: float64(elapsed) / float64(time.Millisecond)}
	if throttle != nil {
		outcome.Suppressed = throttle.Suppressed()
		if r.metrics != nil {
			r.metrics.RecordDrop("throttled", outcome.Suppressed)
		}
	}

	var exception *stacktrace.ErrorValue
	switch {
	case errors.As(err, &exception):
		outcome.Error = r.failure(exception)
		outcome.Mutations = result.Mutations
		r.record("exception", elapsed)
		return outcome, nil
	case errors.Is(err, sandbox.ErrInterrupted):
		outcome.Error = &Failure{Name: "InterruptedError", Message: err.Error()}
		r.record("interrupted", elapsed)
		r.logger.Info("Run interrupted", logging.Run(runID), zap.Duration("elapsed", elapsed))
		return outcome, nil
	case err != nil:
		r.record("failed", elapsed)
		return nil, err
	}

	outcome.Value = transport.Scrub(r.replicator.Encode(result.Value, limit))
	outcome.Mutations = result.Mutations
	r.record("ok", elapsed)

	r.logger.Debug("Run complete", logging.Run(runID), zap.Duration("elapsed", elapsed))
	return outcome, nil
}

func (r *Runner) record(outcome string, elapsed time.Duration) {
	if r.metrics != nil {
		r.metrics.RecordRun(outcome, elapsed)
	}
}

// failure flattens an exception for the wire. Frames take the same
// fn()@location form as event traces.
func (r *Runner) failure(e *stacktrace.ErrorValue) *Failure {
	f := &Failure{Name: e.Name, Message: e.Message}
	if f.Name == "" {
		f.Name = e.Class
	}
	if e.Stack != "" {
		f.Stack = r.normalizer.Get(e)
	}
	return f
}
