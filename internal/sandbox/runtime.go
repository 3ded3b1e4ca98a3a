package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/soeminnminn/run-js/internal/console"
	"github.com/soeminnminn/run-js/internal/stacktrace"
)

// Runtime wraps goja VM with security controls. Each Execute builds a fresh
// console.Session bound to the caller's sink.
type Runtime struct {
	vm         *goja.Runtime
	config     Config
	cache      *ProgramCache
	logger     *zap.Logger
	normalizer *stacktrace.Normalizer
	mu         sync.Mutex

	// Per-run state, set for the duration of Execute
	session  *console.Session
	dom      *DOM
	elements map[*goja.Object]*html.Node
	toArray  goja.Callable
}

// Option configures a Runtime
type Option func(*Runtime)

// WithCache shares a compiled program cache
func WithCache(cache *ProgramCache) Option {
	return func(r *Runtime) { r.cache = cache }
}

// WithLogger sets the runtime logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a new sandboxed runtime
func New(config Config, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		config: config,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.normalizer = stacktrace.New(
		stacktrace.WithCapture(r.capture),
		stacktrace.WithLogger(r.logger),
	)

	if err := r.reset(); err != nil {
		return nil, err
	}
	return r, nil
}

// Execute runs JavaScript code with timeout and resource limits. Console
// calls reach sink synchronously, in call order, on the calling goroutine.
//
// An uncaught exception is also emitted as an error event and returned as
// *stacktrace.ErrorValue alongside the partial result. Timeouts and context
// cancellation return ErrInterrupted.
func (r *Runtime) Execute(ctx context.Context, script string, dom *DOM, sink console.Sink) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return nil, ErrClosed
	}

	session, err := console.New(sink,
		console.WithNormalizer(r.normalizer),
		console.WithTraceSkip(0),
		console.WithLogger(r.logger),
	)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := &Result{Mutations: []Mutation{}}

	r.session = session
	r.elements = map[*goja.Object]*html.Node{}
	defer func() {
		r.session, r.dom, r.elements = nil, nil, nil
	}()

	if dom != nil && r.config.EnableDOM {
		r.dom = dom
		r.injectDOM()
	} else {
		r.vm.Set("document", goja.Undefined())
	}

	prg, err := r.cache.Compile(script)
	if err != nil {
		result.Error = &stacktrace.ErrorValue{Class: "SyntaxError", Name: "SyntaxError", Message: err.Error()}
		result.Duration = time.Since(start)
		session.Error("Uncaught " + result.Error.Error())
		return result, result.Error
	}

	// Setup interrupt handler
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		watch(ctx, r.vm, r.config.Timeout, done)
	}()

	val, err := r.vm.RunProgram(prg)
	close(done)
	<-stopped
	r.vm.ClearInterrupt()

	result.Duration = time.Since(start)
	if dom != nil {
		result.Mutations = dom.Mutations()
	}

	var interrupted *goja.InterruptedError
	var exc *goja.Exception
	switch {
	case errors.As(err, &interrupted):
		r.logger.Warn("Script interrupted", zap.Any("reason", interrupted.Value()), zap.Duration("duration", result.Duration))
		return result, fmt.Errorf("%w: %v", ErrInterrupted, interrupted.Value())
	case errors.As(err, &exc):
		result.Error = exceptionValue(exc)
		session.Error(result.Error)
		return result, result.Error
	case err != nil:
		return result, fmt.Errorf("run script: %w", err)
	}

	x := r.exporter()
	result.Value = x.value(val)
	return result, nil
}

// watch interrupts vm when the timeout elapses or ctx ends, whichever
// comes before done is closed.
func watch(ctx context.Context, vm *goja.Runtime, limit time.Duration, done <-chan struct{}) {
	var timeout <-chan time.Time
	if limit > 0 {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-timeout:
		vm.Interrupt("execution timeout exceeded")
	case <-ctx.Done():
		vm.Interrupt("context cancelled")
	case <-done:
	}
}

// capture snapshots the script call stack. Native frames (the console
// binding itself) are left out, so traces start at the script caller.
func (r *Runtime) capture(message string) *stacktrace.ErrorValue {
	var b bytes.Buffer
	b.WriteString("Error")
	if message != "" {
		b.WriteString(": " + message)
	}
	b.WriteByte('\n')
	for _, frame := range r.vm.CaptureCallStack(0, nil) {
		writeFrame(&b, frame)
	}
	return &stacktrace.ErrorValue{
		Class:        "Error",
		Name:         "Error",
		Message:      message,
		Stack:        b.String(),
		HasArguments: true,
	}
}

func (r *Runtime) exporter() *exporter {
	return &exporter{
		elements: r.elements,
		toArray:  r.toArray,
		capture:  r.capture,
		seen:     map[*goja.Object]any{},
	}
}

// Reset replaces the VM, discarding every global a script defined
func (r *Runtime) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reset()
}

func (r *Runtime) reset() error {
	vm := goja.New()
	if r.config.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(r.config.MaxCallStackSize)
	}

	from, err := vm.RunString("(function (items) { return Array.from(items) })")
	if err != nil {
		return fmt.Errorf("sandbox bootstrap: %w", err)
	}
	toArray, ok := goja.AssertFunction(from)
	if !ok {
		return errors.New("sandbox bootstrap: Array.from helper is not callable")
	}

	r.vm, r.toArray = vm, toArray
	r.setupGlobals()
	return nil
}

// setupGlobals configures global objects and security
func (r *Runtime) setupGlobals() {
	for _, name := range []string{"require", "process", "module", "exports"} {
		r.vm.Set(name, goja.Undefined())
	}

	// Timers are no-ops: a run ends when the script returns
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	for _, name := range []string{"setTimeout", "setInterval", "clearTimeout", "clearInterval"} {
		r.vm.Set(name, noop)
	}

	r.vm.Set("console", r.consoleObject())
}

// Close releases resources
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.vm = nil
	r.toArray = nil
	return nil
}
