package sandbox

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/soeminnminn/run-js/internal/console"
)

const defaultPoolSize = 4

// PoolStats is a point-in-time view of a Pool
type PoolStats struct {
	Size      int    `json:"size"`
	Available int    `json:"available"`
	InUse     int    `json:"in_use"`
	Served    uint64 `json:"served"`
	Replaced  uint64 `json:"replaced"`
	Closed    bool   `json:"closed"`
}

// Pool hands out runtimes that share one configuration and program cache.
// A runtime goes back to the pool only after Reset succeeds; a runtime that
// fails to reset is closed and replaced by a fresh one.
type Pool struct {
	config  Config
	opts    []Option
	idle    chan *Runtime
	done    chan struct{}
	size    int
	logger  *zap.Logger
	served  atomic.Uint64
	replace atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewPool builds size runtimes concurrently. Any build failure closes the
// runtimes already made and is returned.
func NewPool(ctx context.Context, config Config, size int, opts ...Option) (*Pool, error) {
	if size <= 0 {
		size = defaultPoolSize
	}

	p := &Pool{
		config: config,
		opts:   opts,
		idle:   make(chan *Runtime, size),
		done:   make(chan struct{}),
		size:   size,
		logger: optionLogger(opts),
	}

	g, ctx := errgroup.WithContext(ctx)
	for range size {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rt, err := New(config, opts...)
			if err != nil {
				return err
			}
			p.idle <- rt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.Close()
		return nil, err
	}

	p.logger.Info("Sandbox pool ready", zap.Int("size", size), zap.Duration("timeout", config.Timeout))
	return p, nil
}

// optionLogger reads the logger a Runtime would get from opts
func optionLogger(opts []Option) *zap.Logger {
	probe := &Runtime{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(probe)
	}
	return probe.logger
}

// Acquire takes an idle runtime. It gives up with ErrTimeout after the
// configured AcquireTimeout, with ErrPoolClosed if the pool closes while
// waiting, or with ctx's error if ctx ends first.
func (p *Pool) Acquire(ctx context.Context) (*Runtime, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrPoolClosed
	}

	wait := p.config.AcquireTimeout
	if wait <= 0 {
		wait = 5 * time.Second
	}
	waitCtx, cancel := context.WithTimeoutCause(ctx, wait, ErrTimeout)
	defer cancel()

	select {
	case rt, ok := <-p.idle:
		if !ok {
			return nil, ErrPoolClosed
		}
		return rt, nil
	case <-p.done:
		return nil, ErrPoolClosed
	case <-waitCtx.Done():
		return nil, context.Cause(waitCtx)
	}
}

// Release resets rt and makes it available again
func (p *Pool) Release(rt *Runtime) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return rt.Close()
	}

	if err := rt.Reset(); err != nil {
		rt.Close()
		p.logger.Warn("Sandbox reset failed, replacing", zap.Error(err))
		p.refill()
		return err
	}

	select {
	case p.idle <- rt:
		return nil
	default:
		return rt.Close()
	}
}

// refill puts a fresh runtime in place of a discarded one. Callers hold mu.
func (p *Pool) refill() {
	fresh, err := New(p.config, p.opts...)
	if err != nil {
		p.logger.Error("Sandbox replacement failed", zap.Error(err))
		return
	}
	p.replace.Add(1)
	select {
	case p.idle <- fresh:
	default:
		fresh.Close()
	}
}

// Execute runs script on a pooled runtime, sending console events to sink
func (p *Pool) Execute(ctx context.Context, script string, dom *DOM, sink console.Sink) (*Result, error) {
	rt, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(rt)

	p.served.Add(1)
	return rt.Execute(ctx, script, dom, sink)
}

// Close closes every idle runtime. Runtimes still checked out are closed
// when released. Close is idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}

	p.closed = true
	close(p.done)
	close(p.idle)
	for rt := range p.idle {
		rt.Close()
	}
	return nil
}

func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	available := len(p.idle)
	return PoolStats{
		Size:      p.size,
		Available: available,
		InUse:     p.size - available,
		Served:    p.served.Load(),
		Replaced:  p.replace.Load(),
		Closed:    p.closed,
	}
}
