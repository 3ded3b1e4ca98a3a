package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests while probing")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures a Breaker. Zero fields take defaults.
type Settings struct {
	// Failures in a row that open the circuit
	Threshold int
	// How long the circuit stays open before probing
	Cooldown time.Duration
	// Successful probes needed to close again
	Probes int
	// IsFailure decides whether an error counts against the target.
	// Defaults to any non-nil error except context cancellation.
	IsFailure func(error) bool
	// OnStateChange is called with the lock released
	OnStateChange func(name string, from, to State)
}

// Breaker stops calls to a remote target after repeated failures
type Breaker struct {
	name     string
	settings Settings

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	inflight  int
	openedAt  time.Time
	now       func() time.Time
}

// New creates a closed breaker
func New(name string, settings Settings) *Breaker {
	if settings.Threshold <= 0 {
		settings.Threshold = 5
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.Probes <= 0 {
		settings.Probes = 1
	}
	if settings.IsFailure == nil {
		settings.IsFailure = func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}
	}
	return &Breaker{name: name, settings: settings, now: time.Now}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, moving an expired open circuit to
// half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	from, to := b.refresh()
	state := b.state
	b.mu.Unlock()
	b.notify(from, to)
	return state
}

// Do runs fn if the breaker admits it and records the outcome
func Do[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.admit(); err != nil {
		return zero, err
	}

	result, err := fn(ctx)
	b.record(b.settings.IsFailure(err))
	return result, err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	from, to := b.refresh()
	var err error
	switch b.state {
	case StateOpen:
		err = ErrCircuitOpen
	case StateHalfOpen:
		if b.inflight >= b.settings.Probes {
			err = ErrTooManyRequests
		}
	}
	if err == nil {
		b.inflight++
	}
	b.mu.Unlock()
	b.notify(from, to)
	return err
}

func (b *Breaker) record(failed bool) {
	b.mu.Lock()
	b.inflight--
	from := b.state
	switch {
	case failed && b.state == StateHalfOpen:
		b.open()
	case failed:
		b.failures++
		if b.failures >= b.settings.Threshold {
			b.open()
		}
	case b.state == StateHalfOpen:
		b.successes++
		if b.successes >= b.settings.Probes {
			b.state, b.failures, b.successes = StateClosed, 0, 0
		}
	default:
		b.failures = 0
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures, b.successes = 0, 0
}

// refresh must hold mu
func (b *Breaker) refresh() (from, to State) {
	from = b.state
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.settings.Cooldown {
		b.state, b.successes = StateHalfOpen, 0
	}
	return from, b.state
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}
