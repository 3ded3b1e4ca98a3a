package transport

import (
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/soeminnminn/run-js/internal/console"
	"github.com/soeminnminn/run-js/internal/serialize"
)

// Buffer collects events in memory. It is safe for concurrent use.
type Buffer struct {
	mu     sync.Mutex
	events []console.Event
}

// NewBuffer creates an empty Buffer
func NewBuffer() *Buffer {
	return &Buffer{events: []console.Event{}}
}

func (b *Buffer) Accept(e console.Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

// Events returns a copy of the collected events
func (b *Buffer) Events() []console.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]console.Event{}, b.events...)
}

// Drain returns the collected events and empties the buffer
func (b *Buffer) Drain() []console.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = []console.Event{}
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Channel hands events to a consumer goroutine. Accept never blocks: when
// the channel is full, or already closed, the event is dropped and counted.
type Channel struct {
	ch      chan console.Event
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	onDrop  func(console.Event)
}

// NewChannel creates a Channel buffering up to size events
func NewChannel(size int, onDrop func(console.Event)) *Channel {
	if size < 0 {
		size = 0
	}
	return &Channel{ch: make(chan console.Event, size), onDrop: onDrop}
}

func (c *Channel) Accept(e console.Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.closed {
		select {
		case c.ch <- e:
			return
		default:
		}
	}
	c.dropped.Add(1)
	if c.onDrop != nil {
		c.onDrop(e)
	}
}

// Events is the receiving side. It is closed by Close.
func (c *Channel) Events() <-chan console.Event {
	return c.ch
}

// Dropped returns the number of events that could not be queued
func (c *Channel) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events and closes the receiving channel
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}

// Throttle forwards events to another sink at a bounded rate. Events over
// the rate are suppressed, except for the exempt kinds.
type Throttle struct {
	next       console.Sink
	limiter    *rate.Limiter
	exempt     map[console.Kind]bool
	suppressed atomic.Int64
}

// NewThrottle allows perSecond events per second with the given burst.
// Events of the exempt kinds are always forwarded.
func NewThrottle(next console.Sink, perSecond float64, burst int, exempt ...console.Kind) *Throttle {
	t := &Throttle{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		exempt:  make(map[console.Kind]bool, len(exempt)),
	}
	for _, k := range exempt {
		t.exempt[k] = true
	}
	return t
}

func (t *Throttle) Accept(e console.Event) {
	if t.exempt[e.Command] || t.limiter.Allow() {
		t.next.Accept(e)
		return
	}
	t.suppressed.Add(1)
}

// Suppressed returns the number of events dropped by the rate limit
func (t *Throttle) Suppressed() int64 {
	return t.suppressed.Load()
}

// Encoding replaces each event's data with its bounded, scrubbed envelope
// before forwarding it, so the event can cross a process boundary.
type Encoding struct {
	next       console.Sink
	replicator *serialize.Replicator
	limit      int
}

// NewEncoding encodes event data with r, truncating containers at limit
func NewEncoding(next console.Sink, r *serialize.Replicator, limit int) *Encoding {
	return &Encoding{next: next, replicator: r, limit: limit}
}

func (s *Encoding) Accept(e console.Event) {
	s.next.Accept(ScrubEvent(s.replicator.EncodeEvent(e, s.limit)))
}

// Tee forwards every event to each sink in order
type Tee []console.Sink

func (t Tee) Accept(e console.Event) {
	for _, s := range t {
		s.Accept(e)
	}
}
