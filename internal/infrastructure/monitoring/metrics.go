package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. Each Metrics owns its registry, so
// several can coexist in one process.
type Metrics struct {
	Registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Script runs
	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram

	// Console capture
	EventsTotal     *prometheus.CounterVec
	TruncatedItems  prometheus.Counter
	EventsDropped   *prometheus.CounterVec
	CacheHitRatio   prometheus.GaugeFunc
	cacheStatsMu    sync.RWMutex
	cacheStatsFunc  func() (hits, misses uint64)

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// Rolling run durations for /stats
	Runs *RunStats

	startTime time.Time
}

// NewMetrics creates a metrics collector with its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	m := &Metrics{
		Registry:  reg,
		Runs:      NewRunStats(1024),
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runjs_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "runjs_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runjs_runs_total",
				Help: "Script runs by outcome",
			},
			[]string{"outcome"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "runjs_run_duration_seconds",
				Help:    "Script run duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 10},
			},
		),

		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runjs_console_events_total",
				Help: "Console events captured, by command",
			},
			[]string{"command"},
		),
		TruncatedItems: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "runjs_truncated_items_total",
				Help: "Container items omitted by the serialization limit",
			},
		),
		EventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runjs_events_dropped_total",
				Help: "Console events not delivered, by reason",
			},
			[]string{"reason"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "runjs_ws_connections",
				Help: "Open stream connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runjs_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "runjs_uptime_seconds",
			Help: "Service uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)
	m.CacheHitRatio = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "runjs_program_cache_hit_ratio",
			Help: "Compiled program cache hit ratio",
		},
		m.cacheHitRatio,
	)
	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRun records a finished script run. outcome is one of "ok",
// "exception", "interrupted" or "failed".
func (m *Metrics) RecordRun(outcome string, duration time.Duration) {
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(duration.Seconds())
	m.Runs.Add(duration)
}

// RecordEvent counts one captured console event
func (m *Metrics) RecordEvent(command string) {
	m.EventsTotal.WithLabelValues(command).Inc()
}

// RecordTruncation counts items omitted by the serialization limit
func (m *Metrics) RecordTruncation(omitted int) {
	m.TruncatedItems.Add(float64(omitted))
}

// RecordDrop counts n events that were not delivered
func (m *Metrics) RecordDrop(reason string, n int64) {
	if n > 0 {
		m.EventsDropped.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) IncWSConnections() { m.WSConnections.Inc() }
func (m *Metrics) DecWSConnections() { m.WSConnections.Dec() }

// ObserveCache reports program cache hits and misses through fn
func (m *Metrics) ObserveCache(fn func() (hits, misses uint64)) {
	m.cacheStatsMu.Lock()
	m.cacheStatsFunc = fn
	m.cacheStatsMu.Unlock()
}

func (m *Metrics) cacheHitRatio() float64 {
	m.cacheStatsMu.RLock()
	fn := m.cacheStatsFunc
	m.cacheStatsMu.RUnlock()
	if fn == nil {
		return 0
	}
	hits, misses := fn()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

// Uptime since the collector was created
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}
