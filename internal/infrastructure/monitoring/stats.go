package monitoring

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// RunStats keeps the most recent run durations in a ring
type RunStats struct {
	mu      sync.Mutex
	samples []float64 // milliseconds
	next    int
	full    bool
	total   uint64
}

// Summary describes the retained run durations in milliseconds
type Summary struct {
	Count  uint64  `json:"count"`
	Window int     `json:"window"`
	Mean   float64 `json:"mean_ms"`
	StdDev float64 `json:"stddev_ms"`
	P50    float64 `json:"p50_ms"`
	P95    float64 `json:"p95_ms"`
	P99    float64 `json:"p99_ms"`
	Max    float64 `json:"max_ms"`
}

// NewRunStats retains up to window samples
func NewRunStats(window int) *RunStats {
	if window <= 0 {
		window = 1024
	}
	return &RunStats{samples: make([]float64, window)}
}

// Add records one run duration
func (r *RunStats) Add(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples[r.next] = float64(d) / float64(time.Millisecond)
	r.next = (r.next + 1) % len(r.samples)
	if r.next == 0 {
		r.full = true
	}
	r.total++
}

// Summary computes statistics over the retained samples
func (r *RunStats) Summary() Summary {
	r.mu.Lock()
	n := r.next
	if r.full {
		n = len(r.samples)
	}
	sorted := append([]float64(nil), r.samples[:n]...)
	total := r.total
	r.mu.Unlock()

	s := Summary{Count: total, Window: len(sorted)}
	if len(sorted) == 0 {
		return s
	}
	sort.Float64s(sorted)

	s.Mean = stat.Mean(sorted, nil)
	if len(sorted) > 1 {
		s.StdDev = stat.StdDev(sorted, nil)
	}
	s.P50 = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	s.P95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	s.P99 = stat.Quantile(0.99, stat.Empirical, sorted, nil)
	s.Max = sorted[len(sorted)-1]
	return s
}
