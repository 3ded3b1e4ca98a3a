package monitoring

import (
	"github.com/soeminnminn/run-js/internal/console"
)

// Sink counts every event passing through it before forwarding it
type Sink struct {
	metrics *Metrics
	next    console.Sink
}

// NewSink wraps next with event counting
func NewSink(metrics *Metrics, next console.Sink) *Sink {
	return &Sink{metrics: metrics, next: next}
}

func (s *Sink) Accept(e console.Event) {
	s.metrics.RecordEvent(string(e.Command))
	s.next.Accept(e)
}
