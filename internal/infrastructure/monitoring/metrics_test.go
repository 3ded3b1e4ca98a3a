package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soeminnminn/run-js/internal/console"
)

func TestRecordRun(t *testing.T) {
	m := NewMetrics()

	m.RecordRun("ok", 10*time.Millisecond)
	m.RecordRun("ok", 20*time.Millisecond)
	m.RecordRun("error", 30*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("error")))
	assert.Equal(t, uint64(3), m.Runs.Summary().Count)
}

func TestMetricsAreIndependent(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.RecordTruncation(40)
	a.RecordDrop("channel_full", 1)
	a.RecordDrop("channel_full", 0)

	assert.Equal(t, 40.0, testutil.ToFloat64(a.TruncatedItems))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.TruncatedItems))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.EventsDropped.WithLabelValues("channel_full")))
}

func TestCacheHitRatio(t *testing.T) {
	m := NewMetrics()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CacheHitRatio))

	m.ObserveCache(func() (uint64, uint64) { return 3, 1 })
	assert.Equal(t, 0.75, testutil.ToFloat64(m.CacheHitRatio))
}

func TestSinkCountsEvents(t *testing.T) {
	m := NewMetrics()
	var got []console.Event
	s := NewSink(m, console.SinkFunc(func(e console.Event) { got = append(got, e) }))

	s.Accept(console.Event{Command: console.KindLog})
	s.Accept(console.Event{Command: console.KindLog})
	s.Accept(console.Event{Command: console.KindWarn})

	assert.Len(t, got, 3)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("log")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("warn")))
}

func TestRunStatsSummary(t *testing.T) {
	s := NewRunStats(4)
	assert.Equal(t, Summary{}, s.Summary())

	for _, ms := range []int{1, 2, 3, 4, 100} {
		s.Add(time.Duration(ms) * time.Millisecond)
	}

	sum := s.Summary()
	assert.Equal(t, uint64(5), sum.Count)
	assert.Equal(t, 4, sum.Window, "oldest sample is overwritten")
	assert.InDelta(t, (2.0+3+4+100)/4, sum.Mean, 1e-9)
	assert.Equal(t, 100.0, sum.Max)
	assert.Equal(t, 3.0, sum.P50)
	assert.Greater(t, sum.StdDev, 0.0)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/health", "/nope"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
