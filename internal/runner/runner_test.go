package runner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soeminnminn/run-js/internal/console"
	"github.com/soeminnminn/run-js/internal/infrastructure/monitoring"
	"github.com/soeminnminn/run-js/internal/sandbox"
	"github.com/soeminnminn/run-js/internal/serialize"
	"github.com/soeminnminn/run-js/internal/shared/id"
	"github.com/soeminnminn/run-js/internal/transport"
)

func newRunner(t *testing.T, cfg Config, metrics *monitoring.Metrics) *Runner {
	t.Helper()
	sbx := sandbox.DefaultConfig()
	sbx.Timeout = 200 * time.Millisecond
	pool, err := sandbox.NewPool(context.Background(), sbx, 1)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return New(pool, cfg, metrics, nil)
}

func TestRunEncodesEvents(t *testing.T) {
	metrics := monitoring.NewMetrics()
	r := newRunner(t, Config{Limit: 2}, metrics)
	buf := transport.NewBuffer()

	out, err := r.Run(context.Background(), Request{Script: "console.log([1, 2, 3, 4]); 40 + 2"}, buf)
	require.NoError(t, err)

	assert.True(t, id.IsValid(string(out.ID)))
	assert.Equal(t, int64(42), out.Value)
	assert.Nil(t, out.Error)

	events := buf.Events()
	require.Len(t, events, 1)
	assert.Equal(t, console.KindLog, events[0].Command)
	assert.Equal(t, []any{[]any{int64(1), int64(2), serialize.Marker(2)}}, events[0].Data)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventsTotal.WithLabelValues("log")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.TruncatedItems))
}

func TestRunRequestLimitOverridesDefault(t *testing.T) {
	r := newRunner(t, Config{Limit: 1}, nil)
	buf := transport.NewBuffer()

	_, err := r.Run(context.Background(), Request{Script: "console.log([1, 2])", Limit: 5}, buf)
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{int64(1), int64(2)}}, buf.Events()[0].Data)
}

func TestRunException(t *testing.T) {
	r := newRunner(t, Config{}, nil)
	buf := transport.NewBuffer()

	out, err := r.Run(context.Background(), Request{Script: "function boom() { null.x }\nboom()"}, buf)
	require.NoError(t, err)
	require.NotNil(t, out.Error)
	assert.Equal(t, "TypeError", out.Error.Name)
	require.NotEmpty(t, out.Error.Stack)
	assert.True(t, strings.HasPrefix(out.Error.Stack[0], "boom()@<eval>:1:"), out.Error.Stack[0])

	require.NotEmpty(t, buf.Events())
	event := buf.Events()[0]
	assert.Equal(t, console.KindError, event.Command)
	assert.Equal(t, event.Trace, out.Error.Stack)
}

func TestRunInterrupted(t *testing.T) {
	metrics := monitoring.NewMetrics()
	r := newRunner(t, Config{}, metrics)

	out, err := r.Run(context.Background(), Request{Script: "for (;;) {}"}, transport.NewBuffer())
	require.NoError(t, err)
	require.NotNil(t, out.Error)
	assert.Equal(t, "InterruptedError", out.Error.Name)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("interrupted")))
}

func TestRunThrottle(t *testing.T) {
	metrics := monitoring.NewMetrics()
	r := newRunner(t, Config{EventsPerSecond: 1, Burst: 3}, metrics)
	buf := transport.NewBuffer()

	out, err := r.Run(context.Background(), Request{
		Script: "for (let i = 0; i < 10; i++) console.log(i); console.error('kept')",
	}, buf)
	require.NoError(t, err)

	events := buf.Events()
	require.Len(t, events, 4)
	assert.Equal(t, console.KindError, events[3].Command)
	assert.Equal(t, int64(7), out.Suppressed)
	assert.Equal(t, 7.0, testutil.ToFloat64(metrics.EventsDropped.WithLabelValues("throttled")))
	assert.Equal(t, 11.0, testutil.ToFloat64(metrics.EventsTotal.WithLabelValues("log"))+
		testutil.ToFloat64(metrics.EventsTotal.WithLabelValues("error")))
}

func TestRunValidation(t *testing.T) {
	r := newRunner(t, Config{}, nil)

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"empty", Request{Script: "  "}, ErrEmptyScript},
		{"too large", Request{Script: strings.Repeat("x", MaxScriptBytes+1)}, ErrScriptSize},
		{"dom disabled", Request{Script: "1", HTML: "<p></p>"}, ErrDOMDisabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Run(context.Background(), tt.req, transport.NewBuffer())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRunWithMarkup(t *testing.T) {
	r := newRunner(t, Config{EnableDOM: true, SanitizeMarkup: true}, nil)

	out, err := r.Run(context.Background(), Request{
		Script: "document.querySelector('#app').textContent = 'hi'",
		HTML:   `<div id="app">x</div>`,
	}, transport.NewBuffer())
	require.NoError(t, err)
	require.Len(t, out.Mutations, 1)
	assert.Equal(t, "set_text", out.Mutations[0].Type)
	assert.Equal(t, "div#app", out.Mutations[0].Target)
}

func TestRunPoolClosed(t *testing.T) {
	pool, err := sandbox.NewPool(context.Background(), sandbox.DefaultConfig(), 1)
	require.NoError(t, err)
	require.NoError(t, pool.Close())

	metrics := monitoring.NewMetrics()
	_, err = New(pool, Config{}, metrics, nil).Run(context.Background(), Request{Script: "1"}, transport.NewBuffer())
	assert.ErrorIs(t, err, sandbox.ErrPoolClosed)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("failed")))
}
