package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/soeminnminn/run-js/internal/console"
	"github.com/soeminnminn/run-js/internal/infrastructure/config"
	"github.com/soeminnminn/run-js/internal/runner"
	"github.com/soeminnminn/run-js/internal/serialize"
)

// encoded returns events as they leave the capture pipeline
func encoded(r *serialize.Replicator, limit int, events ...console.Event) []console.Event {
	out := make([]console.Event, len(events))
	for i, e := range events {
		out[i] = r.EncodeEvent(e, limit)
	}
	return out
}

func TestPrinterText(t *testing.T) {
	var buf bytes.Buffer
	r := serialize.New()
	p := newPrinter(&buf, false, r)

	keyed := serialize.NewOrderedMap("")
	keyed.Set(1, "a")

	p.Header("a.js")
	for _, e := range encoded(r, 2,
		console.Event{Command: console.KindLog, Data: []any{"hi", map[string]any{"a": int64(1)}}},
		console.Event{Command: console.KindLog, Data: []any{"%s is %d", "x", 3.7}},
		console.Event{Command: console.KindInfo, Data: []any{[]any{1, 2, 3}, keyed}},
		console.Event{Command: console.KindGroup, Data: []any{"outer"}},
		console.Event{Command: console.KindTime, Level: 1, Message: "t: 3ms"},
		console.Event{Command: console.KindTrace, Level: 1, Data: []any{"here"}, Trace: []string{"f()@a.js:1:1"}},
	) {
		p.Accept(e)
	}
	p.Exception(&runner.Failure{Name: "TypeError", Message: "x", Stack: []string{"f()@a.js:1:1"}})

	assert.Equal(t, `==> a.js <==
[log] hi {a: 1}
[log] x is 3
[info] [1, 2, … 1 more] Map(1) {1 => "a"}
[group] outer
  [time] t: 3ms
  [trace] here
      at f()@a.js:1:1
Uncaught TypeError: x
    at f()@a.js:1:1
`, buf.String())
}

func TestPrinterRendersCycles(t *testing.T) {
	var buf bytes.Buffer
	r := serialize.New()
	p := newPrinter(&buf, false, r)

	m := map[string]any{"name": "root"}
	m["self"] = m
	p.Accept(r.EncodeEvent(console.Event{Command: console.KindLog, Data: []any{m}}, 10))

	assert.Equal(t, "[log] {name: \"root\", self: [Circular]}\n", buf.String())
}

func TestPrinterJSON(t *testing.T) {
	var buf bytes.Buffer
	r := serialize.New()
	p := newPrinter(&buf, true, r)

	p.Header("ignored.js")
	p.Accept(r.EncodeEvent(console.Event{Command: console.KindWarn, Timestamp: "10:00:00.000", Data: []any{"w %d", 2}}, 10))
	p.Failure("b.js", "boom")

	assert.Equal(t, `{"command":"warn","timestamp":"10:00:00.000","level":0,"data":["w %d",2,"__console_feed_remaining__0"],"text":"w 2"}
{"path":"b.js","failure":"boom"}
`, buf.String())
}

func TestPrinterReplaysLocalRun(t *testing.T) {
	ctx := context.Background()
	l, err := newLocal(ctx, config.Default(), zap.NewNop())
	require.NoError(t, err)
	defer l.Close()

	var buf bytes.Buffer
	p := newPrinter(&buf, false, l.Replicator())
	script := `console.log("%s is %d", "x", 3.7)
console.log([1, 2, 3, 4])
console.log(new Map([[1, "one"]]))
console.log(function add(a, b) { return a + b })`

	out, err := l.Run(ctx, runner.Request{Script: script, Limit: 2}, p)
	require.NoError(t, err)
	assert.Nil(t, out.Error)

	text := buf.String()
	assert.Contains(t, text, "[log] x is 3\n")
	assert.Contains(t, text, "[log] [1, 2, … 2 more]\n")
	assert.Contains(t, text, "[log] Map(1) {1 => \"one\"}\n")
	assert.Contains(t, text, "[log] function add() { return a + b }\n")
	assert.NotContains(t, text, serialize.MarkerPrefix)
	assert.NotContains(t, text, `"@t"`)
}
