package sandbox

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/soeminnminn/run-js/internal/console"
	"github.com/soeminnminn/run-js/internal/serialize"
	"github.com/soeminnminn/run-js/internal/stacktrace"
	"github.com/soeminnminn/run-js/internal/transport"
)

func newRuntime(t *testing.T, config Config) *Runtime {
	t.Helper()
	r, err := New(config)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func run(t *testing.T, r *Runtime, script string) ([]console.Event, *Result, error) {
	t.Helper()
	buf := transport.NewBuffer()
	result, err := r.Execute(context.Background(), script, nil, buf)
	return buf.Events(), result, err
}

func TestRuntimeExecution(t *testing.T) {
	r := newRuntime(t, DefaultConfig())

	tests := []struct {
		name   string
		script string
		want   any
	}{
		{"simple return", "42", int64(42)},
		{"arithmetic", "1 + 1", int64(2)},
		{"string operations", "'hello'.toUpperCase()", "HELLO"},
		{"object", "({a: [1, 'x']})", map[string]any{"a": []any{int64(1), "x"}}},
		{"undefined", "undefined", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, result, err := run(t, r, tt.script)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Value)
		})
	}
}

func TestConsoleLog(t *testing.T) {
	r := newRuntime(t, DefaultConfig())

	events, _, err := run(t, r, `console.log("hi", 1, {a: true}); console.info(); console.debug(null)`)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, console.KindLog, events[0].Command)
	assert.Equal(t, []any{"hi", int64(1), map[string]any{"a": true}}, events[0].Data)
	assert.Equal(t, console.KindInfo, events[1].Command)
	assert.Equal(t, []any{}, events[1].Data)
	assert.Equal(t, []any{nil}, events[2].Data)
}

func TestConsoleErrorLiftsScriptError(t *testing.T) {
	r := newRuntime(t, DefaultConfig())

	events, _, err := run(t, r, `console.error("context", new Error("boom"))`)
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, console.KindError, e.Command)
	assert.Equal(t, "boom", e.Message)
	assert.Equal(t, []any{"context"}, e.Data)
	require.NotEmpty(t, e.Trace)
	assert.Contains(t, e.Trace[0], "<eval>:1:")
}

func TestConsoleTrace(t *testing.T) {
	r := newRuntime(t, DefaultConfig())

	events, _, err := run(t, r, "function where() { console.trace('here') }\nwhere()")
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, console.KindTrace, e.Command)
	assert.Equal(t, []any{"here"}, e.Data)
	require.Len(t, e.Trace, 2)
	assert.True(t, strings.HasPrefix(e.Trace[0], "where()@<eval>:1:"), e.Trace[0])
	assert.True(t, strings.HasPrefix(e.Trace[1], stacktrace.Anonymous+"()@<eval>:2:"), e.Trace[1])
}

func TestConsoleStatefulMethods(t *testing.T) {
	r := newRuntime(t, DefaultConfig())

	events, _, err := run(t, r, `
		console.group("outer");
		console.count();
		console.count("x");
		console.groupEnd();
		console.time("t");
		console.timeLog("t");
		console.timeEnd("nope");
		console.profile("p");
		console.log("in profile");
		console.profileEnd();
	`)
	require.NoError(t, err)

	commands := make([]console.Kind, len(events))
	for i, e := range events {
		commands[i] = e.Command
	}
	assert.Equal(t, []console.Kind{
		console.KindGroup, console.KindCount, console.KindCount, console.KindGroupEnd,
		console.KindTime, console.KindTimeLog, console.KindTimeEnd,
		console.KindProfile, console.KindLog, console.KindProfileEnd,
	}, commands)

	assert.Equal(t, uint(1), events[0].Level)
	assert.Equal(t, ": 1", events[1].Message)
	assert.Equal(t, uint(1), events[1].Level)
	assert.Equal(t, "x: 1", events[2].Message)
	assert.Equal(t, uint(0), events[3].Level)
	assert.True(t, strings.HasPrefix(events[5].Message, "t: "), events[5].Message)
	assert.Equal(t, `Timer "nope" doesn't exist.`, events[6].Message)
	assert.Equal(t, console.MethodWarn, events[6].Method)
	assert.Equal(t, "p", events[8].Profile)
	assert.Empty(t, events[9].Profile)
}

func TestConsoleAssert(t *testing.T) {
	r := newRuntime(t, DefaultConfig())

	events, _, err := run(t, r, `console.assert(1 === 2, "bad", 3); console.assert("yes")`)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, console.MethodError, events[0].Method)
	assert.Equal(t, "Assertion failed", events[0].Message)
	assert.Equal(t, []any{"bad", int64(3)}, events[0].Data)
	assert.NotEmpty(t, events[0].Trace)

	assert.Equal(t, console.MethodSuccess, events[1].Method)
}

func TestConsoleTableAndDir(t *testing.T) {
	r := newRuntime(t, DefaultConfig())

	events, _, err := run(t, r, `console.table([{a: 1}], ["a"]); console.dir({k: "v"}, "ignored")`)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, []string{"a"}, events[0].Columns)
	assert.Equal(t, []any{[]any{map[string]any{"a": int64(1)}}}, events[0].Data)
	assert.Equal(t, []any{map[string]any{"k": "v"}}, events[1].Data)
}

func TestScriptValueConversion(t *testing.T) {
	r := newRuntime(t, DefaultConfig())

	events, _, err := run(t, r, `
		function add(a, b) { return a + b }
		const m = new Map([[1, "one"], ["two", 2]]);
		const o = {};
		o.self = o;
		console.log(add, m, new Set([1, 2]), o, Symbol("s"), /x+/g);
	`)
	require.NoError(t, err)
	require.Len(t, events, 1)
	data := events[0].Data
	require.Len(t, data, 6)

	fn, ok := data[0].(serialize.Invocable)
	require.True(t, ok)
	assert.Equal(t, "add", fn.FunctionName())
	assert.Contains(t, fn.Source(), "return a + b")
	assert.Equal(t, "Function", data[0].(serialize.Prototyped).Prototype())

	m, ok := data[1].(*serialize.OrderedMap)
	require.True(t, ok)
	assert.Equal(t, "Map", m.Constructor)
	assert.Equal(t, 2, m.Len())
	v, ok := m.Get(int64(1))
	assert.True(t, ok)
	assert.Equal(t, "one", v)

	assert.Equal(t, []any{int64(1), int64(2)}, data[2])

	o := data[3].(map[string]any)
	assert.Equal(t, reflect.ValueOf(o).Pointer(), reflect.ValueOf(o["self"]).Pointer())

	assert.Equal(t, "Symbol(s)", data[4])
	assert.Equal(t, "/x+/g", data[5])

	env := serialize.New().EncodeArgs(data, 0)
	assert.Equal(t, "Function", env[0].(map[string]any)["@t"])
	assert.Equal(t, "Map", env[1].(map[string]any)["@t"])
	assert.Equal(t, map[string]any{"self": map[string]any{"@r": 0}}, env[3])
}

func TestUncaughtException(t *testing.T) {
	r := newRuntime(t, DefaultConfig())

	events, result, err := run(t, r, `console.log("before"); throw new TypeError("bad")`)
	require.Error(t, err)

	var ev *stacktrace.ErrorValue
	require.True(t, errors.As(err, &ev))
	assert.Equal(t, "TypeError", ev.Name)
	assert.Equal(t, "bad", ev.Message)
	assert.Same(t, ev, result.Error)

	require.Len(t, events, 2)
	assert.Equal(t, console.KindError, events[1].Command)
	assert.Equal(t, "bad", events[1].Message)
}

func TestSyntaxError(t *testing.T) {
	r := newRuntime(t, DefaultConfig())

	events, result, err := run(t, r, `function (`)
	require.Error(t, err)
	assert.Equal(t, "SyntaxError", result.Error.Class)

	require.Len(t, events, 1)
	assert.Equal(t, console.KindError, events[0].Command)
	assert.True(t, strings.HasPrefix(events[0].Data[0].(string), "Uncaught SyntaxError"))
}

func TestRuntimeTimeout(t *testing.T) {
	config := DefaultConfig()
	config.Timeout = 50 * time.Millisecond
	r := newRuntime(t, config)

	_, _, err := run(t, r, `let i = 0; while (true) { i++ }`)
	assert.True(t, errors.Is(err, ErrInterrupted), err)

	_, result, err := run(t, r, "1 + 1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Value)
}

func TestRuntimeContextCancelled(t *testing.T) {
	config := DefaultConfig()
	config.Timeout = 0
	r := newRuntime(t, config)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Execute(ctx, `while (true) {}`, nil, transport.NewBuffer())
	assert.True(t, errors.Is(err, ErrInterrupted), err)
}

func TestRuntimeSecurity(t *testing.T) {
	r := newRuntime(t, DefaultConfig())

	for _, script := range []string{"require('fs')", "process.exit(1)", "module.exports = {}"} {
		t.Run(script, func(t *testing.T) {
			_, _, err := run(t, r, script)
			assert.Error(t, err)
		})
	}
}

func TestRuntimeRequiresSink(t *testing.T) {
	r := newRuntime(t, DefaultConfig())

	_, err := r.Execute(context.Background(), "1", nil, nil)
	var cfgErr *console.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestRuntimeClosed(t *testing.T) {
	r, err := New(DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = r.Execute(context.Background(), "1", nil, transport.NewBuffer())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDOM(t *testing.T) {
	r := newRuntime(t, DefaultConfig())
	dom, err := NewDOM(`<div id="app" class="c">hi</div><p>one</p><p>two</p>`)
	require.NoError(t, err)

	buf := transport.NewBuffer()
	result, err := r.Execute(context.Background(), `
		const el = document.querySelector("#app");
		el.setAttribute("data-x", "1");
		el.textContent = "bye";
		console.log(el, el === document.getElementById("app"));
		[el.id, el.tagName, document.querySelectorAll("p").length, document.querySelector("nav")]
	`, dom, buf)
	require.NoError(t, err)

	assert.Equal(t, []any{"app", "DIV", int64(2), nil}, result.Value)
	assert.Equal(t, []Mutation{
		{Type: "set_attribute", Target: "div#app.c", Name: "data-x", Value: "1"},
		{Type: "set_text", Target: "div#app.c", Value: "bye"},
	}, result.Mutations)

	events := buf.Events()
	require.Len(t, events, 1)
	node, ok := events[0].Data[0].(*html.Node)
	require.True(t, ok)
	assert.Equal(t, "div", node.Data)
	assert.Equal(t, true, events[0].Data[1])

	env := serialize.New().Encode(node, 0).(map[string]any)
	assert.Equal(t, "HTMLElement", env["@t"])
	assert.Equal(t, "bye", env["data"].(map[string]any)["innerHTML"])
}

func TestDOMDisabled(t *testing.T) {
	config := DefaultConfig()
	config.EnableDOM = false
	r := newRuntime(t, config)
	dom, err := NewDOM(`<p>x</p>`)
	require.NoError(t, err)

	result, err := r.Execute(context.Background(), `typeof document`, dom, transport.NewBuffer())
	require.NoError(t, err)
	assert.Equal(t, "undefined", result.Value)
}

func TestDOMEvaluate(t *testing.T) {
	r := newRuntime(t, DefaultConfig())
	dom, err := NewDOM(`<ul><li class="a">one</li><li>two</li><li class="a">three</li></ul>`)
	require.NoError(t, err)

	result, err := r.Execute(context.Background(), `
		const found = document.evaluate("//li[@class='a']");
		[found.snapshotLength, found.snapshotItem(1).textContent, found.snapshotItem(5)]
	`, dom, transport.NewBuffer())
	require.NoError(t, err)
	assert.Equal(t, []any{int64(2), "three", nil}, result.Value)

	_, err = r.Execute(context.Background(), `document.evaluate("//li[")`, dom, transport.NewBuffer())
	var exception *stacktrace.ErrorValue
	require.ErrorAs(t, err, &exception)
	assert.Equal(t, "TypeError", exception.Name)
}

func TestLoadMarkup(t *testing.T) {
	latin1 := strings.Repeat("<p>Le caf\xe9 est tr\xe8s chaud, la cr\xe8me br\xfbl\xe9e est d\xe9licieuse.</p>\n", 8)
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"utf-8 passes through", "<p>Café crème</p>", "Café crème"},
		{"latin-1 is decoded", latin1, "café est très chaud"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadMarkup(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Contains(t, got, tt.want)
		})
	}

	_, err := LoadMarkup(strings.NewReader(strings.Repeat("x", MaxMarkupBytes+1)))
	assert.Error(t, err)
}
