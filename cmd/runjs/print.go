package main

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"golang.org/x/net/html"

	"github.com/soeminnminn/run-js/internal/console"
	"github.com/soeminnminn/run-js/internal/format"
	"github.com/soeminnminn/run-js/internal/runner"
	"github.com/soeminnminn/run-js/internal/serialize"
)

// printer replays captured events as they arrive. Event data arrives
// encoded; the printer decodes it, applies the format string of the first
// argument and indents by group depth. JSON mode writes the wire event as
// received plus the rendered text.
type printer struct {
	mu         sync.Mutex
	w          io.Writer
	asJSON     bool
	replicator *serialize.Replicator
}

func newPrinter(w io.Writer, asJSON bool, replicator *serialize.Replicator) *printer {
	if replicator == nil {
		replicator = serialize.New()
	}
	return &printer{w: w, asJSON: asJSON, replicator: replicator}
}

func (p *printer) Header(path string) {
	if !p.asJSON {
		p.printf("==> %s <==\n", path)
	}
}

func (p *printer) Accept(e console.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	text := p.text(e)
	if p.asJSON {
		line, err := sonic.MarshalString(struct {
			console.Event
			Text string `json:"text"`
		}{e, text})
		if err != nil {
			line = fmt.Sprintf(`{"command":%q,"error":%q}`, e.Command, err.Error())
		}
		fmt.Fprintln(p.w, line)
		return
	}

	indent := strings.Repeat("  ", int(e.Level))
	fmt.Fprintf(p.w, "%s[%s] %s\n", indent, e.Command, text)
	for _, frame := range e.Trace {
		fmt.Fprintf(p.w, "%s    at %s\n", indent, frame)
	}
}

// text decodes the event data and renders the message line
func (p *printer) text(e console.Event) string {
	data := p.replicator.DecodeEvent(e).Data

	parts := make([]string, 0, len(data)+1)
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	msg := format.Message(data)
	if len(data) > 0 {
		if _, ok := data[0].(string); ok {
			parts = append(parts, msg.Formatted)
		}
	}
	r := &renderer{}
	for _, item := range msg.Unused {
		parts = append(parts, r.top(item))
	}
	return strings.Join(parts, " ")
}

func (p *printer) Exception(f *runner.Failure) {
	if p.asJSON {
		line, _ := sonic.MarshalString(map[string]any{"uncaught": f})
		p.printf("%s\n", line)
		return
	}
	p.printf("Uncaught %s: %s\n", f.Name, f.Message)
	for _, frame := range f.Stack {
		p.printf("    at %s\n", frame)
	}
}

func (p *printer) Failure(path, message string) {
	if p.asJSON {
		line, _ := sonic.MarshalString(struct {
			Path    string `json:"path"`
			Failure string `json:"failure"`
		}{path, message})
		p.printf("%s\n", line)
		return
	}
	p.printf("run failed: %s\n", message)
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

// renderer turns decoded values into console display text. Containers
// already open further up are shown as [Circular].
type renderer struct {
	open []uintptr
}

// top renders a top-level argument: strings bare, everything else nested
func (r *renderer) top(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return r.render(v)
}

func (r *renderer) render(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		if n, ok := serialize.IsMarker(x); ok {
			return fmt.Sprintf("… %d more", n)
		}
		return strconv.Quote(x)
	case bool:
		return strconv.FormatBool(x)
	case *serialize.Function:
		return x.String()
	case *html.Node:
		return outerHTML(x)
	case *serialize.Keyed:
		return r.keyed(x)
	case []any:
		return r.list(x)
	case map[string]any:
		return r.object(x)
	}
	if n, ok := format.ToNumber(v); ok {
		return format.Number(n)
	}
	return fmt.Sprint(v)
}

func (r *renderer) enter(v any) bool {
	ptr := reflect.ValueOf(v).Pointer()
	for _, p := range r.open {
		if p == ptr {
			return false
		}
	}
	r.open = append(r.open, ptr)
	return true
}

func (r *renderer) leave() { r.open = r.open[:len(r.open)-1] }

func (r *renderer) list(items []any) string {
	if len(items) > 0 {
		if !r.enter(items) {
			return "[Circular]"
		}
		defer r.leave()
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = r.render(item)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (r *renderer) object(m map[string]any) string {
	if !r.enter(m) {
		return "[Circular]"
	}
	defer r.leave()

	keys := make([]string, 0, len(m))
	for k := range m {
		if k != serialize.MarkerPrefix {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		parts = append(parts, k+": "+r.render(m[k]))
	}
	if marker, ok := m[serialize.MarkerPrefix]; ok {
		parts = append(parts, r.render(marker))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (r *renderer) keyed(k *serialize.Keyed) string {
	if !r.enter(k) {
		return "[Circular]"
	}
	defer r.leave()

	parts := make([]string, 0, len(k.Entries)+1)
	for _, e := range k.Entries {
		parts = append(parts, e.Key+" => "+r.render(e.Value))
	}
	if k.Remaining > 0 {
		parts = append(parts, fmt.Sprintf("… %d more", k.Remaining))
	}
	return fmt.Sprintf("%s(%d) {%s}", k.Constructor, len(k.Entries)+k.Remaining, strings.Join(parts, ", "))
}

func outerHTML(n *html.Node) string {
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return "<" + n.Data + ">"
	}
	return b.String()
}
