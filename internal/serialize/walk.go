package serialize

import (
	"encoding"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/soeminnminn/run-js/internal/format"
	"github.com/soeminnminn/run-js/internal/stacktrace"
)

// identity locates a container in memory for cycle detection. The zero
// identity never matches.
type identity struct {
	ptr  uintptr
	kind reflect.Kind
	len  int
}

// Encoder walks one value (or one argument list) depth first. It carries
// the item limit, the chain of open containers and the omitted item count.
type Encoder struct {
	r       *Replicator
	limit   int
	stack   []identity
	omitted int
}

// Omitted returns the number of items dropped so far by truncation
func (e *Encoder) Omitted() int {
	return e.omitted
}

// Visible returns how many of n sibling items fit the limit and records the
// remainder as omitted.
func (e *Encoder) Visible(n int) int {
	if e.limit <= 0 || n <= e.limit {
		return n
	}
	dropped := n - e.limit
	e.omitted += dropped
	if e.r.onTruncate != nil {
		e.r.onTruncate(dropped)
	}
	return e.limit
}

// Encode converts v into a JSON-safe envelope node
func (e *Encoder) Encode(v any) any {
	if v == nil {
		return nil
	}
	for _, t := range e.r.transforms {
		if e.matches(t, v) {
			return e.transform(t, v)
		}
	}
	if err, ok := v.(error); ok && !isNilPointer(v) {
		return encodeError(err)
	}
	if m, ok := v.(encoding.TextMarshaler); ok && !isNilPointer(v) {
		if text, err := m.MarshalText(); err == nil {
			return string(text)
		}
	}
	return e.value(reflect.ValueOf(v), v)
}

func (e *Encoder) matches(t Transform, v any) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.r.logger.Debug("Transform match panicked", zap.String("type", t.Type()), zap.Any("panic", r))
			ok = false
		}
	}()
	return t.Match(v)
}

func (e *Encoder) transform(t Transform, v any) (node any) {
	id := identify(reflect.ValueOf(v))
	if i := e.ancestor(id); i >= 0 {
		return map[string]any{refKey: i}
	}
	e.push(id)
	defer e.pop()

	defer func() {
		if r := recover(); r != nil {
			e.r.logger.Debug("Transform encode failed, passing value through",
				zap.String("type", t.Type()), zap.Any("panic", r))
			node = v
		}
	}()
	return map[string]any{typeKey: t.Type(), dataKey: t.Encode(v, e)}
}

func (e *Encoder) value(rv reflect.Value, raw any) any {
	switch rv.Kind() {
	case reflect.Invalid:
		return nil
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return raw
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) {
			return nil
		}
		return f
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		if rv.Elem().Kind() == reflect.Struct {
			id := identify(rv)
			if i := e.ancestor(id); i >= 0 {
				return map[string]any{refKey: i}
			}
			return e.structure(rv.Elem(), id)
		}
		return e.Encode(rv.Elem().Interface())
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		return e.object(rv)
	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		return e.list(rv)
	case reflect.Array:
		return e.list(rv)
	case reflect.Struct:
		return e.structure(rv, identity{})
	}

	e.r.logger.Debug("No encoding for value, passing through", zap.String("type", fmt.Sprintf("%T", raw)))
	return raw
}

func (e *Encoder) list(rv reflect.Value) any {
	id := identify(rv)
	if i := e.ancestor(id); i >= 0 {
		return map[string]any{refKey: i}
	}
	e.push(id)
	defer e.pop()

	n := rv.Len()
	visible := e.Visible(n)
	out := make([]any, 0, visible+1)
	for i := 0; i < visible; i++ {
		out = append(out, e.Encode(rv.Index(i).Interface()))
	}
	if visible < n {
		out = append(out, Marker(n-visible))
	}
	return out
}

func (e *Encoder) object(rv reflect.Value) any {
	id := identify(rv)
	if i := e.ancestor(id); i >= 0 {
		return map[string]any{refKey: i}
	}
	e.push(id)
	defer e.pop()

	type entry struct {
		name string
		key  reflect.Value
	}
	keys := rv.MapKeys()
	entries := make([]entry, len(keys))
	for i, k := range keys {
		entries[i] = entry{name: KeyString(k.Interface()), key: k}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	visible := e.Visible(len(entries))
	out := make(map[string]any, visible+1)
	for _, en := range entries[:visible] {
		out[escapeKey(en.name)] = e.Encode(rv.MapIndex(en.key).Interface())
	}
	if visible < len(entries) {
		out[MarkerPrefix] = Marker(len(entries) - visible)
	}
	return out
}

func (e *Encoder) structure(rv reflect.Value, id identity) any {
	e.push(id)
	defer e.pop()

	fields := exportedFields(rv)
	visible := e.Visible(len(fields))
	out := make(map[string]any, visible+1)
	for _, f := range fields[:visible] {
		out[escapeKey(f.name)] = e.Encode(f.value.Interface())
	}
	if visible < len(fields) {
		out[MarkerPrefix] = Marker(len(fields) - visible)
	}
	return out
}

func (e *Encoder) ancestor(id identity) int {
	if id.ptr == 0 {
		return -1
	}
	for i, a := range e.stack {
		if a == id {
			return i
		}
	}
	return -1
}

func (e *Encoder) push(id identity) { e.stack = append(e.stack, id) }
func (e *Encoder) pop()             { e.stack = e.stack[:len(e.stack)-1] }

func identify(rv reflect.Value) identity {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map:
		if !rv.IsNil() {
			return identity{ptr: rv.Pointer(), kind: rv.Kind()}
		}
	case reflect.Slice:
		if !rv.IsNil() && rv.Len() > 0 {
			return identity{ptr: rv.Pointer(), kind: reflect.Slice, len: rv.Len()}
		}
	}
	return identity{}
}

type field struct {
	name  string
	value reflect.Value
}

// exportedFields lists the fields encoding/json would emit, honouring the
// name, "-" and omitempty parts of json tags.
func exportedFields(rv reflect.Value) []field {
	t := rv.Type()
	fields := make([]field, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Name
		tag := sf.Tag.Get("json")
		if tag == "-" {
			continue
		}
		if tag != "" {
			parts := strings.Split(tag, ",")
			if parts[0] != "" {
				name = parts[0]
			}
			omitEmpty := false
			for _, opt := range parts[1:] {
				if opt == "omitempty" {
					omitEmpty = true
				}
			}
			if omitEmpty && rv.Field(i).IsZero() {
				continue
			}
		}
		fields = append(fields, field{name: name, value: rv.Field(i)})
	}
	return fields
}

// encodeError renders an error as a plain object with name, message and,
// when known, the stack text.
func encodeError(err error) map[string]any {
	if ev, ok := stacktrace.As(err); ok {
		out := map[string]any{"name": ev.Name, "message": ev.Message}
		if ev.Name == "" {
			out["name"] = "Error"
			if ev.Class != "" {
				out["name"] = ev.Class
			}
		}
		if ev.Stack != "" {
			out["stack"] = ev.Stack
		}
		return out
	}
	return map[string]any{"name": "Error", "message": err.Error()}
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// Decoder rebuilds values from an envelope. It tracks decoded containers so
// that reference nodes can be resolved. A transform that decodes nested
// values calls Bind first so references back to it resolve as well.
type Decoder struct {
	r     *Replicator
	stack []any
}

// Decode converts an envelope node back into a value
func (d *Decoder) Decode(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return d.object(x)
	case []any:
		out := make([]any, len(x))
		d.stack = append(d.stack, out)
		defer d.pop()
		for i, item := range x {
			out[i] = d.Decode(item)
		}
		return out
	}
	return v
}

func (d *Decoder) object(m map[string]any) any {
	if ref, ok := m[refKey]; ok && len(m) == 1 {
		if n, ok := format.ToNumber(ref); ok {
			if i := int(n); i >= 0 && i < len(d.stack) {
				return d.stack[i]
			}
		}
		return nil
	}

	if tag, ok := m[typeKey].(string); ok && len(m) == 2 {
		if body, ok := m[dataKey]; ok {
			return d.transform(tag, body)
		}
	}

	// A truncated object keeps its marker under the bare prefix; a user key
	// of the same name then stays escaped
	_, truncated := m[MarkerPrefix]
	out := make(map[string]any, len(m))
	d.stack = append(d.stack, out)
	defer d.pop()
	for k, item := range m {
		if key := unescapeKey(k); key != MarkerPrefix || k == MarkerPrefix || !truncated {
			k = key
		}
		out[k] = d.Decode(item)
	}
	return out
}

func (d *Decoder) transform(tag string, body any) (value any) {
	d.stack = append(d.stack, nil)
	defer d.pop()

	t, ok := d.r.byType[tag]
	if !ok {
		d.r.logger.Debug("Unknown transform type", zap.String("type", tag))
		return map[string]any{typeKey: tag, dataKey: d.Decode(body)}
	}

	defer func() {
		if r := recover(); r != nil {
			d.r.logger.Debug("Transform decode failed, passing body through",
				zap.String("type", tag), zap.Any("panic", r))
			value = body
		}
	}()
	return t.Decode(body, d)
}

// Bind registers v as the value of the transform node being decoded
func (d *Decoder) Bind(v any) {
	if n := len(d.stack); n > 0 {
		d.stack[n-1] = v
	}
}

func (d *Decoder) pop() { d.stack = d.stack[:len(d.stack)-1] }
