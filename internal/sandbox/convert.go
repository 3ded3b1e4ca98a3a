package sandbox

import (
	"bytes"
	"strconv"

	"github.com/dop251/goja"
	"golang.org/x/net/html"

	"github.com/soeminnminn/run-js/internal/serialize"
	"github.com/soeminnminn/run-js/internal/stacktrace"
)

// scriptFunction is a JS function as the serializer sees it
type scriptFunction struct {
	name   string
	source string
	proto  string
}

func (f *scriptFunction) FunctionName() string { return f.name }
func (f *scriptFunction) Source() string       { return f.source }
func (f *scriptFunction) Prototype() string    { return f.proto }

// exporter converts script values into host values for one console call.
// Objects already visited map to the host value built for them, so cyclic
// structures stay cyclic and the serializer can emit references.
type exporter struct {
	elements map[*goja.Object]*html.Node
	toArray  goja.Callable
	capture  stacktrace.CaptureFunc
	seen     map[*goja.Object]any
}

func (x *exporter) args(values []goja.Value) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = x.value(v)
	}
	return out
}

func (x *exporter) value(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if _, ok := v.(*goja.Symbol); ok {
		return v.String()
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.Export()
	}
	if done, ok := x.seen[obj]; ok {
		return done
	}
	if n, ok := x.elements[obj]; ok {
		return n
	}
	if _, ok := goja.AssertFunction(obj); ok {
		fn := &scriptFunction{
			name:   stringProp(obj, "name"),
			source: obj.String(),
			proto:  constructorName(obj.Prototype(), "Function"),
		}
		x.seen[obj] = fn
		return fn
	}

	switch obj.ClassName() {
	case "Error":
		e := errorValue(obj)
		if e.Stack == "" && x.capture != nil {
			e.Stack = x.capture(e.Message).Stack
		}
		x.seen[obj] = e
		return e
	case "Array":
		return x.list(obj, obj)
	case "Map":
		return x.keyed(obj)
	case "Set":
		return x.list(obj, x.spread(obj))
	case "Date", "Number", "String", "Boolean":
		return obj.Export()
	case "RegExp":
		return obj.String()
	}
	return x.object(obj)
}

// list copies the indexed elements of items; owner is the object the
// result stands for.
func (x *exporter) list(owner, items *goja.Object) []any {
	if items == nil {
		out := []any{}
		x.seen[owner] = out
		return out
	}
	n := items.Get("length").ToInteger()
	out := make([]any, n)
	x.seen[owner] = out
	for i := int64(0); i < n; i++ {
		out[i] = x.value(items.Get(strconv.FormatInt(i, 10)))
	}
	return out
}

func (x *exporter) keyed(obj *goja.Object) *serialize.OrderedMap {
	m := serialize.NewOrderedMap(constructorName(obj, "Map"))
	x.seen[obj] = m

	entries := x.spread(obj)
	if entries == nil {
		return m
	}
	n := entries.Get("length").ToInteger()
	for i := int64(0); i < n; i++ {
		pair, ok := entries.Get(strconv.FormatInt(i, 10)).(*goja.Object)
		if !ok {
			continue
		}
		m.Set(x.value(pair.Get("0")), x.value(pair.Get("1")))
	}
	return m
}

func (x *exporter) object(obj *goja.Object) map[string]any {
	out := make(map[string]any)
	x.seen[obj] = out
	for _, key := range obj.Keys() {
		out[key] = x.value(obj.Get(key))
	}
	return out
}

// spread runs Array.from on an iterable
func (x *exporter) spread(obj *goja.Object) *goja.Object {
	if x.toArray == nil {
		return nil
	}
	v, err := x.toArray(goja.Undefined(), obj)
	if err != nil {
		return nil
	}
	arr, _ := v.(*goja.Object)
	return arr
}

func errorValue(obj *goja.Object) *stacktrace.ErrorValue {
	name := stringProp(obj, "name")
	class := name
	if class == "" {
		class = "Error"
	}
	return &stacktrace.ErrorValue{
		Class:        class,
		Name:         name,
		Message:      stringProp(obj, "message"),
		Stack:        stringProp(obj, "stack"),
		HasArguments: true,
	}
}

// exceptionValue turns an uncaught exception into an ErrorValue. Thrown
// non-error values keep the exception's own stack.
func exceptionValue(exc *goja.Exception) *stacktrace.ErrorValue {
	if obj, ok := exc.Value().(*goja.Object); ok && obj.ClassName() == "Error" {
		if e := errorValue(obj); e.Stack != "" {
			return e
		}
	}
	var b bytes.Buffer
	b.WriteString("Error: Uncaught ")
	b.WriteString(exc.Value().String())
	b.WriteByte('\n')
	for _, frame := range exc.Stack() {
		writeFrame(&b, frame)
	}
	return &stacktrace.ErrorValue{
		Class:        "Error",
		Name:         "Error",
		Message:      "Uncaught " + exc.Value().String(),
		Stack:        b.String(),
		HasArguments: true,
	}
}

func writeFrame(b *bytes.Buffer, frame goja.StackFrame) {
	if frame.SrcName() == "<native>" {
		return
	}
	b.WriteString("\tat ")
	frame.Write(b)
	b.WriteByte('\n')
}

func stringProp(obj *goja.Object, name string) string {
	v := obj.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

func constructorName(obj *goja.Object, fallback string) string {
	if obj == nil {
		return fallback
	}
	ctor, ok := obj.Get("constructor").(*goja.Object)
	if !ok {
		return fallback
	}
	if name := stringProp(ctor, "name"); name != "" {
		return name
	}
	return fallback
}
