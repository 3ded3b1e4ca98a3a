package serialize

import (
	"reflect"
	"runtime"
	"strings"
)

// Invocable is a host function value, such as a script function, that can
// describe itself for display.
type Invocable interface {
	FunctionName() string
	// Source is the function's source text, or "" when unavailable
	Source() string
}

// Prototyped is implemented by values that know their prototype
// constructor name ("Function", "AsyncFunction", ...).
type Prototyped interface {
	Prototype() string
}

// Function is the decoded, display-only form of a callable. It cannot be
// invoked.
type Function struct {
	Name  string `json:"name"`
	Body  string `json:"body"`
	Proto string `json:"proto"`
}

func (f *Function) String() string {
	return "function " + f.Name + "() {" + f.Body + "}"
}

type callableTransform struct{}

// Callable handles Go funcs and Invocable values
func Callable() Transform { return callableTransform{} }

func (callableTransform) Type() string { return "Function" }

func (callableTransform) Match(v any) bool {
	if _, ok := v.(Invocable); ok {
		return true
	}
	return reflect.ValueOf(v).Kind() == reflect.Func
}

func (callableTransform) Encode(v any, _ *Encoder) any {
	name, source, proto := "", "", "Function"
	if fn, ok := v.(Invocable); ok {
		name, source = fn.FunctionName(), fn.Source()
	} else if rv := reflect.ValueOf(v); !rv.IsNil() {
		if f := runtime.FuncForPC(rv.Pointer()); f != nil {
			name = f.Name()
			if i := strings.LastIndexByte(name, '/'); i >= 0 {
				name = name[i+1:]
			}
		}
	}
	if p, ok := v.(Prototyped); ok && p.Prototype() != "" {
		proto = p.Prototype()
	}
	return map[string]any{"name": name, "body": functionBody(source), "proto": proto}
}

func (callableTransform) Decode(body any, _ *Decoder) any {
	m, ok := body.(map[string]any)
	if !ok {
		return body
	}
	fn := &Function{}
	fn.Name, _ = m["name"].(string)
	fn.Body, _ = m["body"].(string)
	fn.Proto, _ = m["proto"].(string)
	return fn
}

// functionBody strips everything outside the outermost braces
func functionBody(source string) string {
	open := strings.IndexByte(source, '{')
	end := strings.LastIndexByte(source, '}')
	if open < 0 || end <= open {
		return ""
	}
	return source[open+1 : end]
}
