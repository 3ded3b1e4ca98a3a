package sandbox

import (
	"strings"

	"github.com/dop251/goja"
	"golang.org/x/net/html"

	"github.com/soeminnminn/run-js/internal/console"
	"github.com/soeminnminn/run-js/internal/format"
)

// consoleObject builds the script-facing console. Every method forwards to
// the session of the run in progress; calls outside a run are ignored.
func (r *Runtime) consoleObject() *goja.Object {
	c := r.vm.NewObject()
	method := func(name string, fn func(s *console.Session, x *exporter, args []goja.Value)) {
		c.Set(name, func(call goja.FunctionCall) goja.Value {
			if s := r.session; s != nil {
				fn(s, r.exporter(), call.Arguments)
			}
			return goja.Undefined()
		})
	}

	variadic := map[string]func(*console.Session, ...any){
		"log":   (*console.Session).Log,
		"info":  (*console.Session).Info,
		"debug": (*console.Session).Debug,
		"warn":  (*console.Session).Warn,
		"error": (*console.Session).Error,
		"trace": (*console.Session).Trace,
	}
	for name, fn := range variadic {
		method(name, func(s *console.Session, x *exporter, args []goja.Value) {
			fn(s, x.args(args)...)
		})
	}

	labelled := map[string]func(*console.Session, ...string){
		"count":          (*console.Session).Count,
		"countReset":     (*console.Session).CountReset,
		"group":          (*console.Session).Group,
		"groupCollapsed": (*console.Session).GroupCollapsed,
		"time":           (*console.Session).Time,
		"timeEnd":        (*console.Session).TimeEnd,
		"timeLog":        (*console.Session).TimeLog,
		"timeStamp":      (*console.Session).TimeStamp,
	}
	for name, fn := range labelled {
		method(name, func(s *console.Session, _ *exporter, args []goja.Value) {
			fn(s, label(args)...)
		})
	}

	method("assert", func(s *console.Session, x *exporter, args []goja.Value) {
		condition := len(args) > 0 && args[0].ToBoolean()
		s.Assert(condition, x.args(tail(args, 1))...)
	})
	method("clear", func(s *console.Session, _ *exporter, _ []goja.Value) { s.Clear() })
	method("groupEnd", func(s *console.Session, _ *exporter, _ []goja.Value) { s.GroupEnd() })
	method("profileEnd", func(s *console.Session, _ *exporter, _ []goja.Value) { s.ProfileEnd() })
	method("profile", func(s *console.Session, _ *exporter, args []goja.Value) {
		s.Profile(first(label(args)))
	})
	method("dir", func(s *console.Session, x *exporter, args []goja.Value) {
		s.Dir(x.value(argument(args, 0)))
	})
	method("dirxml", func(s *console.Session, x *exporter, args []goja.Value) {
		s.Dirxml(x.value(argument(args, 0)))
	})
	method("table", func(s *console.Session, x *exporter, args []goja.Value) {
		var columns []string
		if cols, ok := x.value(argument(args, 1)).([]any); ok {
			for _, col := range cols {
				columns = append(columns, format.Stringify(col))
			}
		}
		s.Table(x.value(argument(args, 0)), columns...)
	})
	return c
}

// injectDOM exposes a read-mostly document backed by r.dom
func (r *Runtime) injectDOM() {
	document := r.vm.NewObject()
	document.Set("querySelector", func(selector string) goja.Value {
		nodes := r.dom.Query(selector)
		if len(nodes) == 0 {
			return goja.Null()
		}
		return r.elementProxy(nodes[0])
	})
	document.Set("querySelectorAll", func(selector string) goja.Value {
		nodes := r.dom.Query(selector)
		proxies := make([]any, len(nodes))
		for i, n := range nodes {
			proxies[i] = r.elementProxy(n)
		}
		return r.vm.NewArray(proxies...)
	})
	document.Set("getElementById", func(id string) goja.Value {
		if n := r.dom.ByID(id); n != nil {
			return r.elementProxy(n)
		}
		return goja.Null()
	})
	document.Set("evaluate", func(expr string) *goja.Object {
		nodes, err := r.dom.Evaluate(expr)
		if err != nil {
			panic(r.vm.NewTypeError(err.Error()))
		}
		snapshot := r.vm.NewObject()
		snapshot.Set("snapshotLength", len(nodes))
		snapshot.Set("snapshotItem", func(i int) goja.Value {
			if i < 0 || i >= len(nodes) {
				return goja.Null()
			}
			return r.elementProxy(nodes[i])
		})
		return snapshot
	})
	r.vm.Set("document", document)
}

// elementProxy returns the script object standing for n. The same node
// always yields the same object within a run.
func (r *Runtime) elementProxy(n *html.Node) *goja.Object {
	for obj, node := range r.elements {
		if node == n {
			return obj
		}
	}

	el := r.vm.NewObject()
	el.Set("tagName", strings.ToUpper(n.Data))
	el.DefineAccessorProperty("id", r.vm.ToValue(func() string {
		v, _ := r.dom.Attribute(n, "id")
		return v
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	el.DefineAccessorProperty("className", r.vm.ToValue(func() string {
		v, _ := r.dom.Attribute(n, "class")
		return v
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	el.DefineAccessorProperty("textContent",
		r.vm.ToValue(func() string { return r.dom.Text(n) }),
		r.vm.ToValue(func(text string) { r.dom.SetText(n, text) }),
		goja.FLAG_FALSE, goja.FLAG_TRUE)
	el.Set("getAttribute", func(name string) goja.Value {
		if v, ok := r.dom.Attribute(n, name); ok {
			return r.vm.ToValue(v)
		}
		return goja.Null()
	})
	el.Set("setAttribute", func(name, value string) {
		r.dom.SetAttribute(n, name, value)
	})

	r.elements[el] = n
	return el
}

// label maps an optional script label to the session's variadic form
func label(args []goja.Value) []string {
	v := argument(args, 0)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return []string{v.String()}
}

func first(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	return labels[0]
}

func argument(args []goja.Value, i int) goja.Value {
	if i < len(args) {
		return args[i]
	}
	return goja.Undefined()
}

func tail(args []goja.Value, from int) []goja.Value {
	if from >= len(args) {
		return nil
	}
	return args[from:]
}
