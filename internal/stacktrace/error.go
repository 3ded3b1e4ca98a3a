package stacktrace

import (
	"errors"
)

// ErrorValue is an error-like value as seen by the normalizer. Each field
// mirrors a property engines use to distinguish their stack formats; zero
// values mean the property is absent.
type ErrorValue struct {
	Class   string // concrete category, e.g. "Error", "TypeError", "DOMException"
	Name    string
	Message string

	Stack      string // textual stack
	Stacktrace string // legacy Opera stacktrace property

	Arguments    []any
	HasArguments bool

	SourceURL string
	Number    int

	// Callee starts the caller chain walked when no stack text exists.
	Callee *CallSite
}

// Error implements the error interface
func (e *ErrorValue) Error() string {
	name := e.Name
	if name == "" {
		name = e.class()
	}
	if e.Message == "" {
		return name
	}
	return name + ": " + e.Message
}

func (e *ErrorValue) class() string {
	if e.Class == "" {
		return "Error"
	}
	return e.Class
}

// ErrorLike is implemented by host values that can describe themselves as
// an ErrorValue (a wrapped sandbox exception, for example).
type ErrorLike interface {
	StackError() *ErrorValue
}

// CallSite is one link of a caller chain: the textual form of a function, the
// arguments it was invoked with, and the function that called it.
type CallSite struct {
	Source    string
	Arguments []any
	Caller    *CallSite
}

// NewError captures the caller's Go stack, like `new Error(message)` in a
// script engine.
func NewError(message string) *ErrorValue {
	return captureGo(message, 3)
}

// As extracts an ErrorValue from v. It recognises *ErrorValue, ErrorLike and
// wrapped chains of either; plain Go errors are not converted.
func As(v any) (*ErrorValue, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case *ErrorValue:
		return x, x != nil
	case ErrorLike:
		e := x.StackError()
		return e, e != nil
	case error:
		var ev *ErrorValue
		if errors.As(x, &ev) && ev != nil {
			return ev, true
		}
		var el ErrorLike
		if errors.As(x, &el) {
			e := el.StackError()
			return e, e != nil
		}
	}
	return nil, false
}

// IsErrorLike reports whether v should be treated as an error by the console
func IsErrorLike(v any) bool {
	if _, ok := As(v); ok {
		return true
	}
	_, ok := v.(error)
	return ok
}

// FromError adapts err to an ErrorValue. Values that already carry one are
// returned as is; any other error gets the caller's Go stack.
func FromError(err error) *ErrorValue {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	return captureGo(err.Error(), 3)
}
