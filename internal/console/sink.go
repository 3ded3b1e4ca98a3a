package console

import (
	"fmt"
	"reflect"
)

// Sink receives events. Accept is called synchronously once per event and
// must return without blocking; buffering belongs to the sink.
type Sink interface {
	Accept(Event)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(Event)

// Accept calls f(e)
func (f SinkFunc) Accept(e Event) {
	f(e)
}

// ConfigurationError reports an unusable sink passed to New
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("console configuration: %s", e.Reason)
}

func validateSink(sink Sink) error {
	if sink == nil {
		return &ConfigurationError{Reason: "sink is nil"}
	}
	rv := reflect.ValueOf(sink)
	switch rv.Kind() {
	case reflect.Func, reflect.Pointer, reflect.Map, reflect.Chan, reflect.Interface, reflect.Slice:
		if rv.IsNil() {
			return &ConfigurationError{Reason: fmt.Sprintf("sink %T is a nil value", sink)}
		}
	}
	return nil
}
