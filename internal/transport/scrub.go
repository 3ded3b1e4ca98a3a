package transport

import (
	"fmt"
	"reflect"

	"github.com/soeminnminn/run-js/internal/console"
)

// Scrub replaces envelope leaves that no wire format can carry (channels,
// complex numbers, values a transform passed through) with their fmt text.
func Scrub(v any) any {
	switch x := v.(type) {
	case nil, bool, string:
		return v
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Scrub(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = Scrub(item)
		}
		return out
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return v
	}
	return fmt.Sprint(v)
}

// ScrubEvent returns e with its data scrubbed
func ScrubEvent(e console.Event) console.Event {
	data := make([]any, len(e.Data))
	for i, item := range e.Data {
		data[i] = Scrub(item)
	}
	e.Data = data
	return e
}
