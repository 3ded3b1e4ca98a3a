package stacktrace

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/soeminnminn/run-js/internal/format"
)

// StringifyArguments renders an argument list for a fallback frame,
// substituting type names for values without a short text form. Arrays of
// three or more elements are abbreviated to their first and last element.
func StringifyArguments(args []any) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = stringifyArgument(arg)
	}
	return strings.Join(parts, ",")
}

func stringifyArgument(arg any) string {
	if arg == nil {
		return "null"
	}

	switch x := arg.(type) {
	case string:
		return `"` + x + `"`
	case bool:
		return strconv.FormatBool(x)
	}
	if n, ok := format.ToNumber(arg); ok {
		return format.Number(n)
	}

	rv := reflect.ValueOf(arg)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return "null"
		}
		if rv.Len() < 3 {
			return "[" + StringifyArguments(elements(rv, 0, rv.Len())) + "]"
		}
		first := StringifyArguments(elements(rv, 0, 1))
		last := StringifyArguments(elements(rv, rv.Len()-1, rv.Len()))
		return "[" + first + "..." + last + "]"
	case reflect.Func:
		return "#function"
	case reflect.Map, reflect.Struct, reflect.Pointer, reflect.Interface:
		return "#object"
	}
	return ""
}

func elements(rv reflect.Value, from, to int) []any {
	out := make([]any, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, rv.Index(i).Interface())
	}
	return out
}
