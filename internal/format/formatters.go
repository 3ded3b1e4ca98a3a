package format

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

var defaultFormatters = map[byte]Formatter{
	's': formatString,
	'd': formatInteger,
	'i': formatInteger,
	'f': formatFloat,
	'c': formatStyle,
}

func formatString(value any, _ *Directive) any {
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}

func formatInteger(value any, _ *Directive) any {
	n, ok := ToNumber(value)
	if !ok {
		return "NaN"
	}
	return math.Floor(n)
}

func formatFloat(value any, _ *Directive) any {
	n, ok := ToNumber(value)
	if !ok {
		return "NaN"
	}
	return n
}

func formatStyle(value any, d *Directive) any {
	next, ok := d.Next()
	if !ok {
		return ""
	}
	return fmt.Sprintf("<span style='%s'>%s</span>", Stringify(value), next)
}

// ToNumber reports the numeric value of any Go integer or float
func ToNumber(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// Number renders f the way JavaScript's String(number) does
func Number(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'g', -1, 64)
		s = strings.Replace(s, "e+0", "e+", 1)
		return strings.Replace(s, "e-0", "e-", 1)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Stringify converts a formatter result into text
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "undefined"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	}
	if n, ok := ToNumber(v); ok {
		return Number(n)
	}
	return fmt.Sprint(v)
}
