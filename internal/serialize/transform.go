package serialize

import (
	"strconv"
	"strings"
)

// Transform handles one kind of value that has no lossless JSON form.
// Transforms are consulted in registration order and the first whose Match
// reports true encodes the value.
type Transform interface {
	// Type is the tag written into encoded nodes
	Type() string
	Match(v any) bool
	// Encode returns a JSON-safe body. Nested values go through enc so that
	// limits and cycle detection apply to them.
	Encode(v any, enc *Encoder) any
	// Decode rebuilds a value from a body produced by Encode
	Decode(body any, dec *Decoder) any
}

// MarkerPrefix starts every truncation marker
const MarkerPrefix = "__console_feed_remaining__"

// Marker returns the truncation marker recording n omitted items
func Marker(n int) string {
	return MarkerPrefix + strconv.Itoa(n)
}

// IsMarker reports whether v is a truncation marker and the count it carries
func IsMarker(v any) (int, bool) {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, MarkerPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(s[len(MarkerPrefix):])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

const (
	typeKey = "@t"
	dataKey = "data"
	refKey  = "@r"
	escape  = "#"
)

// escapeKey keeps user keys from being read as node keys or as the
// truncation entry of an object
func escapeKey(k string) string {
	if strings.HasPrefix(k, "@") || strings.HasPrefix(k, escape) || strings.HasPrefix(k, MarkerPrefix) {
		return escape + k
	}
	return k
}

func unescapeKey(k string) string {
	if strings.HasPrefix(k, escape) {
		return k[len(escape):]
	}
	return k
}
