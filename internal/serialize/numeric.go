package serialize

import (
	"math"
	"reflect"

	"github.com/soeminnminn/run-js/internal/format"
)

// Sentinels written for the numbers JSON cannot carry
const (
	sentinelInfinity      = 0
	sentinelMinusInfinity = 1
	sentinelMinusZero     = 2
)

type numericTransform struct{}

// Numeric handles +Inf, -Inf and negative zero
func Numeric() Transform { return numericTransform{} }

func (numericTransform) Type() string { return "Arithmetic" }

func (numericTransform) Match(v any) bool {
	rv := reflect.ValueOf(v)
	if k := rv.Kind(); k != reflect.Float32 && k != reflect.Float64 {
		return false
	}
	f := rv.Float()
	return math.IsInf(f, 0) || (f == 0 && math.Signbit(f))
}

func (numericTransform) Encode(v any, _ *Encoder) any {
	f := reflect.ValueOf(v).Float()
	switch {
	case math.IsInf(f, 1):
		return sentinelInfinity
	case math.IsInf(f, -1):
		return sentinelMinusInfinity
	}
	return sentinelMinusZero
}

func (numericTransform) Decode(body any, _ *Decoder) any {
	n, ok := format.ToNumber(body)
	if !ok {
		return body
	}
	switch n {
	case sentinelInfinity:
		return math.Inf(1)
	case sentinelMinusInfinity:
		return math.Inf(-1)
	case sentinelMinusZero:
		return math.Copysign(0, -1)
	}
	return body
}
