package serialize

import (
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/soeminnminn/run-js/internal/console"
)

// Replicator encodes captured values into JSON-safe envelopes and decodes
// them again using an ordered list of transforms.
//
// Encode is safe for concurrent use. Decode is not: markup elements are
// rebuilt in a scratch document owned by the Replicator.
type Replicator struct {
	transforms []Transform
	byType     map[string]Transform
	sanitizer  *bluemonday.Policy
	onTruncate func(omitted int)
	logger     *zap.Logger
	extra      []Transform
}

// Option configures a Replicator
type Option func(*Replicator)

// WithTransforms registers additional transforms after the built-in ones
func WithTransforms(ts ...Transform) Option {
	return func(r *Replicator) { r.extra = append(r.extra, ts...) }
}

// WithSanitizer cleans decoded markup with policy
func WithSanitizer(policy *bluemonday.Policy) Option {
	return func(r *Replicator) { r.sanitizer = policy }
}

// WithTruncationHook is called with the number of items dropped each time
// a container is truncated.
func WithTruncationHook(fn func(omitted int)) Option {
	return func(r *Replicator) { r.onTruncate = fn }
}

// WithLogger sets the logger for fallback diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(r *Replicator) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Replicator with the built-in transforms registered in
// order: markup, callable, numeric, key-value.
func New(opts ...Option) *Replicator {
	r := &Replicator{
		byType: map[string]Transform{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.AddTransforms(Markup(r.sanitizer, r.logger), Callable(), Numeric(), KeyValue())
	r.AddTransforms(r.extra...)
	r.extra = nil
	return r
}

// AddTransforms appends transforms. A transform whose type is already
// registered is ignored.
func (r *Replicator) AddTransforms(ts ...Transform) {
	for _, t := range ts {
		if t == nil {
			continue
		}
		if _, dup := r.byType[t.Type()]; dup {
			r.logger.Warn("Transform type already registered", zap.String("type", t.Type()))
			continue
		}
		r.transforms = append(r.transforms, t)
		r.byType[t.Type()] = t
	}
}

// Encode converts value into an envelope. Containers with more than limit
// items keep the first limit items and end with a truncation marker; a
// limit of zero or less disables truncation.
func (r *Replicator) Encode(value any, limit int) any {
	return r.encoder(limit).Encode(value)
}

// Decode rebuilds a value from an envelope. Unrecognised nodes pass
// through unchanged.
func (r *Replicator) Decode(envelope any) any {
	return r.decoder().Decode(envelope)
}

// EncodeArgs encodes an argument list. Every argument is kept and one more
// slot is appended: a marker counting the items truncated anywhere in the
// list. DecodeArgs removes it again.
func (r *Replicator) EncodeArgs(args []any, limit int) []any {
	enc := r.encoder(limit)
	out := make([]any, 0, len(args)+1)
	for _, arg := range args {
		out = append(out, enc.Encode(arg))
	}
	return append(out, Marker(enc.Omitted()))
}

// DecodeArgs decodes a list produced by EncodeArgs and strips its trailing
// marker. Decoding a list twice without stripping the marker first would
// count it as an argument.
func (r *Replicator) DecodeArgs(envelope []any) []any {
	if n := len(envelope); n > 0 {
		if _, ok := IsMarker(envelope[n-1]); ok {
			envelope = envelope[:n-1]
		}
	}
	dec := r.decoder()
	out := make([]any, len(envelope))
	for i, item := range envelope {
		out[i] = dec.Decode(item)
	}
	return out
}

// Omitted returns the count carried by the trailing marker of an encoded
// argument list.
func Omitted(envelope []any) int {
	if n := len(envelope); n > 0 {
		if count, ok := IsMarker(envelope[n-1]); ok {
			return count
		}
	}
	return 0
}

// Replicate encodes and decodes args, producing a bounded copy
func (r *Replicator) Replicate(args []any, limit int) []any {
	return r.DecodeArgs(r.EncodeArgs(args, limit))
}

// EncodeEvent returns e with its data encoded by EncodeArgs
func (r *Replicator) EncodeEvent(e console.Event, limit int) console.Event {
	e.Data = r.EncodeArgs(e.Data, limit)
	return e
}

// DecodeEvent reverses EncodeEvent
func (r *Replicator) DecodeEvent(e console.Event) console.Event {
	e.Data = r.DecodeArgs(e.Data)
	return e
}

func (r *Replicator) encoder(limit int) *Encoder {
	return &Encoder{r: r, limit: limit}
}

func (r *Replicator) decoder() *Decoder {
	return &Decoder{r: r}
}
