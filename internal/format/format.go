package format

import (
	"go.uber.org/zap"
)

// Formatter renders one substitution for a directive. The returned value is
// handed to the accumulator, so it may be any type the accumulator accepts.
type Formatter func(value any, d *Directive) any

// Directive is the context a Formatter sees while rendering a specifier
type Directive struct {
	Token Token
	next  func() (string, bool)
}

// Next renders the token following this directive and marks it consumed.
// It reports false when the directive is the last token.
func (d *Directive) Next() (string, bool) {
	if d.next == nil {
		return "", false
	}
	return d.next()
}

// Outcome is the result of a formatting pass
type Outcome[T any] struct {
	Formatted T
	Unused    []any
}

// Result is the outcome of a plain string formatting pass
type Result = Outcome[string]

// Option configures a formatting pass
type Option func(*options)

type options struct {
	formatters map[byte]Formatter
	logger     *zap.Logger
}

// WithFormatter adds or replaces the formatter for a directive letter
func WithFormatter(letter byte, fn Formatter) Option {
	return func(o *options) {
		if fn != nil {
			o.formatters[letter] = fn
		}
	}
}

// WithLogger routes formatting diagnostics to logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		formatters: make(map[byte]Formatter, len(defaultFormatters)),
		logger:     zap.NewNop(),
	}
	for letter, fn := range defaultFormatters {
		o.formatters[letter] = fn
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Format substitutes subs into format and returns the text plus the
// substitutions no directive referenced.
func Format(format string, subs []any, opts ...Option) Result {
	return FormatWith(format, subs, "", func(acc string, v any) string {
		return acc + Stringify(v)
	}, opts...)
}

// FormatWith is Format with a caller-supplied accumulator, so a renderer can
// build something other than a flat string (a slice of styled segments, for
// example).
func FormatWith[T any](format string, subs []any, initial T, appendFn func(T, any) T, opts ...Option) Outcome[T] {
	if format == "" || len(subs) == 0 {
		return Outcome[T]{Formatted: appendFn(initial, format), Unused: subs}
	}

	o := newOptions(opts)
	known := func(letter byte) bool {
		_, ok := o.formatters[letter]
		return ok
	}

	tokens := tokenize(format, known, len(subs), func(tok Token) {
		o.logger.Debug("Not enough substitution arguments, directive kept as text",
			zap.String("format", format),
			zap.String("directive", tok.Raw),
			zap.Int("have", len(subs)),
			zap.Int("need", tok.Index+1),
		)
	})

	used := make([]bool, len(subs))
	result := initial

	// apply renders a specifier token; chain controls whether it may
	// consume the token after it.
	var apply func(i int, chain bool, skip *bool) any
	apply = func(i int, chain bool, skip *bool) any {
		tok := tokens[i]
		used[tok.Index] = true
		d := &Directive{Token: tok}
		if chain {
			d.next = func() (string, bool) {
				n := i + 1
				if n >= len(tokens) {
					return "", false
				}
				*skip = true
				if tokens[n].Type == TokenLiteral {
					return tokens[n].Value, true
				}
				return Stringify(apply(n, false, skip)), true
			}
		}
		return o.formatters[tok.Specifier](subs[tok.Index], d)
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.Type == TokenLiteral {
			result = appendFn(result, tok.Value)
			continue
		}

		skip := false
		result = appendFn(result, apply(i, true, &skip))
		if skip {
			i++
		}
	}

	var unused []any
	for i, sub := range subs {
		if !used[i] {
			unused = append(unused, sub)
		}
	}
	if unused == nil {
		unused = []any{}
	}

	return Outcome[T]{Formatted: result, Unused: unused}
}

// Message formats a console argument list the way a renderer replays it: a
// leading string is treated as the format and the rest as substitutions.
func Message(data []any, opts ...Option) Result {
	if len(data) == 0 {
		return Result{Unused: []any{}}
	}
	head, ok := data[0].(string)
	if !ok {
		return Result{Unused: data}
	}
	return Format(head, data[1:], opts...)
}
