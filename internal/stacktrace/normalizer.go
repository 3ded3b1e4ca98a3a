package stacktrace

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// DefaultAllowedClasses are the error classes the fallback walk accepts
var DefaultAllowedClasses = []string{"Error", "ErrorEvent", "DOMException", "PositionError"}

// DefaultMaxDepth bounds the generic caller walk
const DefaultMaxDepth = 10

// Normalizer turns error-like values into frame strings. It holds no per-call
// state and is safe for concurrent use once built.
type Normalizer struct {
	opera    bool
	allowed  []string
	maxDepth int
	capture  CaptureFunc
	logger   *zap.Logger
}

// Option configures a Normalizer
type Option func(*Normalizer)

// WithOpera sets the environment flag that enables the legacy Opera families
func WithOpera(enabled bool) Option {
	return func(n *Normalizer) { n.opera = enabled }
}

// WithAllowedClasses replaces the allow-list consulted before the caller walk
func WithAllowedClasses(classes ...string) Option {
	return func(n *Normalizer) { n.allowed = append([]string(nil), classes...) }
}

// WithMaxDepth bounds the caller walk
func WithMaxDepth(depth int) Option {
	return func(n *Normalizer) {
		if depth > 0 {
			n.maxDepth = depth
		}
	}
}

// WithCapture replaces the function used by Create to snapshot a location
func WithCapture(fn CaptureFunc) Option {
	return func(n *Normalizer) {
		if fn != nil {
			n.capture = fn
		}
	}
}

// WithLogger sets the logger used for extraction diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(n *Normalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// New creates a Normalizer
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		allowed:  DefaultAllowedClasses,
		maxDepth: DefaultMaxDepth,
		capture:  CaptureGo,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Family selects the stack-shape family for e
func (n *Normalizer) Family(e *ErrorValue) Family {
	switch {
	case e.HasArguments && e.Stack != "":
		return FamilyStructured
	case e.Stack != "" && e.SourceURL != "":
		return FamilySafari
	case e.Stack != "" && e.Number != 0:
		return FamilyIE
	case n.opera:
		return operaFamily(e)
	case e.Stack != "":
		return FamilyFirefox
	}
	return FamilyOther
}

func operaFamily(e *ErrorValue) Family {
	if e.Stacktrace == "" {
		return FamilyOpera9
	}
	if strings.Contains(e.Message, "\n") &&
		strings.Count(e.Message, "\n") > strings.Count(e.Stacktrace, "\n") {
		return FamilyOpera9
	}
	if e.Stack == "" {
		return FamilyOpera10a
	}
	if !strings.Contains(e.Stacktrace, "called from line") {
		return FamilyOpera10b
	}
	return FamilyOpera11
}

// Get returns the normalized frames of e. It never panics: a value the
// normalizer cannot handle yields a single diagnostic string.
func (n *Normalizer) Get(e *ErrorValue) (frames []string) {
	if e == nil {
		return []string{}
	}

	defer func() {
		if r := recover(); r != nil {
			n.logger.Warn("Stack extraction failed", zap.Any("panic", r))
			frames = []string{fmt.Sprintf("stack extraction failed: %v", r)}
		}
	}()

	family := n.Family(e)
	if format, ok := formatters[family]; ok {
		return cleanFrames(format(e))
	}

	class := e.class()
	if !n.isAllowed(class) {
		n.logger.Debug("Error class not allowed for stack lookup", zap.String("class", class))
		return []string{fmt.Sprintf("%s is missing from the stack lookup allow-list [%s]",
			class, strings.Join(n.allowed, ","))}
	}

	return walkCallers(e.Callee, n.maxDepth)
}

// Create snapshots the current call location. The "Error: " prefix is
// removed from the captured stack so it reads as a plain frame list.
func (n *Normalizer) Create(message string) *ErrorValue {
	e := n.capture(message)
	if e == nil {
		return &ErrorValue{Class: "Error", Name: "Error", Message: message}
	}
	e.Stack = strings.Replace(e.Stack, "Error: ", "", 1)
	return e
}

func (n *Normalizer) isAllowed(class string) bool {
	for _, c := range n.allowed {
		if c == class {
			return true
		}
	}
	return false
}

func cleanFrames(lines []string) []string {
	frames := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			frames = append(frames, line)
		}
	}
	return frames
}
