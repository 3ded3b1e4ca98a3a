package console

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/soeminnminn/run-js/internal/format"
	"github.com/soeminnminn/run-js/internal/stacktrace"
)

// GlobalKey is the state key used when a call carries no label. User labels
// are stored under "KEY-<label>" so they never collide with it.
const GlobalKey = "_GLOBAL_"

// DefaultTraceSkip is the number of frames a synthesized trace drops: the
// capture itself, the session helper and the public method.
const DefaultTraceSkip = 3

// Key returns the state key for label
func Key(label string) string {
	if label == "" {
		return GlobalKey
	}
	return "KEY-" + label
}

// Session reproduces developer-console semantics for one sandbox execution
// and emits every call as an Event. A Session is not safe for concurrent use;
// callers invoke it from the goroutine running the script.
type Session struct {
	sink       Sink
	clock      func() time.Time
	normalizer *stacktrace.Normalizer
	traceSkip  int
	logger     *zap.Logger

	counters map[string]int
	timers   map[string]time.Time
	groups   map[string]uint
	last     string
	profile  string
}

// Option configures a Session
type Option func(*Session)

// WithClock replaces the wall clock used for timestamps and timers
func WithClock(clock func() time.Time) Option {
	return func(s *Session) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithNormalizer sets the stack normalizer used for traces
func WithNormalizer(n *stacktrace.Normalizer) Option {
	return func(s *Session) {
		if n != nil {
			s.normalizer = n
		}
	}
}

// WithTraceSkip sets how many leading frames a synthesized trace drops
func WithTraceSkip(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.traceSkip = n
		}
	}
}

// WithLogger sets the logger for recovered sink failures
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Session writing to sink. A nil sink is the only
// construction failure and is reported as *ConfigurationError.
func New(sink Sink, opts ...Option) (*Session, error) {
	if err := validateSink(sink); err != nil {
		return nil, err
	}

	s := &Session{
		sink:      sink,
		clock:     time.Now,
		traceSkip: DefaultTraceSkip,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.normalizer == nil {
		s.normalizer = stacktrace.New(stacktrace.WithLogger(s.logger))
	}

	s.reset()
	return s, nil
}

func (s *Session) reset() {
	s.counters = map[string]int{}
	s.timers = map[string]time.Time{}
	s.groups = map[string]uint{GlobalKey: 0}
	s.last = GlobalKey
	s.profile = ""
}

// Assert emits an assert event. condition may be a func() bool, which is
// evaluated here; a panic during evaluation fails the assertion and, when
// the panic value is error-like, supplies the trace.
func (s *Session) Assert(condition any, data ...any) {
	ok, thrown := evaluate(condition)
	if ok {
		s.send(Event{Command: KindAssert, Data: data, Method: MethodSuccess})
		return
	}

	var trace []string
	if e, isErr := stacktrace.As(thrown); isErr {
		trace = s.normalizer.Get(e)
	} else {
		trace = s.synthesize()
	}
	s.send(Event{Command: KindAssert, Message: "Assertion failed", Data: data, Method: MethodError, Trace: trace})
}

// Clear resets counters, timers, groups and the active profile
func (s *Session) Clear() {
	s.reset()
	s.send(Event{Command: KindClear})
}

// Count increments the counter for label
func (s *Session) Count(label ...string) {
	l := first(label)
	key := Key(l)
	s.counters[key]++
	s.send(Event{Command: KindCount, Message: fmt.Sprintf("%s: %d", l, s.counters[key])})
}

// CountReset zeroes the counter for label, or every counter when no label
// is given. The event is emitted even when nothing was counted yet.
func (s *Session) CountReset(label ...string) {
	if l := first(label); l == "" {
		for key := range s.counters {
			s.counters[key] = 0
		}
	} else if _, ok := s.counters[Key(l)]; ok {
		s.counters[Key(l)] = 0
	}
	s.send(Event{Command: KindCountReset})
}

func (s *Session) Debug(data ...any) { s.send(Event{Command: KindDebug, Data: data}) }
func (s *Session) Info(data ...any)  { s.send(Event{Command: KindInfo, Data: data}) }
func (s *Session) Log(data ...any)   { s.send(Event{Command: KindLog, Data: data}) }
func (s *Session) Warn(data ...any)  { s.send(Event{Command: KindWarn, Data: data}) }

func (s *Session) Dir(item any)    { s.send(Event{Command: KindDir, Data: []any{item}}) }
func (s *Session) Dirxml(item any) { s.send(Event{Command: KindDirxml, Data: []any{item}}) }

// Error emits an error event. The first error-like value in data is lifted
// out: its message becomes the event message and its stack the trace.
func (s *Session) Error(data ...any) {
	for i, v := range data {
		if !stacktrace.IsErrorLike(v) {
			continue
		}

		rest := make([]any, 0, len(data)-1)
		rest = append(rest, data[:i]...)
		rest = append(rest, data[i+1:]...)

		var message string
		var trace []string
		if e, ok := stacktrace.As(v); ok {
			message, trace = e.Message, s.normalizer.Get(e)
		} else {
			message, trace = v.(error).Error(), s.synthesize()
		}
		s.send(Event{Command: KindError, Message: message, Data: rest, Trace: trace})
		return
	}
	s.send(Event{Command: KindError, Data: data})
}

// Group opens a group for label and makes it the current group
func (s *Session) Group(label ...string) {
	s.open(first(label))
	s.send(Event{Command: KindGroup})
}

// GroupCollapsed is Group with the collapsed flag set
func (s *Session) GroupCollapsed(label ...string) {
	s.open(first(label))
	s.send(Event{Command: KindGroupCollapsed, Collapsed: true})
}

// GroupEnd closes one level of the most recently opened group. Only the
// last group key is remembered, so closing never walks back to an outer
// label.
func (s *Session) GroupEnd() {
	if s.groups[s.last] > 0 {
		s.groups[s.last]--
	}
	s.send(Event{Command: KindGroupEnd})
}

func (s *Session) open(label string) {
	key := Key(label)
	s.groups[key]++
	s.last = key
}

// Profile sets the profile name stamped on later events
func (s *Session) Profile(name string) {
	s.profile = name
	s.send(Event{Command: KindProfile})
}

func (s *Session) ProfileEnd() {
	s.profile = ""
	s.send(Event{Command: KindProfileEnd})
}

// Table emits data unchanged along with the requested columns
func (s *Session) Table(data any, columns ...string) {
	s.send(Event{Command: KindTable, Data: []any{data}, Columns: columns})
}

// Time starts (or restarts) the timer for label
func (s *Session) Time(label ...string) {
	s.timers[Key(first(label))] = s.clock()
	s.send(Event{Command: KindTime})
}

// TimeEnd reports and removes the timer for label. A missing timer yields a
// warn event.
func (s *Session) TimeEnd(label ...string) {
	l := first(label)
	start, ok := s.timers[Key(l)]
	if !ok {
		s.timerMissing(KindTimeEnd, l)
		return
	}
	delete(s.timers, Key(l))
	s.send(Event{Command: KindTimeEnd, Message: timerMessage(l, s.elapsed(start)+" - timer ended")})
}

// TimeLog reports the timer for label without stopping it
func (s *Session) TimeLog(label ...string) {
	l := first(label)
	start, ok := s.timers[Key(l)]
	if !ok {
		s.timerMissing(KindTimeLog, l)
		return
	}
	s.send(Event{Command: KindTimeLog, Message: timerMessage(l, s.elapsed(start))})
}

// TimeStamp emits the current wall clock time
func (s *Session) TimeStamp(label ...string) {
	s.send(Event{Command: KindTimeStamp, Message: timerMessage(first(label), Timestamp(s.clock()))})
}

// Trace emits the caller's stack
func (s *Session) Trace(data ...any) {
	s.send(Event{Command: KindTrace, Data: data, Trace: s.synthesize()})
}

func (s *Session) timerMissing(kind Kind, label string) {
	if label == "" {
		label = "default"
	}
	s.send(Event{Command: kind, Message: fmt.Sprintf("Timer %q doesn't exist.", label), Method: MethodWarn})
}

func (s *Session) elapsed(start time.Time) string {
	return fmt.Sprintf("%dms", s.clock().Sub(start).Milliseconds())
}

func timerMessage(label, message string) string {
	if label == "" {
		return "time: " + message
	}
	return label + ": " + message
}

// synthesize captures the current location and drops the session's own
// frames. It must be called directly from a public method.
func (s *Session) synthesize() []string {
	frames := s.normalizer.Get(s.normalizer.Create(""))
	if len(frames) <= s.traceSkip {
		return []string{}
	}
	return frames[s.traceSkip:]
}

func (s *Session) send(e Event) {
	e.Timestamp = Timestamp(s.clock())
	e.Level = s.groups[s.last]
	e.Profile = s.profile
	e.Data = append(make([]any, 0, len(e.Data)), e.Data...)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Console sink panicked",
				zap.String("command", string(e.Command)),
				zap.Any("panic", r))
		}
	}()
	s.sink.Accept(e)
}

// Snapshot is a copy of a session's state
type Snapshot struct {
	Counters map[string]int
	Timers   map[string]time.Time
	Groups   map[string]uint
	Last     string
	Profile  string
}

// State returns a copy of the session state, keyed by Key(label)
func (s *Session) State() Snapshot {
	snap := Snapshot{
		Counters: make(map[string]int, len(s.counters)),
		Timers:   make(map[string]time.Time, len(s.timers)),
		Groups:   make(map[string]uint, len(s.groups)),
		Last:     s.last,
		Profile:  s.profile,
	}
	for k, v := range s.counters {
		snap.Counters[k] = v
	}
	for k, v := range s.timers {
		snap.Timers[k] = v
	}
	for k, v := range s.groups {
		snap.Groups[k] = v
	}
	return snap
}

func first(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	return labels[0]
}

// evaluate resolves an assert condition. The second result is the value a
// func() bool condition panicked with, if any.
func evaluate(condition any) (ok bool, thrown any) {
	fn, isFunc := condition.(func() bool)
	if !isFunc {
		return Truthy(condition), nil
	}

	defer func() {
		if r := recover(); r != nil {
			ok, thrown = false, r
		}
	}()
	return fn(), nil
}

// Truthy applies script truthiness to a host value: nil, false, zero, NaN
// and the empty string are falsy; everything else is truthy.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	}
	if n, ok := format.ToNumber(v); ok {
		return n != 0 && !math.IsNaN(n)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Func, reflect.Map, reflect.Slice, reflect.Chan:
		return !rv.IsNil()
	}
	return true
}
