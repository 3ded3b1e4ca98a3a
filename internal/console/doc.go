/*
Package console captures developer-console calls as structured events.

A Session holds the state a browser console keeps between calls (counters,
timers, group nesting and the active profile) and turns every call into an
Event that is pushed, synchronously and exactly once, to a Sink. Nothing is
printed; rendering is left to whoever consumes the events.

# State

Labels are namespaced: a call without a label uses GlobalKey and a labelled
call uses "KEY-<label>", so console.count() and console.count("_GLOBAL_")
never share a counter.

Group nesting is tracked per key with a single "last" pointer rather than a
stack. GroupEnd always closes the most recently opened key:

	s.Group("A")  // A=1, last=A
	s.Group("B")  // B=1, last=B
	s.GroupEnd()  // B=0, last=B
	s.GroupEnd()  // B stays 0, A is still 1

# Traces

Trace, Assert and Error without an error value synthesize a trace from the
current location and drop the session's own frames (WithTraceSkip). The
default capture walks the Go stack; script hosts install their own through
stacktrace.WithCapture.

# Errors

New returns *ConfigurationError for an unusable sink. No other method
returns an error or panics: a panicking sink is recovered and logged.
*/
package console
