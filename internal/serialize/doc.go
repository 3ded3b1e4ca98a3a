// Package serialize turns captured console values into bounded, JSON-safe
// envelopes and back.
//
// Plain values map directly onto JSON. Values that do not are handled by
// transforms, tried in order, which wrap their output in a tagged node:
//
//	{"@t": "Function", "data": {"name": "f", "body": "return 1", "proto": "Function"}}
//
// The built-in transforms cover markup elements, callables, non-finite
// numbers and negative zero, and maps with non-string keys. Decoded
// callables and markup are display forms only: a *Function cannot be called
// and a decoded *html.Node never runs its scripts.
//
// Containers longer than the limit are cut and end with a marker string,
// "__console_feed_remaining__<n>", where n is the number of items dropped.
// A container that contains itself is written as {"@r": depth}, the index of
// the enclosing container on the path from the root. User keys starting
// with '@' or '#' are escaped with a '#' prefix.
package serialize
