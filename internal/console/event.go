package console

import "time"

// Kind identifies the console operation that produced an event
type Kind string

const (
	KindAssert         Kind = "assert"
	KindClear          Kind = "clear"
	KindCount          Kind = "count"
	KindCountReset     Kind = "countReset"
	KindDebug          Kind = "debug"
	KindDir            Kind = "dir"
	KindDirxml         Kind = "dirxml"
	KindError          Kind = "error"
	KindGroup          Kind = "group"
	KindGroupCollapsed Kind = "groupCollapsed"
	KindGroupEnd       Kind = "groupEnd"
	KindInfo           Kind = "info"
	KindLog            Kind = "log"
	KindProfile        Kind = "profile"
	KindProfileEnd     Kind = "profileEnd"
	KindTable          Kind = "table"
	KindTime           Kind = "time"
	KindTimeEnd        Kind = "timeEnd"
	KindTimeLog        Kind = "timeLog"
	KindTimeStamp      Kind = "timeStamp"
	KindTrace          Kind = "trace"
	KindWarn           Kind = "warn"
)

// Kinds lists every kind a session can emit
var Kinds = []Kind{
	KindAssert, KindClear, KindCount, KindCountReset, KindDebug, KindDir,
	KindDirxml, KindError, KindGroup, KindGroupCollapsed, KindGroupEnd,
	KindInfo, KindLog, KindProfile, KindProfileEnd, KindTable, KindTime,
	KindTimeEnd, KindTimeLog, KindTimeStamp, KindTrace, KindWarn,
}

// Method values carried by assert and timer events
const (
	MethodError   = "error"
	MethodSuccess = "success"
	MethodWarn    = "warn"
)

// Event is one captured console call. Events are values: a session never
// touches an event after handing it to the sink.
type Event struct {
	Command   Kind     `json:"command" msgpack:"command"`
	Timestamp string   `json:"timestamp" msgpack:"timestamp"`
	Message   string   `json:"message,omitempty" msgpack:"message,omitempty"`
	Level     uint     `json:"level" msgpack:"level"`
	Profile   string   `json:"profile,omitempty" msgpack:"profile,omitempty"`
	Data      []any    `json:"data" msgpack:"data"`
	Trace     []string `json:"trace,omitempty" msgpack:"trace,omitempty"`
	Columns   []string `json:"columns,omitempty" msgpack:"columns,omitempty"`
	Collapsed bool     `json:"collapsed,omitempty" msgpack:"collapsed,omitempty"`
	Method    string   `json:"method,omitempty" msgpack:"method,omitempty"`
}

// Timestamp renders t as HH:MM:SS.mmm in t's location
func Timestamp(t time.Time) string {
	return t.Format("15:04:05.000")
}
