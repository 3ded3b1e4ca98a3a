package stacktrace

import (
	"runtime"
	"strconv"
	"strings"
)

// CaptureFunc snapshots the current call location as an error-like value
type CaptureFunc func(message string) *ErrorValue

const maxCaptureFrames = 64

// CaptureGo is the default CaptureFunc. It records the Go call stack starting
// at the function that called the CaptureFunc and renders it in the V8 "at"
// shape, so it normalizes through the structured family.
func CaptureGo(message string) *ErrorValue {
	return captureGo(message, 3)
}

// captureGo skips frames counted from runtime.Callers itself.
func captureGo(message string, skip int) *ErrorValue {
	pcs := make([]uintptr, maxCaptureFrames)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	b.WriteString("Error")
	if message != "" {
		b.WriteString(": ")
		b.WriteString(message)
	}
	b.WriteByte('\n')

	for {
		frame, more := frames.Next()
		if frame.Function != "" || frame.File != "" {
			b.WriteString("    at ")
			if fn := shortFuncName(frame.Function); fn != "" {
				b.WriteString(fn)
				b.WriteString(" (")
				writeLocation(&b, frame)
				b.WriteByte(')')
			} else {
				writeLocation(&b, frame)
			}
			b.WriteByte('\n')
		}
		if !more {
			break
		}
	}

	return &ErrorValue{
		Class:        "Error",
		Name:         "Error",
		Message:      message,
		Stack:        b.String(),
		HasArguments: true,
	}
}

func writeLocation(b *strings.Builder, frame runtime.Frame) {
	b.WriteString(frame.File)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(frame.Line))
}

// shortFuncName drops the import path: "github.com/a/b/pkg.(*T).M" becomes
// "pkg.(*T).M".
func shortFuncName(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}
