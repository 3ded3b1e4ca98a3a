package sandbox

import (
	"errors"
	"time"

	"github.com/soeminnminn/run-js/internal/stacktrace"
)

var (
	ErrPoolClosed  = errors.New("sandbox pool is closed")
	ErrTimeout     = errors.New("sandbox acquisition timeout")
	ErrInterrupted = errors.New("script interrupted")
	ErrClosed      = errors.New("runtime is closed")
)

// ScriptName is the source name compiled programs report in stack frames
const ScriptName = "<eval>"

// Config defines sandbox configuration
type Config struct {
	Timeout          time.Duration // Execution timeout
	MaxCallStackSize int           // goja call stack bound, 0 for unlimited
	EnableDOM        bool          // Expose document when markup is supplied
	AcquireTimeout   time.Duration // Pool wait before ErrTimeout
}

// Result holds execution result
type Result struct {
	Value     any                    // Exported completion value
	Mutations []Mutation             // DOM modifications
	Duration  time.Duration          // Execution time
	Error     *stacktrace.ErrorValue // Uncaught exception, if any
}

// Mutation represents a DOM modification made by the script
type Mutation struct {
	Type   string `json:"type" msgpack:"type"` // set_attribute, set_text
	Target string `json:"target" msgpack:"target"`
	Name   string `json:"name,omitempty" msgpack:"name,omitempty"`
	Value  string `json:"value" msgpack:"value"`
}

// DefaultConfig returns the default runtime configuration
func DefaultConfig() Config {
	return Config{
		Timeout:          5 * time.Second,
		MaxCallStackSize: 1024,
		EnableDOM:        true,
		AcquireTimeout:   5 * time.Second,
	}
}
