// Package host describes the host application's scripting surface and builds
// the script source sent to it.
package host

import (
	"context"
	"fmt"
	"strings"
)

// EvalScriptFailure is what the panel's evalScript hands back when the script
// throws.
const EvalScriptFailure = "EvalScript error."

// Surface executes script source inside the host and returns its single string
// result. Implementations must not cache host state between calls.
type Surface interface {
	Eval(ctx context.Context, source string) (string, error)
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func(ctx context.Context, source string) (string, error)

func (f SurfaceFunc) Eval(ctx context.Context, source string) (string, error) {
	return f(ctx, source)
}

// EvalError is returned when the host failed to run a script at all.
type EvalError struct {
	Source  string
	Message string
}

func (e *EvalError) Error() string {
	if e == nil {
		return "host script failed"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "host script failed"
	}
	return fmt.Sprintf("%s (script: %s)", msg, e.Source)
}
