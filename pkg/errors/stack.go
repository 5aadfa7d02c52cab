package errors

import (
	"fmt"
	"runtime"
	"strings"
)

const maxStackDepth = 32

type stack []uintptr

// callers skips runtime.Callers, callers itself and the reporter frame.
func callers() *stack {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(3, pcs)
	st := stack(pcs[:n])
	return &st
}

// fullStack formats frames as "function file:line", innermost first.
func (s *stack) fullStack() []string {
	frames := runtime.CallersFrames(*s)
	out := make([]string, 0, len(*s))
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			out = append(out, fmt.Sprintf("%s %s:%d", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}
	// reporters index the third frame as the rate limit key
	for len(out) < 3 {
		out = append(out, "unknown")
	}
	return out
}
