package log

import (
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

const (
	stackSkip  = 5
	stackDepth = 32
)

// stackHook attaches the caller stack to error and higher level events.
type stackHook struct{}

func (h *stackHook) Run(e *zerolog.Event, level zerolog.Level, _ string) {
	if level < zerolog.ErrorLevel || level == zerolog.NoLevel {
		return
	}

	arr := zerolog.Arr()
	for _, f := range callers(stackSkip) {
		arr.Dict(zerolog.Dict().
			Str("function", f.Function).
			Str("file", f.File).
			Int("line", f.Line),
		)
	}
	e.Array("stack", arr)
}

func callers(skip int) []runtime.Frame {
	var pcs [stackDepth]uintptr
	n := runtime.Callers(skip, pcs[:])
	if n == 0 {
		return nil
	}

	var (
		frames = runtime.CallersFrames(pcs[:n])
		out    = make([]runtime.Frame, 0, n)
	)
	for {
		frame, more := frames.Next()
		// zerolog internals are noise in every trace
		if !strings.HasPrefix(frame.Function, "github.com/rs/zerolog") {
			out = append(out, frame)
		}
		if !more {
			break
		}
	}

	return out
}
