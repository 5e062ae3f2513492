package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/xeptore/tdl/config"
	"github.com/xeptore/tdl/constants"
)

func FromConfig(conf config.Log) zerolog.Logger {
	level, err := zerolog.ParseLevel(conf.Level)
	if nil != err {
		panic("invalid logging level: " + conf.Level)
	}

	switch strings.ToLower(conf.Format) {
	case "json":
		return newLogger(os.Stderr, level)
	case "pretty":
		return newLogger(consoleWriter(os.Stderr), level)
	default:
		panic("invalid logging format: " + conf.Format)
	}
}

// NewDefault is used before the config is loaded. It writes pretty output to terminals and JSON otherwise.
func NewDefault() zerolog.Logger {
	var out io.Writer = os.Stderr
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		out = consoleWriter(os.Stderr)
	}

	return newLogger(out, zerolog.InfoLevel)
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{ //nolint:exhaustruct
		Out:          w,
		TimeFormat:   time.RFC3339,
		TimeLocation: time.UTC,
	}
}

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.
		New(w).
		Hook(&stackHook{}).
		With().
		Timestamp().
		Str("version", constants.Version).
		Str("compile_time", constants.CompileTime).
		Logger().
		Level(level)
}
