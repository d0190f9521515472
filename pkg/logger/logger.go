// Package logger builds the zerolog loggers every binary and service
// shares. All output is structured JSON unless pretty is set.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing to stdout. pretty switches to the console
// writer for local development.
func New(level string, pretty bool) zerolog.Logger {
	var w io.Writer = os.Stdout
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return NewWithWriter(level, w).With().Caller().Logger()
}

// NewWithWriter returns a logger writing to w. Unknown level strings fall
// back to info rather than erroring: a misconfigured log level should
// never keep a binary from starting.
func NewWithWriter(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
