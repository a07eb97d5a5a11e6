// Package logging builds the service logger and the HTTP middleware that
// tags requests with an id and writes one access-log line per request.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New constructs a JSON zerolog.Logger on stdout, switching to the console
// writer in development. An unparsable level falls back to info.
func New(development bool, level string) zerolog.Logger {
	return NewWithWriter(os.Stdout, development, level)
}

func NewWithWriter(out io.Writer, development bool, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if development && lvl > zerolog.DebugLevel {
		lvl = zerolog.DebugLevel
	}

	if development {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "avatarstudio").
		Logger()
}
