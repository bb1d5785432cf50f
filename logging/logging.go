// Package logging builds the zerolog loggers used by the command line tool
package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing to w at the named level. Format is either
// "json" for one object per line or "console" for human readable output.
func New(level, format string, w io.Writer) (zerolog.Logger, error) {

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}

	switch format {
	case "json":
	case "console", "":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", format)
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// ForSequence returns a child logger tagging every entry with the sequence
// name
func ForSequence(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("sequence", name).Logger()
}
