// Package logging wires up zerolog the way the sibling services do: one
// process-wide logger built once at startup, console-pretty in development
// and JSON in production, with every call site attaching its own fields.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger from a format ("json" or "console") and level.
func New(format string, level zerolog.Level) zerolog.Logger {
	var w = os.Stdout
	if format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: w}).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// WithCorrelation returns a child logger carrying a correlation_id field,
// used so a single grep reconstructs a message's full lifecycle across
// parsing, transformation, batching and delivery.
func WithCorrelation(l zerolog.Logger, correlationID string) zerolog.Logger {
	return l.With().Str("correlation_id", correlationID).Logger()
}
