// Package logging configures fastsync's structured logger. Every log line
// goes to stderr, never stdout: in --server mode, stdout carries the
// framed wire protocol, and anything else written there would corrupt the
// stream from the client's perspective.
package logging

import (
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger writing to stderr at the given level, tagged
// with a fresh run_id so log lines from concurrent workers in the same
// invocation can be correlated.
func New(verbose, quiet bool) zerolog.Logger {
	level := zerolog.InfoLevel
	switch {
	case quiet:
		level = zerolog.ErrorLevel
	case verbose:
		level = zerolog.DebugLevel
	}

	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Str("run_id", uuid.NewString()).
		Logger()
}
