// Package logger builds the zerolog loggers used across tasksched.
package logger

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ParseLevel maps a level name to a zerolog level. Unknown names fall back to info.
func ParseLevel(levelStr string) zerolog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New creates a logger writing to outW. Format "json" emits JSON lines; any
// other value uses the human-readable console writer.
func New(levelStr, formatStr string, outW io.Writer) zerolog.Logger {
	w := outW
	if formatStr != "json" {
		w = zerolog.ConsoleWriter{Out: outW, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).
		Level(ParseLevel(levelStr)).
		With().
		Timestamp().
		Logger()
}
