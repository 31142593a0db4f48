package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// ParseLogLevel converts a case-insensitive string to a zerolog level.
// Accepted values are trace, debug, info (or empty), warn (or warning)
// and error.
func ParseLogLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "trace":
		return zerolog.TraceLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
	}
}

// NewLogger builds the process logger writing to w.
func (c *Config) NewLogger(w io.Writer) zerolog.Logger {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	out := w
	if c.LogFormat != "json" {
		out = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
