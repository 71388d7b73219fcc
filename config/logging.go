package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ParseLogLevel accepts zerolog level names; "" means info.
func ParseLogLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", level)
	}
	return l, nil
}

// NewLogger returns a timestamped logger writing to w, human readable for
// format "console" and JSON otherwise.
func NewLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	l, err := ParseLogLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}

	out := w
	if !strings.EqualFold(format, "json") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(l).With().Timestamp().Logger(), nil
}
