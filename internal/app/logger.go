package app

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a configured zerolog.Logger based on configuration.
func NewLogger(cfg *Config) zerolog.Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg *Config, out io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	format := "pretty"
	if cfg != nil {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err == nil && parsed != zerolog.NoLevel {
			level = parsed
		}
		format = cfg.LogFormat
	}
	if format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "facturia").Logger()
}
