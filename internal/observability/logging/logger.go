// Package logging configures the process-wide zerolog logger and derives
// session and component loggers from it.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string // trace, debug, info, warn, error
	Format     string // json, console
	TimeFormat string
	Service    string    // added to every entry when set
	Output     io.Writer // defaults to stdout
}

// New builds a logger from cfg without touching global state. An unknown
// level falls back to info and is reported as an error.
func New(cfg Config) (zerolog.Logger, zerolog.Level, error) {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	var levelErr error
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || cfg.Level == "" {
		if cfg.Level != "" {
			levelErr = fmt.Errorf("unknown log level %q, using info", cfg.Level)
		}
		level = zerolog.InfoLevel
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	return ctx.Logger(), level, levelErr
}

// Init installs the global logger. Session and component loggers created
// afterwards inherit its output, level and service field.
func Init(cfg Config) error {
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	logger, level, err := New(cfg)
	zerolog.SetGlobalLevel(level)
	log.Logger = logger
	return err
}

// WithSession returns a logger carrying the session and participant IDs.
func WithSession(sessionId, participantId string) zerolog.Logger {
	return log.With().
		Str("sessionId", sessionId).
		Str("participantId", participantId).
		Logger()
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}
