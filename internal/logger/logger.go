package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger construction.
type Config struct {
	Level       string // trace|debug|info|warn|error; default info
	Environment string // "development" switches to the console writer
	ServiceName string
	Version     string
}

// Logger wraps zerolog so call sites can pass &log.Logger to middleware.
type Logger struct {
	zerolog.Logger
}

// New builds the service logger. Development gets human-readable console
// output; everything else logs JSON to stdout.
func New(cfg Config) *Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var out = zerolog.New(os.Stdout)
	if cfg.Environment == "development" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	log := out.Level(level).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("version", cfg.Version).
		Logger()

	return &Logger{Logger: log}
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}
