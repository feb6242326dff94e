// Package logger holds the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"sap-sales-sync/internal/config"

	"github.com/rs/zerolog"
)

const serviceName = "sap-sales-sync"

var log = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init configures the global logger. Production writes JSON lines, every other
// environment gets the human-readable console writer.
func Init(cfg config.LoggerConfig) {
	log = zerolog.New(writerFor(cfg.Environment)).
		Level(parseLogLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", serviceName).
		Caller().
		Logger()
}

func writerFor(environment string) io.Writer {
	if environment == "production" {
		return os.Stdout
	}
	return zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get returns the global logger instance
func Get() *zerolog.Logger {
	return &log
}

func Debug() *zerolog.Event { return log.Debug() }
func Info() *zerolog.Event  { return log.Info() }
func Warn() *zerolog.Event  { return log.Warn() }
func Error() *zerolog.Event { return log.Error() }
func Fatal() *zerolog.Event { return log.Fatal() }

// With creates a child logger context
func With() zerolog.Context {
	return log.With()
}

// ForEntity returns a child logger tagged with the synced entity name.
func ForEntity(entity string) zerolog.Logger {
	return log.With().Str("entity", entity).Logger()
}

// ForSource returns a child logger tagged with a dynamic source / table name.
func ForSource(source string) zerolog.Logger {
	return log.With().Str("source", source).Logger()
}
