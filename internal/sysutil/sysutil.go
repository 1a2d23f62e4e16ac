// Package sysutil holds process-level setup helpers for the global zerolog
// logger.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	gormlogger "gorm.io/gorm/logger"
)

// SetLogLevel configures the global zerolog level.
// Supported values (case-insensitive): debug, info, warn, error, fatal, panic.
// Anything else means info.
func SetLogLevel(lvl string) {
	zerolog.SetGlobalLevel(parseLevel(lvl))
}

func parseLevel(lvl string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
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

// SetupLogger replaces the global logger. JSON lines go to w (stderr when
// nil); pretty switches to a human-readable console writer for local runs.
// Every line carries the service name.
func SetupLogger(w io.Writer, pretty bool, service string) {
	if w == nil {
		w = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Str("service", service).Logger()
}

// GormLogLevel maps the application log level onto GORM's: SQL statements
// are only traced at debug.
func GormLogLevel(lvl string) gormlogger.LogLevel {
	switch parseLevel(lvl) {
	case zerolog.DebugLevel:
		return gormlogger.Info
	case zerolog.InfoLevel, zerolog.WarnLevel:
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}
