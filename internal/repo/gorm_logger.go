package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultGormSlowThreshold = 200 * time.Millisecond

// gormZerologLogger routes GORM's query log through zerolog so database
// activity shares the process log stream.
type gormZerologLogger struct {
	log                        zerolog.Logger
	level                      logger.LogLevel
	slowThreshold              time.Duration
	ignoreRecordNotFoundErrors bool
}

// NewGormLogger returns a GORM logger backed by log. Queries are logged at
// debug level only when level is logger.Info; slow queries and failures are
// logged at warn and error.
func NewGormLogger(log zerolog.Logger, level logger.LogLevel) logger.Interface {
	return &gormZerologLogger{
		log:                        log.With().Str("component", "gorm").Logger(),
		level:                      level,
		slowThreshold:              defaultGormSlowThreshold,
		ignoreRecordNotFoundErrors: true,
	}
}

func (l *gormZerologLogger) LogMode(level logger.LogLevel) logger.Interface {
	cloned := *l
	cloned.level = level
	return &cloned
}

func (l *gormZerologLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level < logger.Info {
		return
	}
	l.log.Info().Msg(fmt.Sprintf(msg, args...))
}

func (l *gormZerologLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level < logger.Warn {
		return
	}
	l.log.Warn().Msg(fmt.Sprintf(msg, args...))
}

func (l *gormZerologLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level < logger.Error {
		return
	}
	l.log.Error().Msg(fmt.Sprintf(msg, args...))
}

func (l *gormZerologLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level == logger.Silent {
		return
	}
	elapsed := time.Since(begin)

	switch {
	case l.shouldLogError(err):
		sql, rows := fc()
		l.log.Error().Err(err).Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("query failed")
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= logger.Warn:
		sql, rows := fc()
		l.log.Warn().Dur("elapsed", elapsed).Dur("slow_threshold", l.slowThreshold).
			Int64("rows", rows).Str("sql", sql).Msg("slow query")
	case l.level >= logger.Info:
		sql, rows := fc()
		l.log.Debug().Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("query")
	}
}

func (l *gormZerologLogger) shouldLogError(err error) bool {
	if err == nil || l.level < logger.Error {
		return false
	}
	if l.ignoreRecordNotFoundErrors && errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	return true
}
