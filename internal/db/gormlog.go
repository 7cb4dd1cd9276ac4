package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const slowQueryThreshold = 500 * time.Millisecond

// queryLogger routes gorm's statement log into zerolog.
type queryLogger struct {
	log   zerolog.Logger
	level logger.LogLevel
	slow  time.Duration
}

func newQueryLogger(log zerolog.Logger, level logger.LogLevel) *queryLogger {
	return &queryLogger{
		log:   log.With().Str("component", "db").Logger(),
		level: level,
		slow:  slowQueryThreshold,
	}
}

func (l *queryLogger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *queryLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= logger.Info {
		l.log.Info().Msg(fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= logger.Warn {
		l.log.Warn().Msg(fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= logger.Error {
		l.log.Error().Msg(fmt.Sprintf(msg, args...))
	}
}

// Trace logs failed statements at error, slow ones at warn and everything
// else at debug. Missing rows are expected and never logged as errors.
func (l *queryLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)

	switch {
	case err != nil && l.level >= logger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		query, rows := fc()
		l.log.Error().Err(err).Str("sql", query).Int64("rows", rows).Dur("elapsed", elapsed).Msg("query failed")
	case elapsed > l.slow && l.slow > 0 && l.level >= logger.Warn:
		query, rows := fc()
		l.log.Warn().Str("sql", query).Int64("rows", rows).Dur("elapsed", elapsed).Msg("slow query")
	case l.level >= logger.Info:
		query, rows := fc()
		l.log.Debug().Str("sql", query).Int64("rows", rows).Dur("elapsed", elapsed).Msg("query")
	}
}
