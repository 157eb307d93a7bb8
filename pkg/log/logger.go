// Package log provides structured logging for the ducomon dashboard on top of
// log/slog.
//
// The dashboard owns stdout for its tables, so loggers are always given an
// explicit writer (stderr, a log file or io.Discard) instead of defaulting to
// stdout.
package log

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

// Logger is a slog.Logger with the dashboard's scoping and event helpers
type Logger struct {
	*slog.Logger
}

// New returns a logger writing to w. format is "json" or "text" (the
// default); source locations are added at debug level.
func New(service, version, level, format string, w io.Writer) *Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl == slog.LevelDebug}

	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{slog.New(handler).With("service", service, "version", version)}
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return &Logger{slog.New(slog.DiscardHandler)}
}

// ParseLevel maps a level name to a slog level. Unknown names mean warn.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func (l *Logger) WithFields(fields ...any) *Logger { return &Logger{l.With(fields...)} }

func (l *Logger) WithComponent(component string) *Logger { return l.WithFields("component", component) }

// WithUser scopes the logger to the monitored account
func (l *Logger) WithUser(username string) *Logger { return l.WithFields("username", username) }

// WithCycle scopes the logger to one poll cycle
func (l *Logger) WithCycle(cycleID string) *Logger { return l.WithFields("cycle_id", cycleID) }

// WithError attaches err under "error". A *errors.ServiceError expands into
// its type, operation and context attributes. A nil err returns l.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithFields(slog.Any("error", err))
}

func (l *Logger) LogDuration(operation string, d time.Duration) {
	l.Debug("operation completed", "operation", operation, "duration_ms", float64(d.Microseconds())/1e3)
}

// LogCycle records one rendered poll cycle
func (l *Logger) LogCycle(miners int, totalHashrate int64, balance, dailyRate float64) {
	l.Info("cycle rendered",
		"miners", miners,
		"total_hashrate", totalHashrate,
		"balance", balance,
		"daily_rate", dailyRate,
	)
}

// LogFetchFailure records a failed cycle and the wait before the next one
func (l *Logger) LogFetchFailure(err error, retryIn time.Duration) {
	l.Warn("fetch failed", slog.Any("error", err), slog.Duration("retry_in", retryIn))
}

// LogExport records a best-effort export failure
func (l *Logger) LogExport(sink string, err error) {
	l.Warn("snapshot export failed", "sink", sink, slog.Any("error", err))
}
