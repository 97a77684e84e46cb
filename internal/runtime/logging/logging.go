package logging

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
)

// LogFields represents structured logging key/value pairs.
type LogFields map[string]any

// ServiceLogger is the minimal logging contract used by the reporter and the
// stream runtime. It maps directly onto Watermill's logging needs so callers
// can adapt their existing loggers without depending on slog.
type ServiceLogger interface {
	With(fields LogFields) ServiceLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
	Trace(msg string, fields LogFields)
}

var logLevelMapping = map[slog.Level]slog.Level{
	slog.LevelDebug: slog.LevelDebug,
	slog.LevelInfo:  slog.LevelInfo,
	slog.LevelWarn:  slog.LevelWarn,
	slog.LevelError: slog.LevelError,
}

// NewSlogServiceLogger wraps a slog.Logger so it satisfies ServiceLogger.
func NewSlogServiceLogger(log *slog.Logger) ServiceLogger {
	if log == nil {
		panic("stagestats: slog logger cannot be nil")
	}
	return NewWatermillServiceLogger(watermill.NewSlogLoggerWithLevelMapping(log, logLevelMapping))
}

// NewWatermillServiceLogger wraps an existing Watermill LoggerAdapter.
func NewWatermillServiceLogger(logger watermill.LoggerAdapter) ServiceLogger {
	if logger == nil {
		panic("stagestats: watermill logger cannot be nil")
	}
	return &watermillServiceLogger{inner: logger}
}

// NewNopServiceLogger returns a logger that discards everything.
func NewNopServiceLogger() ServiceLogger {
	return &watermillServiceLogger{inner: watermill.NopLogger{}}
}

// OrNop returns log, or a discarding logger when log is nil.
func OrNop(log ServiceLogger) ServiceLogger {
	if log == nil {
		return NewNopServiceLogger()
	}
	return log
}

type watermillServiceLogger struct {
	inner watermill.LoggerAdapter
}

func (w *watermillServiceLogger) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return w
	}
	return &watermillServiceLogger{inner: w.inner.With(toWatermillFields(fields))}
}

func (w *watermillServiceLogger) Debug(msg string, fields LogFields) {
	w.inner.Debug(msg, toWatermillFields(fields))
}

func (w *watermillServiceLogger) Info(msg string, fields LogFields) {
	w.inner.Info(msg, toWatermillFields(fields))
}

func (w *watermillServiceLogger) Error(msg string, err error, fields LogFields) {
	w.inner.Error(msg, err, toWatermillFields(fields))
}

func (w *watermillServiceLogger) Trace(msg string, fields LogFields) {
	w.inner.Trace(msg, toWatermillFields(fields))
}

// NewWatermillAdapter exposes a ServiceLogger as a Watermill LoggerAdapter,
// the form the stream runtime logs through. Loggers built from a Watermill
// adapter are unwrapped rather than layered. A nil logger discards.
func NewWatermillAdapter(log ServiceLogger) watermill.LoggerAdapter {
	switch l := log.(type) {
	case nil:
		return watermill.NopLogger{}
	case *watermillServiceLogger:
		return l.inner
	default:
		return runtimeLogger{log: l}
	}
}

type runtimeLogger struct {
	log ServiceLogger
}

func (r runtimeLogger) Error(msg string, err error, fields watermill.LogFields) {
	r.log.Error(msg, err, fromWatermillFields(fields))
}

func (r runtimeLogger) Info(msg string, fields watermill.LogFields) {
	r.log.Info(msg, fromWatermillFields(fields))
}

func (r runtimeLogger) Debug(msg string, fields watermill.LogFields) {
	r.log.Debug(msg, fromWatermillFields(fields))
}

func (r runtimeLogger) Trace(msg string, fields watermill.LogFields) {
	r.log.Trace(msg, fromWatermillFields(fields))
}

func (r runtimeLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return NewWatermillAdapter(r.log.With(fromWatermillFields(fields)))
}

// StageFields returns the standard fields identifying a stage in log lines.
func StageFields(name string, path []int) LogFields {
	return LogFields{
		"stage": name,
		"path":  FormatPath(path),
	}
}

// FormatPath renders a stage path as dot-separated indices, e.g. "0.1.0".
func FormatPath(path []int) string {
	parts := make([]string, len(path))
	for i, idx := range path {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, ".")
}

func toWatermillFields(fields LogFields) watermill.LogFields {
	if len(fields) == 0 {
		return nil
	}
	return watermill.LogFields(fields)
}

func fromWatermillFields(fields watermill.LogFields) LogFields {
	if len(fields) == 0 {
		return nil
	}
	return LogFields(fields)
}
