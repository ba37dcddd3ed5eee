// Package logging provides the structured logger threaded through every
// poi-trace package: a thin wrapper over log/slog that attaches run/span/
// monitor-scoped fields and understands poierrors.PoiError.
package logging

import (
	"context"
	"log/slog"
	"os"

	"github.com/poi-trace/core/pkg/poierrors"
)

// Config selects the logger's level, format, and destination.
type Config struct {
	Level     slog.Level
	Format    string // "json" or "text"
	Output    string // "stdout", "stderr", or a file path
	AddSource bool
}

// DefaultConfig returns a text logger at info level writing to stdout.
func DefaultConfig() *Config {
	return &Config{Level: slog.LevelInfo, Format: "text", Output: "stdout"}
}

// Field is a single structured logging key/value pair.
type Field struct {
	Key   string
	Value interface{}
}

// F is a convenience constructor for Field.
func F(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Logger wraps *slog.Logger with poi-trace's field conventions.
type Logger struct {
	*slog.Logger
	cfg *Config
}

// New creates a Logger from cfg, defaulting to DefaultConfig() when nil.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var output *os.File
	switch cfg.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, poierrors.Environmental("logging", err)
		}
		output = f
	}

	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{Logger: slog.New(handler), cfg: cfg}, nil
}

// Default wraps slog.Default() for packages given no explicit logger.
func Default() *Logger {
	return &Logger{Logger: slog.Default(), cfg: DefaultConfig()}
}

// nilSafe returns Default() when l is nil, so every package can accept an
// optional *Logger without checking for nil at every call site.
func (l *Logger) nilSafe() *Logger {
	if l == nil {
		return Default()
	}
	return l
}

// With returns a child logger with additional fields attached.
func (l *Logger) With(fields ...Field) *Logger {
	l = l.nilSafe()
	args := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	return &Logger{Logger: l.Logger.With(args...), cfg: l.cfg}
}

// WithRun returns a child logger scoped to a trace run.
func (l *Logger) WithRun(runID string) *Logger {
	return l.With(F("runId", runID))
}

// WithSpan returns a child logger scoped to a span within a run.
func (l *Logger) WithSpan(runID, spanID string) *Logger {
	return l.With(F("runId", runID), F("spanId", spanID))
}

// WithMonitor returns a child logger scoped to a safety monitor.
func (l *Logger) WithMonitor(monitorID string) *Logger {
	return l.With(F("monitorId", monitorID))
}

// WithError returns a child logger carrying structured fields extracted
// from a poierrors.PoiError, falling back to the plain error string.
func (l *Logger) WithError(err error) *Logger {
	l = l.nilSafe()
	if err == nil {
		return l
	}
	var pe *poierrors.PoiError
	if asPoiError(err, &pe) {
		return l.With(F("errorCode", string(pe.Code)), F("error", pe.Error()))
	}
	return l.With(F("error", err.Error()))
}

func asPoiError(err error, target **poierrors.PoiError) bool {
	type poiErrorLike interface{ Unwrap() error }
	for err != nil {
		if pe, ok := err.(*poierrors.PoiError); ok {
			*target = pe
			return true
		}
		u, ok := err.(poiErrorLike)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Info/Warn/Error/Debug proxy to slog with nil-safety, so a nil *Logger
// behaves like Default() rather than panicking.

func (l *Logger) Info(msg string, fields ...Field)  { l.nilSafe().log(context.Background(), slog.LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.nilSafe().log(context.Background(), slog.LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.nilSafe().log(context.Background(), slog.LevelError, msg, fields) }
func (l *Logger) Debug(msg string, fields ...Field) { l.nilSafe().log(context.Background(), slog.LevelDebug, msg, fields) }

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, fields []Field) {
	if !l.Logger.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, len(fields))
	for i, f := range fields {
		attrs[i] = slog.Any(f.Key, f.Value)
	}
	l.Logger.LogAttrs(ctx, level, msg, attrs...)
}
