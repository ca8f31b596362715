// Package logging builds the structured loggers used by the solver and the
// command line tool.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/natefinch/lumberjack"
)

// Logger wraps slog.Logger with solver-specific helpers so field names stay
// consistent across packages.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler. A nil handler logs text
// to stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewTextLogger creates a Logger writing human-readable lines to w.
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewJSONLogger creates a Logger writing JSON records to w.
func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// NoopLogger discards everything.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(1000)}))
}

// WithIteration tags records with the solver iteration. The Log helpers
// below expect a logger tagged this way.
func (l *Logger) WithIteration(i int) *Logger {
	return &Logger{Logger: l.Logger.With("iteration", i)}
}

// LogIteration logs the outcome of one solver iteration.
func (l *Logger) LogIteration(ctx context.Context, meanShift, maxShift float64, votes int) {
	l.DebugContext(ctx, "iteration completed",
		"mean_shift", meanShift,
		"max_shift", maxShift,
		"votes", votes,
	)
}

// LogFallbacks warns about locally recovered estimation failures.
func (l *Logger) LogFallbacks(ctx context.Context, stage string, count int, first error) {
	if count == 0 {
		return
	}
	l.WarnContext(ctx, "estimation fell back to previous values",
		"stage", stage,
		"count", count,
		"first", first,
	)
}

// LogVisitor reports a failed observer.
func (l *Logger) LogVisitor(ctx context.Context, index int, err error) {
	l.ErrorContext(ctx, "visitor failed",
		"visitor", index,
		"error", err,
	)
}

// ParseLevel parses debug, info, warn or error. The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// FileConfig describes a rotating log file.
type FileConfig struct {
	Filename string
	MaxSize  int // megabytes
	MaxAge   int // days
	Backups  int
}

// Config selects handler format, level and sink.
type Config struct {
	Level  string
	Format string // "text" or "json"
	File   FileConfig
}

// New builds a Logger from cfg. Without a file name records go to stderr.
// The returned closer releases the log file and is never nil.
func New(cfg Config) (*Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var w io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if cfg.File.Filename != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File.Filename,
			MaxSize:    cfg.File.MaxSize,
			MaxAge:     cfg.File.MaxAge,
			MaxBackups: cfg.File.Backups,
		}
		w, closer = lj, lj
	}

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return NewTextLogger(w, level), closer, nil
	case "json":
		return NewJSONLogger(w, level), closer, nil
	}
	closer.Close()
	return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
