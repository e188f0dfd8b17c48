package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions selects level, format and an optional rotated log file.
type LogOptions struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	File   string // empty means stdout only
}

// Logger provides leveled logging throughout the application. Messages keep
// the printf style used across the codebase and are emitted through slog.
type Logger struct {
	s *slog.Logger
}

// NewLogger creates a text Logger writing to stdout at info level.
func NewLogger() *Logger {
	l, _ := NewLoggerWithOptions(LogOptions{})
	return l
}

// NewLoggerWithOptions builds a Logger from LogOptions. When a file is set the
// output goes to both stdout and a lumberjack-rotated file.
func NewLoggerWithOptions(opts LogOptions) (*Logger, error) {
	var out io.Writer = os.Stdout
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("logger: create log dir: %w", err)
		}
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		})
	}
	return NewLoggerTo(out, opts), nil
}

// NewLoggerTo writes to w. Tests use it with io.Discard.
func NewLoggerTo(w io.Writer, opts LogOptions) *Logger {
	hopts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}
	var h slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	return &Logger{s: slog.New(h)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a Logger that adds the given key/value pairs to every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{s: l.s.With(args...)}
}

func (l *Logger) Info(format string, args ...any) {
	l.s.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...any) {
	l.s.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...any) {
	l.s.Error(fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...any) {
	l.s.Debug(fmt.Sprintf(format, args...))
}
