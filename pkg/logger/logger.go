// Package logger provides structured logging for the service.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const callerSkipFrames = 3 // getCaller -> log -> logging method -> actual caller

// Logger defines the logging interface.
type Logger interface {
	Info(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Fatal(ctx context.Context, msg string, fields ...Field)

	Named(name string) Logger
}

// Field is a key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// Field constructors.
func String(key, val string) Field                 { return Field{Key: key, Value: val} }
func Int(key string, val int) Field                { return Field{Key: key, Value: val} }
func Float64(key string, val float64) Field        { return Field{Key: key, Value: val} }
func Bool(key string, val bool) Field              { return Field{Key: key, Value: val} }
func Duration(key string, val time.Duration) Field { return Field{Key: key, Value: val.String()} }
func Any(key string, val interface{}) Field        { return Field{Key: key, Value: val} }
func Error(err error) Field                        { return Field{Key: "error", Value: err} }

// slogLogger implements Logger on top of log/slog.
type slogLogger struct {
	l *slog.Logger
}

func (l *slogLogger) Named(name string) Logger {
	return &slogLogger{l: l.l.WithGroup(name)}
}

func (l *slogLogger) log(ctx context.Context, level slog.Level, msg string, fields []Field) {
	fields = append(fields, String("source", getCaller()))
	attrs := make([]slog.Attr, len(fields))
	for i, f := range fields {
		attrs[i] = slog.Any(f.Key, f.Value)
	}
	l.l.LogAttrs(ctx, level, msg, attrs...)
}

func (l *slogLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelInfo, msg, fields)
}

func (l *slogLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelError, msg, fields)
}

func (l *slogLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelDebug, msg, fields)
}

func (l *slogLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelWarn, msg, fields)
}

func (l *slogLogger) Fatal(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelError, msg, fields)
	os.Exit(1)
}

var (
	global   Logger
	levelVar slog.LevelVar
)

type initConfig struct {
	out    io.Writer
	format string
	level  string
}

// Option customizes logger initialization.
type Option func(*initConfig)

// WithOutput redirects log output, mainly for tests.
func WithOutput(w io.Writer) Option {
	return func(c *initConfig) { c.out = w }
}

// WithFormat selects the output encoding: "text" or "json".
func WithFormat(format string) Option {
	return func(c *initConfig) { c.format = format }
}

// WithLevel sets the initial log level by name.
func WithLevel(level string) Option {
	return func(c *initConfig) { c.level = level }
}

// Init initializes the global logger.
func Init(opts ...Option) error {
	cfg := initConfig{out: os.Stdout, format: "text", level: "info"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := SetLevelString(cfg.level); err != nil {
		return err
	}
	ho := &slog.HandlerOptions{Level: &levelVar}
	var h slog.Handler
	switch strings.ToLower(cfg.format) {
	case "", "text":
		h = slog.NewTextHandler(cfg.out, ho)
	case "json":
		h = slog.NewJSONHandler(cfg.out, ho)
	default:
		return fmt.Errorf("unknown log format: %s", cfg.format)
	}
	global = &slogLogger{l: slog.New(h)}
	return nil
}

// getCaller returns the caller location as relative/path/file.go:line.
func getCaller() string {
	_, file, line, ok := runtime.Caller(callerSkipFrames)
	if !ok {
		return "unknown:0"
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	relPath, err := filepath.Rel(cwd, file)
	if err != nil {
		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	return fmt.Sprintf("%s:%d", relPath, line)
}

// Get returns the global logger. Init must run first.
func Get() Logger {
	if global == nil {
		panic("logger not initialized; call logger.Init first")
	}
	return global
}

// Named creates a named logger from the global one.
func Named(name string) Logger {
	return Get().Named(name)
}

// SetLevel updates the level of the global handler.
func SetLevel(level slog.Level) { levelVar.Set(level) }

// SetLevelString parses and sets the logging level.
// Accepts: debug, info, warn/warning, error (case-insensitive).
func SetLevelString(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		SetLevel(slog.LevelDebug)
	case "", "info":
		SetLevel(slog.LevelInfo)
	case "warn", "warning":
		SetLevel(slog.LevelWarn)
	case "error":
		SetLevel(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %s", level)
	}
	return nil
}
