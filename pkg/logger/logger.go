// Package logger provides a simple, structured logging interface.
package logger

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger defines the logging interface.
type Logger interface {
	// Context-aware variants
	Info(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Fatal(ctx context.Context, msg string, fields ...Field)

	Named(name string) Logger
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// Field constructors.
func String(key, val string) Field          { return Field{Key: key, Value: val} }
func Int(key string, val int) Field         { return Field{Key: key, Value: val} }
func Int64(key string, val int64) Field     { return Field{Key: key, Value: val} }
func Float64(key string, val float64) Field { return Field{Key: key, Value: val} }
func Bool(key string, val bool) Field       { return Field{Key: key, Value: val} }
func Any(key string, val interface{}) Field { return Field{Key: key, Value: val} }
func Error(err error) Field                 { return Field{Key: "error", Value: err} }

// zerologLogger implements Logger using zerolog.
type zerologLogger struct {
	l zerolog.Logger
}

func (z *zerologLogger) Named(name string) Logger {
	return &zerologLogger{l: z.l.With().Str("component", name).Logger()}
}

func emit(ev *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		if err, ok := f.Value.(error); ok && f.Key == "error" {
			ev = ev.Err(err)
			continue
		}
		ev = ev.Interface(f.Key, f.Value)
	}
	ev.Msg(msg)
}

func (z *zerologLogger) Info(_ context.Context, msg string, fields ...Field) {
	emit(z.l.Info(), msg, fields)
}

func (z *zerologLogger) Error(_ context.Context, msg string, fields ...Field) {
	emit(z.l.Error(), msg, fields)
}

func (z *zerologLogger) Debug(_ context.Context, msg string, fields ...Field) {
	emit(z.l.Debug(), msg, fields)
}

func (z *zerologLogger) Warn(_ context.Context, msg string, fields ...Field) {
	emit(z.l.Warn(), msg, fields)
}

func (z *zerologLogger) Fatal(_ context.Context, msg string, fields ...Field) {
	emit(z.l.Fatal(), msg, fields)
}

var global Logger

// Init initializes the global logger. Level defaults to info; use
// SetLevelString once configuration is loaded.
func Init() error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	l := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()
	global = &zerologLogger{l: l}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	return nil
}

// Get returns the global logger.
func Get() Logger {
	if global == nil {
		panic("logger not initialized. Call logger.Init() first")
	}
	return global
}

// Named creates a named logger from the global one.
func Named(name string) Logger {
	return Get().Named(name)
}

// SetLevelString parses and sets the global logging level.
// Accepts: debug, info, warn/warning, error (case-insensitive).
func SetLevelString(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "", "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		return fmt.Errorf("unknown log level: %s", level)
	}
	return nil
}

// Sync flushes buffered log entries. zerolog writes synchronously;
// nothing to flush.
func Sync() error {
	return nil
}
