// Package logger is the process-wide leveled logger.
//
// Output fans out through slog-multi: human-readable text on stderr and, when a
// log file is configured, JSON lines in that file.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

// Level is a logging threshold. It extends slog with trace, fatal and panic.
type Level = slog.Level

const (
	LevelTrace Level = slog.LevelDebug - 4
	LevelDebug Level = slog.LevelDebug
	LevelInfo  Level = slog.LevelInfo
	LevelWarn  Level = slog.LevelWarn
	LevelError Level = slog.LevelError
	LevelFatal Level = slog.LevelError + 4
	LevelPanic Level = slog.LevelError + 8
)

var (
	level   = new(slog.LevelVar)
	mu      sync.RWMutex
	current = newLogger(os.Stderr, nil)
	closer  io.Closer
)

func newLogger(stderr io.Writer, file io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: replaceLevelName}
	text := slog.NewTextHandler(stderr, opts)
	if file == nil {
		return slog.New(text)
	}
	return slog.New(slogmulti.Fanout(text, slog.NewJSONHandler(file, opts)))
}

func replaceLevelName(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	lvl, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	switch {
	case lvl < LevelDebug:
		a.Value = slog.StringValue("TRACE")
	case lvl >= LevelPanic:
		a.Value = slog.StringValue("PANIC")
	case lvl >= LevelFatal:
		a.Value = slog.StringValue("FATAL")
	}
	return a
}

// ParseLevel converts a flag value into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	case "panic":
		return LevelPanic, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q (want trace, debug, info, warn, error, fatal, panic)", s)
	}
}

// SetLevel changes the threshold of every logger handed out by this package.
func SetLevel(l Level) {
	level.Set(l)
}

// GetLevel returns the current threshold.
func GetLevel() Level {
	return level.Level()
}

// SetOutput replaces the sinks. file may be nil for stderr-only logging.
func SetOutput(stderr io.Writer, file io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	current = newLogger(stderr, file)
}

// SetFile adds a JSON log file next to stderr output. An empty path keeps
// stderr only. A file that cannot be opened is reported and ignored.
func SetFile(path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		Warn("[LOGGER] failed to open log file %s, using stderr only: %v", path, err)
		return
	}
	SetOutput(os.Stderr, f)
	mu.Lock()
	closer = f
	mu.Unlock()
}

// Close releases the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	current = newLogger(os.Stderr, nil)
	return err
}

// Default returns the structured logger for components that take a *slog.Logger.
func Default() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func logf(l Level, format string, args ...any) {
	lg := Default()
	ctx := context.Background()
	if !lg.Enabled(ctx, l) {
		return
	}
	lg.Log(ctx, l, fmt.Sprintf(format, args...))
}

func Trace(format string, args ...any) { logf(LevelTrace, format, args...) }
func Debug(format string, args ...any) { logf(LevelDebug, format, args...) }
func Info(format string, args ...any)  { logf(LevelInfo, format, args...) }
func Warn(format string, args ...any)  { logf(LevelWarn, format, args...) }
func Error(format string, args ...any) { logf(LevelError, format, args...) }
