package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

var once sync.Once

// Init installs the process-wide logger on stdout.
// Only the first call has an effect.
func Init(verbose bool) {
	once.Do(func() {
		slog.SetDefault(New(os.Stdout, verbose))
	})
}

// New creates a logger writing to out with millisecond UTC timestamps.
// Debug records are dropped unless verbose is set.
func New(out io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(tint.NewHandler(out, &tint.Options{
		Level:       level,
		ReplaceAttr: replaceAttr,
	}))
}

// replaceAttr renders timestamps as RFC3339 with milliseconds and drops empty strings.
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		a.Value = slog.StringValue(formatMillis(a.Value.Time()))
	}

	if a.Value.Kind() == slog.KindString && a.Value.String() == "" {
		return slog.Attr{}
	}

	return a
}

// formatMillis formats t as 2006-01-02T15:04:05.000Z.
func formatMillis(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s.%03dZ", t.Format("2006-01-02T15:04:05"), t.Nanosecond()/1_000_000)
}

// Info logs at INFO level.
func Info(msg string, args ...any) {
	slog.Info(msg, args...)
}

// Debug logs at DEBUG level.
func Debug(msg string, args ...any) {
	slog.Debug(msg, args...)
}

// Warn logs at WARN level.
func Warn(msg string, args ...any) {
	slog.Warn(msg, args...)
}

// Error logs at ERROR level.
func Error(msg string, args ...any) {
	slog.Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return slog.Default().With(args...)
}

// Timed returns elapsed time since start for logging duration.
func Timed(start time.Time) slog.Attr {
	return slog.Duration("elapsed", time.Since(start))
}
