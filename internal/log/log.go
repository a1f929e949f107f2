// Package log holds the process-wide structured logger for the raspclaws
// commands. Packages take a *slog.Logger through their options; commands
// hand them Component loggers from here.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger writing to w. Debug loggers carry source locations.
func New(w io.Writer, level string, json bool) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// jsonOutput reports whether logs go out as JSON: LOG_FORMAT=json, or
// GO_ENV=production on the robot's service unit.
func jsonOutput() bool {
	if f := os.Getenv("LOG_FORMAT"); f != "" {
		return strings.EqualFold(f, "json")
	}
	return os.Getenv("GO_ENV") == "production"
}

// Init sets the global logger once and makes it the slog default.
func Init(level string) {
	once.Do(func() {
		logger = New(os.Stdout, level, jsonOutput())
		slog.SetDefault(logger)
	})
}

// L returns the global logger, initializing it at info level if needed.
func L() *slog.Logger {
	Init("info")
	return logger
}

func Debug(msg string, args ...any) { L().Debug(msg, args...) }
func Info(msg string, args ...any)  { L().Info(msg, args...) }
func Warn(msg string, args ...any)  { L().Warn(msg, args...) }
func Error(msg string, args ...any) { L().Error(msg, args...) }

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

// Component returns a logger tagged with a component name.
func Component(name string) *slog.Logger {
	return L().With("component", name)
}
