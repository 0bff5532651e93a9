package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var (
	log   *slog.Logger
	level = new(slog.LevelVar)
)

func init() {
	if os.Getenv("DEBUG") != "" {
		level.Set(slog.LevelDebug)
	}
	SetOutput(os.Stderr)
}

// SetOutput redirects log output. LOG_FORMAT=json selects the JSON handler.
func SetOutput(w io.Writer) {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	log = slog.New(handler)
}

// SetDebug toggles debug level logging at runtime.
func SetDebug(enabled bool) {
	if enabled {
		level.Set(slog.LevelDebug)
		return
	}
	level.Set(slog.LevelInfo)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	log.Info(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	log.Error(msg, args...)
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	log.Debug(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	log.Warn(msg, args...)
}
