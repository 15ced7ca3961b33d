// Package logger bootstraps structured logging. Startup and lifecycle events
// go through slog with JSON output; the pipeline hot paths keep the stdlib
// log with component tags, which this package routes onto the same handler.
package logger

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// Init installs a JSON slog handler as the default and points the stdlib
// logger at it, so log.Printf("[component] ...") lines come out structured.
func Init(service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	lg := slog.New(handler).With(slog.String("service", service))
	slog.SetDefault(lg)
	log.SetFlags(0)
	log.SetOutput(slogWriter{lg})
	return lg
}

// ParseLevel maps a LOG_LEVEL string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

type slogWriter struct {
	lg *slog.Logger
}

// Write treats each stdlib log line as an info record. The leading
// "[component]" tag, when present, becomes a structured attribute.
func (w slogWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if strings.HasPrefix(msg, "[") {
		if end := strings.Index(msg, "]"); end > 1 {
			comp := msg[1:end]
			w.lg.Info(strings.TrimSpace(msg[end+1:]), slog.String("component", comp))
			return len(p), nil
		}
	}
	w.lg.Info(msg)
	return len(p), nil
}
