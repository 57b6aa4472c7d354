// Package logging provides structured logging for the communications
// core: a process-wide logger, a per-connection transcript, and a
// rate limiter for noisy parse/alarm paths.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

var levelsByName = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// NewLogger builds the process-wide slog.Logger. Levels default to
// "info" and formats default to "json" when level/format are empty or
// unrecognized. When filePath is non-empty, records go to both stdout
// and the file (io.MultiWriter); the returned io.Closer flushes and
// closes that file and must be called on shutdown, and is a no-op
// when filePath was empty. When component is non-empty, every record
// carries it as a "component" attribute, matching the convention
// internal/diagnostics uses for its own logger.
func NewLogger(level, format, filePath, component string) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{Level: resolveLevel(level)}

	w, closer := resolveOutput(filePath)

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	if component != "" {
		logger = logger.With("component", component)
	}
	return logger, closer
}

func resolveLevel(level string) slog.Level {
	if lvl, ok := levelsByName[strings.ToLower(level)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

func resolveOutput(filePath string) (io.Writer, io.Closer) {
	if filePath == "" {
		return os.Stdout, io.NopCloser(nil)
	}
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: could not open log file %q: %v (logging to stdout only)\n", filePath, err)
		return os.Stdout, io.NopCloser(nil)
	}
	return io.MultiWriter(os.Stdout, f), f
}
