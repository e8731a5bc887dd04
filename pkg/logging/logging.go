// Package logging provides the structured, subsystem-tagged logging
// used throughout pipebased. It wraps log/slog the way pipebased's
// ancestor daemon wraps its own logger: a package-level logger,
// filterable by level, with every call site naming the subsystem it
// logs on behalf of.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Level mirrors slog.Level with the vocabulary the daemon's --log-level
// flag accepts ("debug", "info", "warn", "error").
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel accepts the lowercase level names used by the CLI's
// --log-level flag, defaulting to info for anything unrecognized.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

var defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

// Init (re)configures the package logger. Call once at process
// startup; safe to call again in tests.
func Init(level Level, output io.Writer) {
	defaultLogger = slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{
		Level: level.slogLevel(),
	}))
}

func log(level slog.Level, subsystem string, err error, msg string, args ...any) {
	if !defaultLogger.Enabled(context.Background(), level) {
		return
	}
	attrs := []slog.Attr{slog.String("subsystem", subsystem)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	defaultLogger.LogAttrs(context.Background(), level, msg, attrs...)
}

// Debug logs a debug-level message scoped to subsystem.
func Debug(subsystem, msg string, args ...any) { log(slog.LevelDebug, subsystem, nil, msg, args...) }

// Info logs an info-level message scoped to subsystem.
func Info(subsystem, msg string, args ...any) { log(slog.LevelInfo, subsystem, nil, msg, args...) }

// Warn logs a warn-level message scoped to subsystem. Used for
// warn-noops such as pulling an already-registered artifact, removing
// an absent one, or a register/filesystem conflict.
func Warn(subsystem, msg string, args ...any) { log(slog.LevelWarn, subsystem, nil, msg, args...) }

// Error logs an error-level message with an associated error, scoped
// to subsystem.
func Error(subsystem string, err error, msg string, args ...any) {
	log(slog.LevelError, subsystem, err, msg, args...)
}

