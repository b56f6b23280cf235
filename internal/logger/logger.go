// Package logger provides leveled structured logging.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps a config string onto a Level. Unknown values are InfoLevel.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger provides leveled logging.
type Logger struct {
	level  Level
	logger *slog.Logger
}

var defaultLogger *Logger

// Init initializes the default logger with the specified level and format.
func Init(level string, format string) {
	InitWithWriter(os.Stderr, level, format)
}

// InitWithWriter is Init with an explicit destination.
func InitWithWriter(w io.Writer, level string, format string) {
	l := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: l.slogLevel()}

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	defaultLogger = &Logger{
		level:  l,
		logger: slog.New(handler),
	}
}

// Slog exposes the underlying structured logger for callers that want
// key/value attributes. It is a discard logger before Init.
func Slog() *slog.Logger {
	if defaultLogger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return defaultLogger.logger
}

func logf(l Level, format string, args ...interface{}) {
	if defaultLogger == nil || defaultLogger.level > l {
		return
	}
	defaultLogger.logger.Log(context.Background(), l.slogLevel(), fmt.Sprintf(format, args...))
}

func Debug(format string, args ...interface{}) {
	logf(DebugLevel, format, args...)
}

func Info(format string, args ...interface{}) {
	logf(InfoLevel, format, args...)
}

func Warn(format string, args ...interface{}) {
	logf(WarnLevel, format, args...)
}

func Error(format string, args ...interface{}) {
	logf(ErrorLevel, format, args...)
}

func Fatal(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.logger.Log(context.Background(), slog.LevelError+4, fmt.Sprintf(format, args...))
	}
	os.Exit(1)
}
