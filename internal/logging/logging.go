// Package logging sets up slog for the server and CLI. Records go to the
// console and to a per-day file under the data directory.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

const defaultPrefix = "costbasis"

const (
	envLogLevel  = "COSTBASIS_LOG_LEVEL"
	envLogFormat = "COSTBASIS_LOG_FORMAT"
)

// Options configures NewLogger.
type Options struct {
	Dir           string
	Prefix        string
	Level         string
	Format        string
	RetentionDays int
	// Console receives a copy of every record. Nil means stdout.
	Console io.Writer
}

// NewLogger creates a slog.Logger writing to the console and a daily file
// and installs it as the default logger. COSTBASIS_LOG_LEVEL and
// COSTBASIS_LOG_FORMAT override the options.
func NewLogger(opts Options) (*slog.Logger, *DailyWriter, error) {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	writer, err := NewDailyWriterWithPrefix(opts.Dir, prefix, opts.RetentionDays)
	if err != nil {
		return nil, nil, err
	}
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	multi := io.MultiWriter(console, writer)
	level := ParseLevel(envOr(envLogLevel, opts.Level), slog.LevelInfo)
	handler := newHandler(multi, level, envOr(envLogFormat, opts.Format))
	logger := slog.New(handler).With("service", prefix)
	slog.SetDefault(logger)
	return logger, writer, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// ParseLevel maps a level name or number to a slog.Level.
func ParseLevel(value string, fallback slog.Level) slog.Level {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}

	switch strings.ToLower(value) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		if i, err := strconv.Atoi(value); err == nil {
			return slog.Level(i)
		}
		return fallback
	}
}

func newHandler(w io.Writer, level slog.Level, format string) slog.Handler {
	options := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.NewJSONHandler(w, options)
	}
	return slog.NewTextHandler(w, options)
}
