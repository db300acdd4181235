package logging

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	var console bytes.Buffer
	prev := slog.Default()
	defer slog.SetDefault(prev)

	logger, writer, err := NewLogger(Options{Dir: t.TempDir(), Prefix: "pnl", Level: "warn", Format: "json", Console: &console})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer writer.Close()

	logger.Info("hidden")
	logger.Warn("shown", "key", "AAPL")
	if strings.Contains(console.String(), "hidden") {
		t.Fatalf("info record should be filtered at warn level")
	}
	if !strings.Contains(console.String(), `"msg":"shown"`) {
		t.Fatalf("expected json record, got %q", console.String())
	}

	data, err := os.ReadFile(writer.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"service":"pnl"`) {
		t.Fatalf("expected service attribute in file, got %q", data)
	}
}

func TestNewLoggerEnvOverride(t *testing.T) {
	t.Setenv(envLogLevel, "debug")
	t.Setenv(envLogFormat, "text")
	var console bytes.Buffer
	prev := slog.Default()
	defer slog.SetDefault(prev)

	logger, writer, err := NewLogger(Options{Dir: t.TempDir(), Level: "error", Format: "json", Console: &console})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer writer.Close()

	logger.Debug("detail")
	if !strings.Contains(console.String(), "msg=detail") {
		t.Fatalf("expected text debug record, got %q", console.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"8":       slog.Level(8),
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in, slog.LevelInfo); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
