package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"costbasis/pkg/portfolio"
)

// logCapture collects JSON log records.
type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&c.buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func (c *logCapture) records(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(c.buf.Bytes()))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("decode log record %q: %v", scanner.Text(), err)
		}
		out = append(out, rec)
	}
	return out
}

// find returns the first record with msg, failing the test when absent.
func (c *logCapture) find(t *testing.T, msg string) map[string]any {
	t.Helper()
	for _, rec := range c.records(t) {
		if rec["msg"] == msg {
			return rec
		}
	}
	t.Fatalf("no %q record in %s", msg, c.buf.String())
	return nil
}

func routerWithLogger(t *testing.T, logger *slog.Logger) http.Handler {
	t.Helper()
	core, err := portfolio.OpenWithOptions(portfolio.Options{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("open core: %v", err)
	}
	t.Cleanup(func() { _ = core.Close() })
	return NewRouter(core)
}

// useDefaultLogger swaps slog.Default for the duration of the test.
func useDefaultLogger(t *testing.T, logger *slog.Logger) {
	t.Helper()
	old := slog.Default()
	slog.SetDefault(logger)
	t.Cleanup(func() { slog.SetDefault(old) })
}

func TestLevelForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   slog.Level
	}{
		{http.StatusOK, slog.LevelInfo},
		{http.StatusFound, slog.LevelInfo},
		{http.StatusBadRequest, slog.LevelWarn},
		{http.StatusNotFound, slog.LevelWarn},
		{http.StatusInternalServerError, slog.LevelError},
		{http.StatusBadGateway, slog.LevelError},
	}
	for _, tt := range tests {
		if got := levelForStatus(tt.status); got != tt.want {
			t.Errorf("levelForStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestRequestLogFields(t *testing.T) {
	var capture logCapture
	router := routerWithLogger(t, capture.logger())

	req := httptest.NewRequest(http.MethodGet, "/api/health?verbose=1", nil)
	req.Header.Set("User-Agent", "costbasis-test-agent")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rec := capture.find(t, "http request completed")
	want := map[string]any{
		"level":      "INFO",
		"method":     "GET",
		"path":       "/api/health",
		"route":      "/api/health",
		"query":      "verbose=1",
		"status":     float64(200),
		"user_agent": "costbasis-test-agent",
	}
	for key, value := range want {
		if rec[key] != value {
			t.Errorf("%s = %v, want %v", key, rec[key], value)
		}
	}
	if id, _ := rec["request_id"].(string); id == "" {
		t.Errorf("expected a request id, got %v", rec["request_id"])
	}
	if _, ok := rec["duration_ms"]; !ok {
		t.Errorf("expected duration_ms field")
	}
	if _, ok := rec["error_message"]; ok {
		t.Errorf("unexpected error_message on success")
	}
}

func TestRequestLogWarnsOnClientError(t *testing.T) {
	var capture logCapture
	router := routerWithLogger(t, capture.logger())

	rr := doRequest(router, http.MethodPost, "/api/metrics/xirr", map[string]any{
		"cashflows": []map[string]any{{"date": "yesterday", "amount": -100}},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rec := capture.find(t, "http request completed")
	if rec["level"] != "WARN" || rec["status"] != float64(400) {
		t.Fatalf("unexpected record %v", rec)
	}
	if rec["error_message"] != "invalid cashflow date: yesterday" {
		t.Fatalf("unexpected error_message %v", rec["error_message"])
	}
}

func TestPanicIsRecoveredAndLogged(t *testing.T) {
	var capture logCapture
	useDefaultLogger(t, capture.logger())

	// A nil core makes every book handler panic.
	rr := doRequest(NewRouter(nil), http.MethodGet, "/api/pnl/realized", nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if body := rr.Body.String(); body != "{\"error\":\"internal server error\"}\n" {
		t.Fatalf("unexpected body %q", body)
	}

	panicRec := capture.find(t, "panic recovered")
	if panicRec["level"] != "ERROR" || panicRec["route"] != "/api/pnl/realized" {
		t.Fatalf("unexpected panic record %v", panicRec)
	}
	if stack, _ := panicRec["stack"].(string); stack == "" {
		t.Fatalf("expected a stack trace")
	}

	reqRec := capture.find(t, "http request completed")
	if reqRec["level"] != "ERROR" || reqRec["status"] != float64(500) {
		t.Fatalf("unexpected request record %v", reqRec)
	}
	if reqRec["request_id"] != panicRec["request_id"] {
		t.Fatalf("request ids differ: %v vs %v", reqRec["request_id"], panicRec["request_id"])
	}
}

func TestRequestLogsUseCoreLogger(t *testing.T) {
	var coreLogs, defaultLogs logCapture
	router := routerWithLogger(t, coreLogs.logger())
	useDefaultLogger(t, defaultLogs.logger())

	rr := doRequest(router, http.MethodGet, "/api/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	coreLogs.find(t, "http request completed")
	if defaultLogs.buf.Len() != 0 {
		t.Fatalf("expected nothing on slog.Default, got %q", defaultLogs.buf.String())
	}
}
