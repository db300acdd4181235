package portfolio

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"costbasis/pkg/costbasis"
)

// mockHTTPClient implements HTTPDoer for testing.
type mockHTTPClient struct {
	mu     sync.Mutex
	status int
	body   string
	calls  int
	urls   []string
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.urls = append(m.urls, req.URL.String())
	return &http.Response{
		StatusCode: m.status,
		Body:       io.NopCloser(strings.NewReader(m.body)),
		Header:     make(http.Header),
	}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestDB opens a Core on a temporary database.
func setupTestDB(t *testing.T) *Core {
	t.Helper()
	return setupTestDBWithClient(t, &mockHTTPClient{status: http.StatusNotFound})
}

func setupTestDBWithClient(t *testing.T, client HTTPDoer) *Core {
	t.Helper()
	core, err := OpenWithOptions(Options{
		DBPath:                 filepath.Join(t.TempDir(), "test.db"),
		Logger:                 quietLogger(),
		HTTPClient:             client,
		PriceRequestsPerSecond: 1000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close() })
	return core
}

func sampleRows() []costbasis.Row {
	return []costbasis.Row{
		{"Date": "2024-01-02", "Symbol": "AAPL", "Action": "Buy", "Shares": "10", "Price": "100", "Currency": "USD"},
		{"Date": "2024-01-03", "Symbol": "AAPL", "Action": "Buy", "Shares": "5", "Price": "120", "Currency": "USD"},
		{"Date": "2024-02-01", "Symbol": "AAPL", "Action": "Sell", "Shares": "12", "Price": "130", "Fees": "2", "Currency": "USD"},
		{"Date": "2024-01-05", "Symbol": "SAP", "Action": "Buy", "Shares": "4", "Price": "150", "Currency": "EUR"},
		{"Date": "2024-01-06", "Action": "Deposit", "Amount": "1000"},
	}
}

func importSample(t *testing.T, core *Core) *ImportResult {
	t.Helper()
	res, err := core.ImportRows(context.Background(), "broker.csv", sampleRows())
	require.NoError(t, err)
	return res
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}
