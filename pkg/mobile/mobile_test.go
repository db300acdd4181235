package mobile

import (
	"encoding/json"
	"math"
	"path/filepath"
	"testing"
)

const sampleRows = `[
	{"date": "2024-01-02", "symbol": "AAPL", "action": "buy", "shares": 10, "price": 100, "currency": "USD"},
	{"date": "2024-02-01", "symbol": "AAPL", "action": "sell", "shares": 4, "price": 130, "fees": 2, "currency": "USD"}
]`

func setupMobileCore(t *testing.T) *Core {
	t.Helper()
	core, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = core.Close() })
	return core
}

func TestMobileCoreJSONFlows(t *testing.T) {
	core := setupMobileCore(t)

	resp, err := core.ImportRowsJSON("app", sampleRows)
	if err != nil {
		t.Fatalf("ImportRowsJSON: %v", err)
	}
	var imported struct {
		BatchID  string `json:"batch_id"`
		Imported int    `json:"imported"`
	}
	if err := json.Unmarshal([]byte(resp), &imported); err != nil {
		t.Fatalf("unmarshal import response: %v", err)
	}
	if imported.BatchID == "" || imported.Imported != 2 {
		t.Fatalf("unexpected import response: %s", resp)
	}

	resp, err = core.RealizedReportJSON()
	if err != nil {
		t.Fatalf("RealizedReportJSON: %v", err)
	}
	var realized struct {
		TotalsByCcy map[string]struct {
			PnL float64 `json:"pnl"`
		} `json:"totals_by_ccy"`
	}
	if err := json.Unmarshal([]byte(resp), &realized); err != nil {
		t.Fatalf("unmarshal realized: %v", err)
	}
	if got := realized.TotalsByCcy["USD"].PnL; math.Abs(got-118) > 1e-9 {
		t.Fatalf("expected realized pnl 118, got %v", got)
	}

	if err := core.ManualUpdatePrice("AAPL", "USD", 150); err != nil {
		t.Fatalf("ManualUpdatePrice: %v", err)
	}
	resp, err = core.UnrealizedReportJSON()
	if err != nil {
		t.Fatalf("UnrealizedReportJSON: %v", err)
	}
	var unrealized struct {
		Incomplete bool `json:"incomplete"`
		Rows       []struct {
			MarketValue float64 `json:"market_value"`
		} `json:"rows"`
	}
	if err := json.Unmarshal([]byte(resp), &unrealized); err != nil {
		t.Fatalf("unmarshal unrealized: %v", err)
	}
	if unrealized.Incomplete || len(unrealized.Rows) != 1 || math.Abs(unrealized.Rows[0].MarketValue-900) > 1e-9 {
		t.Fatalf("unexpected unrealized report: %s", resp)
	}

	if _, err := core.TakeSnapshotJSON("2024-03-01"); err != nil {
		t.Fatalf("TakeSnapshotJSON: %v", err)
	}
	if _, err := core.ReturnsReportJSON("2024-03-01"); err != nil {
		t.Fatalf("ReturnsReportJSON: %v", err)
	}
	if _, err := core.ReturnsReportJSON("yesterday"); err == nil {
		t.Fatalf("expected invalid date error")
	}

	if err := core.DeleteBatch(imported.BatchID); err != nil {
		t.Fatalf("DeleteBatch: %v", err)
	}
	resp, err = core.RealizedReportJSON()
	if err != nil {
		t.Fatalf("RealizedReportJSON after delete: %v", err)
	}
	var afterDelete struct {
		TotalsByCcy map[string]any `json:"totals_by_ccy"`
	}
	if err := json.Unmarshal([]byte(resp), &afterDelete); err != nil {
		t.Fatalf("unmarshal realized: %v", err)
	}
	if len(afterDelete.TotalsByCcy) != 0 {
		t.Fatalf("expected empty totals after delete, got %s", resp)
	}
}

func TestImportRowsJSONInvalid(t *testing.T) {
	core := setupMobileCore(t)
	if _, err := core.ImportRowsJSON("app", "{bad json"); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
	if _, err := core.ImportRowsJSON("app", "[]"); err == nil {
		t.Fatalf("expected error for empty rows")
	}
}

func TestStatelessComputations(t *testing.T) {
	resp, err := ComputeRealizedPnLJSON(sampleRows)
	if err != nil {
		t.Fatalf("ComputeRealizedPnLJSON: %v", err)
	}
	var realized struct {
		ByInstrument []struct {
			PnL float64 `json:"pnl"`
		} `json:"by_instrument"`
	}
	if err := json.Unmarshal([]byte(resp), &realized); err != nil {
		t.Fatalf("unmarshal realized: %v", err)
	}
	if len(realized.ByInstrument) != 1 || math.Abs(realized.ByInstrument[0].PnL-118) > 1e-9 {
		t.Fatalf("unexpected realized: %s", resp)
	}

	resp, err = ComputeUnrealizedPnLJSON(sampleRows, `{"aapl": {"last_price": 120}}`)
	if err != nil {
		t.Fatalf("ComputeUnrealizedPnLJSON: %v", err)
	}
	var unrealized struct {
		Rows []struct {
			PnL float64 `json:"pnl"`
		} `json:"rows"`
	}
	if err := json.Unmarshal([]byte(resp), &unrealized); err != nil {
		t.Fatalf("unmarshal unrealized: %v", err)
	}
	if len(unrealized.Rows) != 1 || math.Abs(unrealized.Rows[0].PnL-120) > 1e-9 {
		t.Fatalf("unexpected unrealized: %s", resp)
	}
	if _, err := ComputeUnrealizedPnLJSON(sampleRows, "nope"); err == nil {
		t.Fatalf("expected error for invalid prices")
	}
}

func TestMetricJSON(t *testing.T) {
	resp, err := ComputeTWRJSON(`[{"starting": 100, "flows": 0, "ending": 110}, {"starting": 110, "flows": 0, "ending": 121}]`)
	if err != nil {
		t.Fatalf("ComputeTWRJSON: %v", err)
	}
	var twr float64
	if err := json.Unmarshal([]byte(resp), &twr); err != nil {
		t.Fatalf("unmarshal twr: %v", err)
	}
	if math.Abs(twr-0.21) > 1e-9 {
		t.Fatalf("expected twr 0.21, got %v", twr)
	}

	resp, err = ComputeTWRJSON(`[]`)
	if err != nil {
		t.Fatalf("ComputeTWRJSON empty: %v", err)
	}
	if resp != "null" {
		t.Fatalf("expected null for no periods, got %s", resp)
	}

	resp, err = XIRRJSON(`[{"date": "2023-01-01", "amount": -1000}, {"date": "2024-01-01", "amount": 1100}]`)
	if err != nil {
		t.Fatalf("XIRRJSON: %v", err)
	}
	var rate float64
	if err := json.Unmarshal([]byte(resp), &rate); err != nil {
		t.Fatalf("unmarshal xirr: %v", err)
	}
	if math.Abs(rate-0.1) > 1e-4 {
		t.Fatalf("expected xirr near 0.10, got %v", rate)
	}

	if _, err := XIRRJSON(`[{"date": "someday", "amount": 1}]`); err == nil {
		t.Fatalf("expected error for invalid date")
	}
}
