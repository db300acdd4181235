package costbasis

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestComputeRealizedPnLRoundTrip(t *testing.T) {
	summary := ComputeRealizedPnL([]Transaction{
		buy("AAPL", 0, 10, 100),
		sell("AAPL", 1, 10, 150),
	})
	if len(summary.ByInstrument) != 1 {
		t.Fatalf("expected 1 row, got %d", len(summary.ByInstrument))
	}
	row := summary.ByInstrument[0]
	assertFloatEquals(t, row.PnL, 500, "pnl")
	assertFloatEquals(t, row.Proceeds, 1500, "proceeds")
	assertFloatEquals(t, row.Cost, 1000, "cost")
	if row.Currency != "USD" || row.InstrumentKey != "AAPL" {
		t.Fatalf("unexpected row identity: %+v", row)
	}
	totals := summary.TotalsByCcy["USD"]
	assertFloatEquals(t, totals.PnL.Float(), 500, "usd pnl total")
	if totals.Sells != 1 {
		t.Fatalf("expected 1 sell, got %d", totals.Sells)
	}
}

func TestComputeRealizedPnLFIFOOrder(t *testing.T) {
	summary := ComputeRealizedPnL([]Transaction{
		buy("X", 0, 10, 100),
		buy("X", 1, 5, 120),
		sell("X", 2, 12, 130),
	})
	assertFloatEquals(t, summary.ByInstrument[0].Cost, 1240, "fifo cost")
}

func TestComputeRealizedPnLSortsByTimestamp(t *testing.T) {
	txs := []Transaction{
		sell("X", 2, 5, 20),
		buy("X", 1, 5, 12),
		buy("X", 0, 5, 10),
	}
	summary := ComputeRealizedPnL(txs)
	if len(summary.ByInstrument) != 1 {
		t.Fatalf("expected 1 row, got %d", len(summary.ByInstrument))
	}
	assertFloatEquals(t, summary.ByInstrument[0].Cost, 50, "oldest lot consumed")
	if txs[0].Action != ActionSell {
		t.Fatalf("input was reordered")
	}
}

func TestComputeRealizedPnLStableTies(t *testing.T) {
	summary := ComputeRealizedPnL([]Transaction{
		buy("X", 0, 1, 10),
		buy("X", 0, 1, 20),
		sell("X", 0, 1, 30),
	})
	assertFloatEquals(t, summary.ByInstrument[0].Cost, 10, "first listed lot consumed")
}

func TestComputeRealizedPnLFees(t *testing.T) {
	b := buy("X", 0, 10, 100)
	b.Fees = 8
	b.Taxes = 2
	s := sell("X", 1, 5, 110)
	s.Fees = 3
	s.Taxes = 1

	row := ComputeRealizedPnL([]Transaction{b, s}).ByInstrument[0]
	// unit cost = 100 + 10/10 = 101
	assertFloatEquals(t, row.Cost, 505, "cost includes buy fees")
	assertFloatEquals(t, row.FeesTaxes, 4, "sell fees and taxes")
	assertFloatEquals(t, row.PnL, 550-505-4, "pnl")
}

func TestComputeRealizedPnLOverSell(t *testing.T) {
	s := sell("X", 1, 10, 20)
	s.Fees = 5
	summary := ComputeRealizedPnL([]Transaction{
		buy("X", 0, 4, 10),
		s,
		sell("Y", 2, 3, 1),
	})
	if len(summary.ByInstrument) != 1 {
		t.Fatalf("expected 1 row, got %d", len(summary.ByInstrument))
	}
	row := summary.ByInstrument[0]
	assertFloatEquals(t, row.Quantity, 4, "clamped quantity")
	assertFloatEquals(t, row.Proceeds, 80, "proceeds on matched qty")
	assertFloatEquals(t, row.FeesTaxes, 5, "fees charged in full")
	assertFloatEquals(t, row.UnmatchedQuantity, 6, "unmatched on row")

	if len(summary.Unmatched) != 2 {
		t.Fatalf("expected 2 unmatched diagnostics, got %+v", summary.Unmatched)
	}
	if summary.Unmatched[1].InstrumentKey != "Y" || summary.Unmatched[1].Unmatched != 3 {
		t.Fatalf("unexpected diagnostic: %+v", summary.Unmatched[1])
	}
}

func TestComputeRealizedPnLSkipsMalformed(t *testing.T) {
	noPrice := sell("X", 1, 5, 0)
	noPrice.Price = nil
	zeroShares := sell("X", 2, 0, 10)
	summary := ComputeRealizedPnL([]Transaction{
		buy("X", 0, 5, 10),
		noPrice,
		zeroShares,
		{InstrumentKey: "X", Action: ActionDividend, Amount: 4, Timestamp: at(3)},
	})
	if len(summary.ByInstrument) != 0 {
		t.Fatalf("expected no rows, got %+v", summary.ByInstrument)
	}
}

func TestComputeRealizedPnLSplitBetweenTrades(t *testing.T) {
	row := ComputeRealizedPnL([]Transaction{
		buy("X", 0, 10, 100),
		split("X", 1, 2),
		sell("X", 2, 20, 60),
	}).ByInstrument[0]
	assertFloatEquals(t, row.Quantity, 20, "post-split qty")
	assertFloatEquals(t, row.Cost, 1000, "cost preserved")
	assertFloatEquals(t, row.PnL, 200, "pnl")
}

func TestComputeRealizedPnLCaseInsensitiveKeys(t *testing.T) {
	summary := ComputeRealizedPnL([]Transaction{
		buy("aapl ", 0, 1, 10),
		sell("AAPL", 1, 1, 15),
	})
	if len(summary.ByInstrument) != 1 || summary.ByInstrument[0].InstrumentKey != "AAPL" {
		t.Fatalf("expected a single AAPL row, got %+v", summary.ByInstrument)
	}
}

func TestComputeRealizedPnLTotalsByCurrency(t *testing.T) {
	eur := buy("SAP", 0, 1, 100)
	eur.QuoteCurrency = "EUR"
	eurSell := sell("SAP", 1, 1, 90)
	eurSell.QuoteCurrency = "EUR"
	summary := ComputeRealizedPnL([]Transaction{
		buy("A", 0, 2, 10), sell("A", 1, 1, 15), sell("A", 2, 1, 20),
		eur, eurSell,
	})
	assertFloatEquals(t, summary.TotalsByCcy["USD"].PnL.Float(), 15, "usd pnl")
	assertFloatEquals(t, summary.TotalsByCcy["EUR"].PnL.Float(), -10, "eur pnl")
	if summary.TotalsByCcy["USD"].Sells != 2 {
		t.Fatalf("expected 2 usd sells")
	}

	byKey := RealizedByInstrument(summary.ByInstrument)
	assertFloatEquals(t, byKey["A"].Proceeds.Float(), 35, "A proceeds")
}

func TestComputeRealizedPnLEmpty(t *testing.T) {
	summary := ComputeRealizedPnL(nil)
	if summary.ByInstrument == nil || summary.TotalsByCcy == nil {
		t.Fatalf("expected non-nil empty collections")
	}
	if len(summary.ByInstrument) != 0 || len(summary.TotalsByCcy) != 0 {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
	data, err := json.Marshal(summary)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"by_instrument":[]`) {
		t.Fatalf("expected empty array in JSON, got %s", data)
	}
}

func TestComputeRealizedPnLNormalizesCurrency(t *testing.T) {
	lower := sell("A", 2, 1, 20)
	lower.QuoteCurrency = " usd"
	summary := ComputeRealizedPnL([]Transaction{
		buy("A", 0, 2, 10), sell("A", 1, 1, 15), lower,
	})
	if len(summary.TotalsByCcy) != 1 {
		t.Fatalf("expected one currency bucket, got %+v", summary.TotalsByCcy)
	}
	if summary.TotalsByCcy["USD"].Sells != 2 || summary.ByInstrument[1].Currency != "USD" {
		t.Fatalf("unexpected totals %+v", summary.TotalsByCcy)
	}
}

func TestCanonicalSignedQuantities(t *testing.T) {
	raw := Transaction{
		InstrumentKey: " aapl",
		Action:        "sell",
		Shares:        -10,
		Price:         Float(120),
		Fees:          -5,
		Taxes:         -1,
		Amount:        -1200,
		QuoteCurrency: "usd",
		Timestamp:     at(1),
	}
	tx := raw.Canonical()
	if tx.InstrumentKey != "AAPL" || tx.Action != ActionSell || tx.QuoteCurrency != "USD" {
		t.Fatalf("unexpected identity fields %+v", tx)
	}
	assertFloatEquals(t, tx.Shares, 10, "shares")
	assertFloatEquals(t, tx.Fees, 5, "fees")
	assertFloatEquals(t, tx.Taxes, 1, "taxes")
	assertFloatEquals(t, tx.Amount, 1200, "amount")

	summary := ComputeRealizedPnL([]Transaction{buy("AAPL", 0, 10, 100), tx})
	if len(summary.ByInstrument) != 1 {
		t.Fatalf("expected the sell to match, got %+v", summary)
	}
	assertFloatEquals(t, summary.ByInstrument[0].PnL, 194, "pnl")
}
