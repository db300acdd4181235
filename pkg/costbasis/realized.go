package costbasis

import "time"

// RealizedPnLRow is emitted once per sell that matched at least one lot.
type RealizedPnLRow struct {
	InstrumentKey string    `json:"instrument_key"`
	Currency      string    `json:"currency"`
	Timestamp     time.Time `json:"timestamp"`
	Quantity      float64   `json:"quantity"`
	Proceeds      float64   `json:"proceeds"`
	Cost          float64   `json:"cost"`
	FeesTaxes     float64   `json:"fees_taxes"`
	PnL           float64   `json:"pnl"`
	// UnmatchedQuantity is the part of the sell that found no open lot.
	UnmatchedQuantity float64 `json:"unmatched_quantity,omitempty"`
}

// Totals aggregates realized rows for one currency.
type Totals struct {
	Proceeds  Amount `json:"proceeds"`
	Cost      Amount `json:"cost"`
	FeesTaxes Amount `json:"fees_taxes"`
	PnL       Amount `json:"pnl"`
	Sells     int    `json:"sells"`
}

func (t Totals) add(row RealizedPnLRow) Totals {
	return Totals{
		Proceeds:  t.Proceeds.Add(NewAmount(row.Proceeds)),
		Cost:      t.Cost.Add(NewAmount(row.Cost)),
		FeesTaxes: t.FeesTaxes.Add(NewAmount(row.FeesTaxes)),
		PnL:       t.PnL.Add(NewAmount(row.PnL)),
		Sells:     t.Sells + 1,
	}
}

// UnmatchedSell records sell quantity that exceeded the open lots.
type UnmatchedSell struct {
	InstrumentKey string    `json:"instrument_key"`
	Timestamp     time.Time `json:"timestamp"`
	Requested     float64   `json:"requested"`
	Unmatched     float64   `json:"unmatched"`
}

// RealizedPnLSummary is the result of ComputeRealizedPnL.
type RealizedPnLSummary struct {
	ByInstrument []RealizedPnLRow  `json:"by_instrument"`
	TotalsByCcy  map[string]Totals `json:"totals_by_ccy"`
	Unmatched    []UnmatchedSell   `json:"unmatched,omitempty"`
}

// ComputeRealizedPnL replays txs and emits one row per matched sell, in
// chronological order. Buy-side fees and taxes are folded into the lot unit
// cost; sell-side fees and taxes are charged in full on the row.
func ComputeRealizedPnL(txs []Transaction) RealizedPnLSummary {
	summary := RealizedPnLSummary{
		ByInstrument: []RealizedPnLRow{},
		TotalsByCcy:  map[string]Totals{},
	}
	replay(txs, func(tx Transaction, c Consumption) {
		if c.UnmatchedQty > 0 {
			summary.Unmatched = append(summary.Unmatched, UnmatchedSell{
				InstrumentKey: tx.InstrumentKey,
				Timestamp:     tx.Timestamp,
				Requested:     tx.Shares,
				Unmatched:     c.UnmatchedQty,
			})
		}
		qtySold := c.MatchedQty(tx.Shares)
		if qtySold <= Epsilon {
			return
		}
		proceeds := *tx.Price * qtySold
		feesTaxes := tx.FeesTaxes()
		row := RealizedPnLRow{
			InstrumentKey:     tx.InstrumentKey,
			Currency:          tx.QuoteCurrency,
			Timestamp:         tx.Timestamp,
			Quantity:          qtySold,
			Proceeds:          proceeds,
			Cost:              c.ConsumedCost,
			FeesTaxes:         feesTaxes,
			PnL:               proceeds - c.ConsumedCost - feesTaxes,
			UnmatchedQuantity: c.UnmatchedQty,
		}
		summary.ByInstrument = append(summary.ByInstrument, row)
		summary.TotalsByCcy[row.Currency] = summary.TotalsByCcy[row.Currency].add(row)
	})
	return summary
}

// RealizedByInstrument sums realized rows per instrument key.
func RealizedByInstrument(rows []RealizedPnLRow) map[string]Totals {
	out := map[string]Totals{}
	for _, row := range rows {
		out[row.InstrumentKey] = out[row.InstrumentKey].add(row)
	}
	return out
}

// RealizedByCurrency sums realized rows per currency.
func RealizedByCurrency(rows []RealizedPnLRow) map[string]Totals {
	out := map[string]Totals{}
	for _, row := range rows {
		out[row.Currency] = out[row.Currency].add(row)
	}
	return out
}
