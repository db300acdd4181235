package costbasis

import (
	"context"
	"fmt"
	"sort"
)

// Quote is the last known price of an instrument.
type Quote struct {
	LastPrice float64 `json:"last_price"`
	CcyPrice  string  `json:"ccy_price"`
}

// PriceSource resolves instrument keys to quotes. Keys without an entry in
// the returned map are unknown.
type PriceSource interface {
	Quotes(ctx context.Context, keys []string) (map[string]Quote, error)
}

// PriceMap is an in-memory PriceSource. Lookups ignore case and surrounding
// whitespace.
type PriceMap map[string]Quote

// Quotes implements PriceSource.
func (m PriceMap) Quotes(_ context.Context, keys []string) (map[string]Quote, error) {
	normalized := make(map[string]Quote, len(m))
	for k, q := range m {
		normalized[NormalizeKey(k)] = q
	}
	out := make(map[string]Quote, len(keys))
	for _, key := range keys {
		if q, ok := normalized[NormalizeKey(key)]; ok {
			out[key] = q
		}
	}
	return out, nil
}

// Position is the open lot snapshot of one instrument after a full replay.
type Position struct {
	InstrumentKey string  `json:"instrument_key"`
	Currency      string  `json:"currency"`
	Quantity      float64 `json:"quantity"`
	TotalCost     float64 `json:"total_cost"`
	AvgCost       float64 `json:"avg_cost"`
	Lots          []Lot   `json:"lots"`
}

// UnrealizedPnLRow values one open position against its last price.
type UnrealizedPnLRow struct {
	InstrumentKey string  `json:"instrument_key"`
	Currency      string  `json:"currency"`
	Quantity      float64 `json:"quantity"`
	AvgCost       float64 `json:"avg_cost"`
	TotalCost     float64 `json:"total_cost"`
	LastPrice     float64 `json:"last_price"`
	MarketValue   float64 `json:"market_value"`
	PnL           float64 `json:"pnl"`
	// Incomplete is set when no usable price was available and LastPrice
	// defaulted to zero.
	Incomplete bool `json:"incomplete"`
}

// OpenPositions replays txs and returns every instrument with residual open
// quantity, sorted by instrument key.
func OpenPositions(txs []Transaction) []Position {
	state := replay(txs, nil)
	positions := make([]Position, 0, len(state.ledgers))
	for key, ledger := range state.ledgers {
		qty := ledger.Quantity()
		if qty <= Epsilon {
			continue
		}
		total := ledger.TotalCost()
		positions = append(positions, Position{
			InstrumentKey: key,
			Currency:      state.currencies[key],
			Quantity:      qty,
			TotalCost:     total,
			AvgCost:       total / qty,
			Lots:          ledger.Lots(),
		})
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].InstrumentKey < positions[j].InstrumentKey
	})
	return positions
}

// PositionKeys returns the instrument keys of positions.
func PositionKeys(positions []Position) []string {
	keys := make([]string, len(positions))
	for i, p := range positions {
		keys[i] = p.InstrumentKey
	}
	return keys
}

// ValuePositions joins positions with quotes. A missing or non-finite quote
// yields LastPrice 0 and Incomplete.
func ValuePositions(positions []Position, quotes map[string]Quote) []UnrealizedPnLRow {
	rows := make([]UnrealizedPnLRow, 0, len(positions))
	for _, p := range positions {
		row := UnrealizedPnLRow{
			InstrumentKey: p.InstrumentKey,
			Currency:      p.Currency,
			Quantity:      p.Quantity,
			AvgCost:       p.AvgCost,
			TotalCost:     p.TotalCost,
		}
		q, ok := quotes[p.InstrumentKey]
		if ok && isFinite(q.LastPrice) {
			row.LastPrice = q.LastPrice
			if q.CcyPrice != "" {
				row.Currency = q.CcyPrice
			}
		} else {
			row.Incomplete = true
		}
		row.MarketValue = row.Quantity * row.LastPrice
		row.PnL = row.Quantity * (row.LastPrice - row.AvgCost)
		rows = append(rows, row)
	}
	return rows
}

// ComputeUnrealizedPnL replays txs, asks src once for the open instruments
// and values them. A nil src means no prices are known. When src fails the
// rows are still returned, all marked incomplete, together with the error.
func ComputeUnrealizedPnL(ctx context.Context, txs []Transaction, src PriceSource) ([]UnrealizedPnLRow, error) {
	positions := OpenPositions(txs)
	if src == nil || len(positions) == 0 {
		return ValuePositions(positions, nil), nil
	}
	quotes, err := src.Quotes(ctx, PositionKeys(positions))
	if err != nil {
		return ValuePositions(positions, nil), fmt.Errorf("resolve quotes: %w", err)
	}
	return ValuePositions(positions, quotes), nil
}
