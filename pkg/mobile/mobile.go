// Package mobile exposes the cost basis engine and the book through a
// string-in, string-out API suitable for gomobile bindings.
package mobile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"costbasis/pkg/costbasis"
	"costbasis/pkg/portfolio"
)

// Core wraps the portfolio core for gomobile bindings.
type Core struct {
	core *portfolio.Core
}

// Open initializes the core with a database path.
func Open(dbPath string) (*Core, error) {
	core, err := portfolio.Open(dbPath)
	if err != nil {
		return nil, err
	}
	return &Core{core: core}, nil
}

// Close releases resources.
func (c *Core) Close() error {
	if c == nil || c.core == nil {
		return nil
	}
	return c.core.Close()
}

// ImportRowsJSON stores a JSON array of raw broker rows as one batch and
// returns the import result as JSON.
func (c *Core) ImportRowsJSON(source, rowsJSON string) (string, error) {
	rows, err := decodeRows(rowsJSON)
	if err != nil {
		return "", err
	}
	result, err := c.core.ImportRows(context.Background(), source, rows)
	if err != nil {
		return "", err
	}
	return marshalJSON(result)
}

// DeleteBatch removes an import batch and its transactions.
func (c *Core) DeleteBatch(batchID string) error {
	return c.core.DeleteBatch(context.Background(), batchID)
}

// RealizedReportJSON returns the realized P&L of the book as JSON.
func (c *Core) RealizedReportJSON() (string, error) {
	data, err := c.core.RealizedReport(context.Background())
	if err != nil {
		return "", err
	}
	return marshalJSON(data)
}

// UnrealizedReportJSON returns the open positions valued at stored prices.
func (c *Core) UnrealizedReportJSON() (string, error) {
	data, err := c.core.UnrealizedReport(context.Background())
	if err != nil {
		return "", err
	}
	return marshalJSON(data)
}

// ReturnsReportJSON returns per-currency TWR and XIRR as of asOf
// (YYYY-MM-DD, empty for today).
func (c *Core) ReturnsReportJSON(asOf string) (string, error) {
	date, err := parseDate(asOf)
	if err != nil {
		return "", err
	}
	data, err := c.core.ReturnsReport(context.Background(), date)
	if err != nil {
		return "", err
	}
	return marshalJSON(data)
}

// TakeSnapshotJSON records valuation snapshots as of asOf.
func (c *Core) TakeSnapshotJSON(asOf string) (string, error) {
	date, err := parseDate(asOf)
	if err != nil {
		return "", err
	}
	data, err := c.core.TakeSnapshot(context.Background(), date)
	if err != nil {
		return "", err
	}
	return marshalJSON(data)
}

// UpdatePriceJSON fetches the latest quote for key and returns the result.
func (c *Core) UpdatePriceJSON(key, currency string) (string, error) {
	result, err := c.core.UpdatePrice(context.Background(), key, currency)
	if err != nil {
		return "", err
	}
	return marshalJSON(result)
}

// ManualUpdatePrice stores a price entered by the user.
func (c *Core) ManualUpdatePrice(key, currency string, price float64) error {
	return c.core.ManualUpdatePrice(context.Background(), key, currency, price)
}

// ComputeRealizedPnLJSON runs the realized P&L over a JSON array of raw
// rows without touching any book.
func ComputeRealizedPnLJSON(rowsJSON string) (string, error) {
	rows, err := decodeRows(rowsJSON)
	if err != nil {
		return "", err
	}
	return marshalJSON(costbasis.ComputeRealizedPnL(costbasis.NormalizeRows(rows)))
}

// ComputeUnrealizedPnLJSON values the open positions of raw rows against a
// JSON object of quotes keyed by instrument.
func ComputeUnrealizedPnLJSON(rowsJSON, pricesJSON string) (string, error) {
	rows, err := decodeRows(rowsJSON)
	if err != nil {
		return "", err
	}
	prices := costbasis.PriceMap{}
	if strings.TrimSpace(pricesJSON) != "" {
		if err := json.Unmarshal([]byte(pricesJSON), &prices); err != nil {
			return "", fmt.Errorf("decode prices: %w", err)
		}
	}
	data, err := costbasis.ComputeUnrealizedPnL(context.Background(), costbasis.NormalizeRows(rows), prices)
	if err != nil {
		return "", err
	}
	return marshalJSON(portfolio.NewUnrealizedReport(data))
}

// ComputeTWRJSON chains a JSON array of periods. The result is a JSON
// number, or null when no period is usable.
func ComputeTWRJSON(periodsJSON string) (string, error) {
	var periods []costbasis.TwrPeriod
	if err := json.Unmarshal([]byte(periodsJSON), &periods); err != nil {
		return "", fmt.Errorf("decode periods: %w", err)
	}
	return marshalJSON(costbasis.ComputeTWR(periods))
}

// XIRRJSON solves the XIRR of a JSON array of {"date","amount"} cashflows.
// The result is a JSON number, or null when the solver does not converge.
func XIRRJSON(cashflowsJSON string) (string, error) {
	var payload []cashflowPayload
	if err := json.Unmarshal([]byte(cashflowsJSON), &payload); err != nil {
		return "", fmt.Errorf("decode cashflows: %w", err)
	}
	flows := make([]costbasis.Cashflow, 0, len(payload))
	for _, cf := range payload {
		date, err := parseDate(cf.Date)
		if err != nil {
			return "", err
		}
		flows = append(flows, costbasis.Cashflow{Date: date, Amount: cf.Amount})
	}
	return marshalJSON(costbasis.XIRR(flows))
}

func decodeRows(rowsJSON string) ([]costbasis.Row, error) {
	var rows []costbasis.Row
	if err := json.Unmarshal([]byte(rowsJSON), &rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", value)
	}
	return t, nil
}

func marshalJSON(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type cashflowPayload struct {
	Date   string  `json:"date"`
	Amount float64 `json:"amount"`
}
