package portfolio

import (
	"context"
	"database/sql"
	"math"
	"strings"

	"costbasis/pkg/costbasis"
)

// UpdateLatestPrice inserts or updates the stored price of an instrument.
func (c *Core) UpdateLatestPrice(ctx context.Context, key, currency string, price float64) error {
	key = costbasis.NormalizeKey(key)
	if key == "" {
		return NewError(ErrCodeInvalidInput, "instrument key is required")
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return NewError(ErrCodeInvalidInput, "price must be a non-negative number")
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO latest_prices (instrument_key, currency, price, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(instrument_key) DO UPDATE SET
			currency = excluded.currency,
			price = excluded.price,
			updated_at = CURRENT_TIMESTAMP
	`, key, costbasis.NormalizeCurrency(currency), price)
	if err != nil {
		return WrapError(ErrCodeDatabase, "store latest price", err)
	}
	c.reports.invalidatePrices()
	return nil
}

// GetLatestPrice returns the stored price of an instrument, or nil.
func (c *Core) GetLatestPrice(ctx context.Context, key string) (*LatestPrice, error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT instrument_key, currency, price, updated_at FROM latest_prices WHERE instrument_key = ?",
		costbasis.NormalizeKey(key))
	var p LatestPrice
	var updatedAt sql.NullString
	if err := row.Scan(&p.InstrumentKey, &p.Currency, &p.Price, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, WrapError(ErrCodeDatabase, "query latest price", err)
	}
	p.UpdatedAt = updatedAt.String
	return &p, nil
}

// LatestPrices returns every stored price ordered by instrument key.
func (c *Core) LatestPrices(ctx context.Context) ([]LatestPrice, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT instrument_key, currency, price, updated_at FROM latest_prices ORDER BY instrument_key")
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "query latest prices", err)
	}
	defer rows.Close()

	prices := []LatestPrice{}
	for rows.Next() {
		var p LatestPrice
		var updatedAt sql.NullString
		if err := rows.Scan(&p.InstrumentKey, &p.Currency, &p.Price, &updatedAt); err != nil {
			return nil, WrapError(ErrCodeDatabase, "scan latest price", err)
		}
		p.UpdatedAt = updatedAt.String
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

// Quotes implements costbasis.PriceSource from the stored latest prices.
func (c *Core) Quotes(ctx context.Context, keys []string) (map[string]costbasis.Quote, error) {
	out := make(map[string]costbasis.Quote, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	params := make([]any, len(keys))
	for i, k := range keys {
		params[i] = costbasis.NormalizeKey(k)
	}
	rows, err := c.db.QueryContext(ctx,
		"SELECT instrument_key, currency, price FROM latest_prices WHERE instrument_key IN ("+placeholders+")",
		params...)
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "query quotes", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var q costbasis.Quote
		if err := rows.Scan(&key, &q.CcyPrice, &q.LastPrice); err != nil {
			return nil, WrapError(ErrCodeDatabase, "scan quote", err)
		}
		out[key] = q
	}
	return out, rows.Err()
}
