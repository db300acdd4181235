package portfolio

import (
	"context"
	"fmt"
)

// UpdatePrice fetches and stores the latest price of an instrument.
func (c *Core) UpdatePrice(ctx context.Context, key, currency string) (PriceResult, error) {
	result, err := c.FetchPrice(ctx, key, currency)
	if result.Price != nil {
		if err := c.UpdateLatestPrice(ctx, key, currency, *result.Price); err != nil {
			return result, err
		}
		c.logOperation(ctx, OperationLog{
			Operation:     OpPriceUpdate,
			InstrumentKey: stringPtr(key),
			Currency:      stringPtr(currency),
			Details:       stringPtr(result.Message),
			PriceFetched:  result.Price,
		})
		return result, nil
	}
	c.logOperation(ctx, OperationLog{
		Operation:     OpPriceUpdateFailed,
		InstrumentKey: stringPtr(key),
		Currency:      stringPtr(currency),
		Details:       stringPtr(result.Message),
	})
	return result, WrapError(ErrCodeUpstream, result.Message, err)
}

// ManualUpdatePrice stores a price supplied by the user.
func (c *Core) ManualUpdatePrice(ctx context.Context, key, currency string, price float64) error {
	if err := c.UpdateLatestPrice(ctx, key, currency, price); err != nil {
		return err
	}
	c.logOperation(ctx, OperationLog{
		Operation:     OpManualPrice,
		InstrumentKey: stringPtr(key),
		Currency:      stringPtr(currency),
		Details:       stringPtr("manual price update"),
		PriceFetched:  floatPtr(price),
	})
	return nil
}

// RefreshPrices fetches prices for every open position. Individual failures
// are collected, not returned as an error.
func (c *Core) RefreshPrices(ctx context.Context) (RefreshResult, error) {
	positions, err := c.Positions(ctx)
	if err != nil {
		return RefreshResult{}, err
	}
	result := RefreshResult{Errors: []string{}}
	for _, p := range positions {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		price, err := c.UpdatePrice(ctx, p.InstrumentKey, p.Currency)
		if price.Price != nil {
			result.Updated++
		} else if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", p.InstrumentKey, price.Message))
		}
	}
	c.logger.Info("prices refreshed", "updated", result.Updated, "failed", len(result.Errors))
	return result, nil
}
