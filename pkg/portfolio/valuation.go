package portfolio

import (
	"context"

	"costbasis/pkg/costbasis"
)

// valuation is the market value and the trade cashflows of a set of
// transactions, grouped under one currency per instrument so that new money
// and the value it buys always land in the same bucket.
type valuation struct {
	values     map[string]float64
	incomplete map[string]bool
	flows      map[string][]costbasis.Cashflow
}

// valueBook values the open positions of txs against stored prices. An
// instrument is bucketed by its trade currency, or by its quote currency
// when its trades carried none.
func (c *Core) valueBook(ctx context.Context, txs []costbasis.Transaction) (*valuation, error) {
	positions := costbasis.OpenPositions(txs)
	quotes, err := c.Quotes(ctx, costbasis.PositionKeys(positions))
	if err != nil {
		return nil, err
	}
	rows := costbasis.ValuePositions(positions, quotes)

	v := &valuation{
		values:     map[string]float64{},
		incomplete: map[string]bool{},
	}
	buckets := make(map[string]string, len(positions))
	for i, p := range positions {
		ccy := p.Currency
		if ccy == "" {
			ccy = costbasis.NormalizeCurrency(quotes[p.InstrumentKey].CcyPrice)
		}
		buckets[p.InstrumentKey] = ccy
		v.values[ccy] += rows[i].MarketValue
		v.incomplete[ccy] = v.incomplete[ccy] || rows[i].Incomplete
	}

	v.flows = costbasis.TradeCashflowsBy(txs, func(tx costbasis.Transaction) string {
		if ccy := costbasis.NormalizeCurrency(tx.QuoteCurrency); ccy != "" {
			return ccy
		}
		return buckets[tx.InstrumentKey]
	})
	for ccy := range v.flows {
		if _, ok := v.values[ccy]; !ok {
			v.values[ccy] = 0
		}
	}
	return v, nil
}
