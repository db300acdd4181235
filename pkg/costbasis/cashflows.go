package costbasis

import (
	"sort"
	"time"
)

// TradeCashflows converts transactions into investor cashflows grouped by
// quote currency. Buys are outflows, sells and cash events inflows. Rows that
// the replay would ignore are ignored here too.
func TradeCashflows(txs []Transaction) map[string][]Cashflow {
	return TradeCashflowsBy(txs, func(tx Transaction) string {
		return NormalizeCurrency(tx.QuoteCurrency)
	})
}

// TradeCashflowsBy is TradeCashflows with the grouping key chosen by bucket.
// bucket sees the transaction with its instrument key normalized.
func TradeCashflowsBy(txs []Transaction, bucket func(Transaction) string) map[string][]Cashflow {
	out := map[string][]Cashflow{}
	for _, tx := range SortedByTime(txs) {
		tx.InstrumentKey = NormalizeKey(tx.InstrumentKey)
		if tx.InstrumentKey == "" {
			continue
		}
		amount, ok := cashflowAmount(tx)
		if !ok {
			continue
		}
		ccy := bucket(tx)
		out[ccy] = append(out[ccy], Cashflow{Date: tx.Timestamp, Amount: amount})
	}
	return out
}

func cashflowAmount(tx Transaction) (float64, bool) {
	switch tx.Action {
	case ActionBuy:
		if !tx.IsTrade() {
			return 0, false
		}
		return -(*tx.Price*tx.Shares + tx.FeesTaxes()), true
	case ActionSell:
		if !tx.IsTrade() {
			return 0, false
		}
		return *tx.Price*tx.Shares - tx.FeesTaxes(), true
	case ActionDividend, ActionInterest:
		gross := tx.Amount
		if gross == 0 && tx.Price != nil && isFinite(*tx.Price) {
			gross = *tx.Price * tx.Shares
		}
		if gross == 0 {
			return 0, false
		}
		return gross - tx.Taxes, true
	}
	return 0, false
}

// NetFlowBetween sums the negated investor cashflows dated after from and up
// to and including to. The sign matches TwrPeriod.Flows: money put into the
// portfolio is positive.
func NetFlowBetween(flows []Cashflow, from, to time.Time) float64 {
	var net float64
	for _, f := range flows {
		if f.Date.After(from) && !f.Date.After(to) {
			net -= f.Amount
		}
	}
	return net
}

// SortCashflows orders flows by date in place.
func SortCashflows(flows []Cashflow) {
	sort.SliceStable(flows, func(i, j int) bool {
		return flows[i].Date.Before(flows[j].Date)
	})
}
