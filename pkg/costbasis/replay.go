package costbasis

import (
	"sort"
)

// SellFunc observes a sell after it has been matched against the ledger.
type SellFunc func(tx Transaction, c Consumption)

// replayState is the per-invocation lot state, discarded after use.
type replayState struct {
	ledgers    map[string]*Ledger
	currencies map[string]string
	order      []string
}

func (s *replayState) ledger(key string) *Ledger {
	l, ok := s.ledgers[key]
	if !ok {
		l = &Ledger{}
		s.ledgers[key] = l
		s.order = append(s.order, key)
	}
	return l
}

func (s *replayState) noteCurrency(tx Transaction) {
	if tx.QuoteCurrency != "" {
		s.currencies[tx.InstrumentKey] = tx.QuoteCurrency
	}
}

// SortedByTime returns a copy of txs ordered by timestamp. Ties keep their
// input order.
func SortedByTime(txs []Transaction) []Transaction {
	sorted := make([]Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}

// replay folds the transactions through per-instrument ledgers. onSell may
// be nil.
func replay(txs []Transaction, onSell SellFunc) *replayState {
	state := &replayState{
		ledgers:    map[string]*Ledger{},
		currencies: map[string]string{},
	}
	for _, tx := range SortedByTime(txs) {
		key := NormalizeKey(tx.InstrumentKey)
		if key == "" {
			continue
		}
		tx.InstrumentKey = key
		tx.QuoteCurrency = NormalizeCurrency(tx.QuoteCurrency)
		switch tx.Action {
		case ActionSplit:
			state.ledger(key).ApplySplit(tx.SplitRatio)
		case ActionBuy:
			if !tx.IsTrade() {
				continue
			}
			state.noteCurrency(tx)
			unitCost := *tx.Price + tx.FeesTaxes()/tx.Shares
			state.ledger(key).OpenLot(tx.Shares, unitCost)
		case ActionSell:
			if !tx.IsTrade() {
				continue
			}
			state.noteCurrency(tx)
			c := state.ledger(key).ConsumeLots(tx.Shares)
			if onSell != nil {
				onSell(tx, c)
			}
		}
	}
	return state
}
