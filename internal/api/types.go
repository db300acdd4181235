package api

import (
	"costbasis/pkg/costbasis"
	"costbasis/pkg/portfolio"
)

type importRowsPayload struct {
	Source string           `json:"source"`
	Rows   []map[string]any `json:"rows"`
}

type pricePayload struct {
	InstrumentKey string `json:"instrument_key"`
	Currency      string `json:"currency"`
}

type manualPricePayload struct {
	InstrumentKey string  `json:"instrument_key"`
	Currency      string  `json:"currency"`
	Price         float64 `json:"price"`
}

type snapshotPayload struct {
	AsOf string `json:"as_of"`
}

// computePayload carries a stateless computation: raw rows, already
// normalized transactions, or both, and optional quotes.
type computePayload struct {
	Rows         []map[string]any           `json:"rows"`
	Transactions []costbasis.Transaction    `json:"transactions"`
	Prices       map[string]costbasis.Quote `json:"prices"`
}

type computeResponse struct {
	Realized   costbasis.RealizedPnLSummary `json:"realized"`
	Unrealized *portfolio.UnrealizedReport  `json:"unrealized"`
}

type twrPayload struct {
	Periods []costbasis.TwrPeriod `json:"periods"`
}

type cashflowPayload struct {
	Date   string  `json:"date"`
	Amount float64 `json:"amount"`
}

type xirrPayload struct {
	Cashflows []cashflowPayload `json:"cashflows"`
	Guess     *float64          `json:"guess"`
}

type metricResponse struct {
	Value *float64 `json:"value"`
}
