package portfolio

import (
	"costbasis/pkg/costbasis"
)

// Operation log types.
const (
	OpImport            = "IMPORT"
	OpDeleteImport      = "DELETE_IMPORT"
	OpPriceUpdate       = "PRICE_UPDATE"
	OpPriceUpdateFailed = "PRICE_UPDATE_FAILED"
	OpManualPrice       = "MANUAL_PRICE_UPDATE"
	OpSnapshot          = "SNAPSHOT"
)

// ImportBatch describes one stored import.
type ImportBatch struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	RowCount  int    `json:"row_count"`
	Imported  int    `json:"imported"`
	Skipped   int    `json:"skipped"`
	CreatedAt string `json:"created_at"`
}

// ImportResult is returned by ImportRows and ImportTransactions.
type ImportResult struct {
	BatchID  string `json:"batch_id"`
	Source   string `json:"source"`
	Rows     int    `json:"rows"`
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
}

// StoredTransaction is a normalized transaction with its storage identity.
type StoredTransaction struct {
	ID      int64  `json:"id"`
	BatchID string `json:"batch_id"`
	Seq     int    `json:"seq"`
	costbasis.Transaction
}

// TransactionFilter narrows Transactions.
type TransactionFilter struct {
	InstrumentKey string
	BatchID       string
	Action        string
	Limit         int
	Offset        int
}

// LatestPrice is the last stored price of an instrument.
type LatestPrice struct {
	InstrumentKey string  `json:"instrument_key"`
	Currency      string  `json:"currency"`
	Price         float64 `json:"price"`
	UpdatedAt     string  `json:"updated_at"`
}

// PriceResult is the outcome of a price fetch.
type PriceResult struct {
	Price   *float64 `json:"price"`
	Message string   `json:"message"`
}

// RefreshResult summarizes RefreshPrices.
type RefreshResult struct {
	Updated int      `json:"updated"`
	Errors  []string `json:"errors"`
}

// OperationLog is an audit record.
type OperationLog struct {
	ID            int64    `json:"id"`
	Operation     string   `json:"operation_type"`
	InstrumentKey *string  `json:"instrument_key"`
	Currency      *string  `json:"currency"`
	Details       *string  `json:"details"`
	PriceFetched  *float64 `json:"price_fetched"`
	CreatedAt     *string  `json:"created_at"`
}

// Snapshot is the market value of open positions in one currency on a date,
// with the net money moved into positions since the previous snapshot.
type Snapshot struct {
	Date        string           `json:"date"`
	Currency    string           `json:"currency"`
	MarketValue costbasis.Amount `json:"market_value"`
	NetFlows    costbasis.Amount `json:"net_flows"`
	Incomplete  bool             `json:"incomplete"`
}

// UnrealizedTotals aggregates unrealized rows for one currency.
type UnrealizedTotals struct {
	TotalCost   costbasis.Amount `json:"total_cost"`
	MarketValue costbasis.Amount `json:"market_value"`
	PnL         costbasis.Amount `json:"pnl"`
	Positions   int              `json:"positions"`
	Incomplete  bool             `json:"incomplete"`
}

// UnrealizedReport is the valued open position list.
type UnrealizedReport struct {
	Rows        []costbasis.UnrealizedPnLRow `json:"rows"`
	TotalsByCcy map[string]UnrealizedTotals  `json:"totals_by_ccy"`
	Incomplete  bool                         `json:"incomplete"`
}

// CurrencyReturns holds the return metrics of one currency sleeve.
type CurrencyReturns struct {
	Currency      string   `json:"currency"`
	TWR           *float64 `json:"twr"`
	AnnualizedTWR *float64 `json:"annualized_twr"`
	XIRR          *float64 `json:"xirr"`
	Periods       int      `json:"periods"`
	From          string   `json:"from,omitempty"`
	To            string   `json:"to,omitempty"`
	MarketValue   float64  `json:"market_value"`
	Incomplete    bool     `json:"incomplete"`
}
