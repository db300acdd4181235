package costbasis

import (
	"math"
	"strings"
	"time"
)

// Action classifies a transaction.
type Action string

const (
	ActionBuy      Action = "BUY"
	ActionSell     Action = "SELL"
	ActionSplit    Action = "SPLIT"
	ActionDividend Action = "DIVIDEND"
	ActionInterest Action = "INTEREST"
	ActionOther    Action = "OTHER"
)

// Actions lists every classification in matching priority order.
var Actions = []Action{ActionBuy, ActionSell, ActionSplit, ActionDividend, ActionInterest, ActionOther}

// ParseAction classifies free text by case-insensitive substring. The first
// match wins, so "Buy to cover (sell)" is a BUY.
func ParseAction(text string) Action {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "buy"):
		return ActionBuy
	case strings.Contains(lower, "sell"):
		return ActionSell
	case strings.Contains(lower, "split"):
		return ActionSplit
	case strings.Contains(lower, "dividend"):
		return ActionDividend
	case strings.Contains(lower, "interest"):
		return ActionInterest
	default:
		return ActionOther
	}
}

// IsCash reports whether the action is a cash-only event.
func (a Action) IsCash() bool {
	return a == ActionDividend || a == ActionInterest
}

// Transaction is one canonical row of trading activity.
type Transaction struct {
	InstrumentKey string    `json:"instrument_key"`
	Action        Action    `json:"action"`
	Shares        float64   `json:"shares"`
	Price         *float64  `json:"price"`
	Fees          float64   `json:"fees"`
	Taxes         float64   `json:"taxes"`
	Amount        float64   `json:"amount,omitempty"`
	QuoteCurrency string    `json:"quote_currency"`
	Timestamp     time.Time `json:"timestamp"`
	SplitRatio    float64   `json:"split_ratio,omitempty"`
}

// IsTrade reports whether the row can open or consume lots.
func (t Transaction) IsTrade() bool {
	if t.Action != ActionBuy && t.Action != ActionSell {
		return false
	}
	return isPositive(t.Shares) && t.Price != nil && isFinite(*t.Price)
}

// FeesTaxes returns fees plus taxes.
func (t Transaction) FeesTaxes() float64 {
	return t.Fees + t.Taxes
}

// Canonical returns t with its key and currency normalized and its action
// mapped onto the closed set. Use it for transactions built outside
// Normalize.
func (t Transaction) Canonical() Transaction {
	t.InstrumentKey = NormalizeKey(t.InstrumentKey)
	t.QuoteCurrency = NormalizeCurrency(t.QuoteCurrency)
	t.Action = ParseAction(string(t.Action))
	t.Shares = math.Abs(t.Shares)
	t.Fees = math.Abs(t.Fees)
	t.Taxes = math.Abs(t.Taxes)
	t.Amount = math.Abs(t.Amount)
	return t
}

// Float returns a pointer to v. Handy for building transactions by hand.
func Float(v float64) *float64 {
	return &v
}

// NormalizeKey returns the canonical instrument key form.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// NormalizeCurrency returns the canonical currency code form.
func NormalizeCurrency(ccy string) string {
	return strings.ToUpper(strings.TrimSpace(ccy))
}
