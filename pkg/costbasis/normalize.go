package costbasis

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Row is one loosely typed tabular row keyed by its column header.
type Row map[string]any

// Column aliases, compared after normalizeHeader.
var (
	tickerHeaders   = []string{"ticker", "symbol", "code"}
	isinHeaders     = []string{"isin"}
	nameHeaders     = []string{"name", "product", "product name", "instrument", "security", "stock"}
	actionHeaders   = []string{"action", "type", "side", "transaction type", "buy/sell", "operation"}
	sharesHeaders   = []string{"shares", "quantity", "qty", "units", "number of shares"}
	priceHeaders    = []string{"price", "unit price", "share price", "price per share"}
	feesHeaders     = []string{"fees", "fee", "commission", "commissions", "transaction costs"}
	taxesHeaders    = []string{"taxes", "tax", "withholding tax", "stamp duty"}
	currencyHeaders = []string{"currency", "ccy", "quote currency", "price currency"}
	dateHeaders     = []string{"date", "timestamp", "datetime", "trade date", "transaction date"}
	timeHeaders     = []string{"time", "trade time"}
	ratioHeaders    = []string{"split ratio", "ratio", "split"}
	amountHeaders   = []string{"amount", "total", "net amount", "value"}
)

// instrumentKeyChain is tried in order; the first non-empty value wins.
var instrumentKeyChain = [][]string{tickerHeaders, isinHeaders, nameHeaders}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"02-01-2006 15:04:05",
	"02-01-2006",
	"02/01/2006 15:04:05",
	"02/01/2006",
	"02.01.2006",
	"20060102",
}

var timeOfDayLayouts = []string{"15:04:05", "15:04"}

var (
	reHeaderSeparators = regexp.MustCompile(`[\s_\-]+`)
	reRatio            = regexp.MustCompile(`(?i)^\s*([0-9.,]+)\s*(?::|/|-?\s*for\s*-?)\s*([0-9.,]+)\s*$`)
)

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return reHeaderSeparators.ReplaceAllString(h, " ")
}

// fields is a row re-keyed by normalized header.
type fields map[string]any

func newFields(row Row) fields {
	f := make(fields, len(row))
	for k, v := range row {
		nk := normalizeHeader(k)
		if _, exists := f[nk]; exists && isBlank(v) {
			continue
		}
		f[nk] = v
	}
	return f
}

// lookup returns the first alias present with a non-blank value.
func (f fields) lookup(aliases []string) (any, bool) {
	for _, alias := range aliases {
		if v, ok := f[alias]; ok && !isBlank(v) {
			return v, true
		}
	}
	return nil, false
}

func (f fields) text(aliases []string) string {
	v, ok := f.lookup(aliases)
	if !ok {
		return ""
	}
	return strings.TrimSpace(stringify(v))
}

// number returns the parsed value or ok=false when absent or NaN.
func (f fields) number(aliases []string) (float64, bool) {
	v, ok := f.lookup(aliases)
	if !ok {
		return 0, false
	}
	return parseNumber(v)
}

// Normalize converts a row into a Transaction. It returns false when no
// instrument key can be resolved.
func Normalize(row Row) (Transaction, bool) {
	f := newFields(row)

	var key string
	for _, aliases := range instrumentKeyChain {
		if key = NormalizeKey(f.text(aliases)); key != "" {
			break
		}
	}
	if key == "" {
		return Transaction{}, false
	}

	tx := Transaction{
		InstrumentKey: key,
		Action:        ParseAction(f.text(actionHeaders)),
		QuoteCurrency: NormalizeCurrency(f.text(currencyHeaders)),
		Timestamp:     f.timestamp(),
	}
	if v, ok := f.number(sharesHeaders); ok {
		tx.Shares = math.Abs(v)
	}
	if v, ok := f.number(priceHeaders); ok {
		tx.Price = &v
	}
	if v, ok := f.number(feesHeaders); ok {
		tx.Fees = math.Abs(v)
	}
	if v, ok := f.number(taxesHeaders); ok {
		tx.Taxes = math.Abs(v)
	}
	if v, ok := f.number(amountHeaders); ok {
		tx.Amount = math.Abs(v)
	}
	if tx.Action == ActionSplit {
		if v, ok := f.lookup(ratioHeaders); ok {
			tx.SplitRatio = parseRatio(v)
		}
	}
	return tx, true
}

// NormalizeRows normalizes every row and drops the ones without an
// instrument key. Input order is preserved.
func NormalizeRows(rows []Row) []Transaction {
	out := make([]Transaction, 0, len(rows))
	for _, row := range rows {
		if tx, ok := Normalize(row); ok {
			out = append(out, tx)
		}
	}
	return out
}

func (f fields) timestamp() time.Time {
	v, ok := f.lookup(dateHeaders)
	if !ok {
		return time.Time{}
	}
	ts, dateOnly := parseTimestamp(v)
	if ts.IsZero() || !dateOnly {
		return ts
	}
	clock := f.text(timeHeaders)
	if clock == "" {
		return ts
	}
	for _, layout := range timeOfDayLayouts {
		if t, err := time.Parse(layout, clock); err == nil {
			return ts.Add(time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second)
		}
	}
	return ts
}

// parseTimestamp returns the parsed time and whether the value carried only
// a date. Unparseable values yield the zero time.
func parseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, false
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, false
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, !strings.Contains(layout, "15")
			}
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return epoch(n), false
		}
		return time.Time{}, false
	}
	if n, ok := parseNumber(v); ok {
		return epoch(n), false
	}
	return time.Time{}, false
}

// epoch reads n as Unix seconds, or milliseconds when it is too large to be
// seconds.
func epoch(n float64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	if n > 1e12 {
		return time.UnixMilli(int64(n)).UTC()
	}
	sec, frac := math.Modf(n)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// parseRatio accepts plain numbers and "new:old", "new/old" or "new for old".
func parseRatio(v any) float64 {
	if s, ok := v.(string); ok {
		if m := reRatio.FindStringSubmatch(s); m != nil {
			num, okNum := parseNumber(m[1])
			den, okDen := parseNumber(m[2])
			if !okNum || !okDen || den == 0 {
				return 0
			}
			return num / den
		}
	}
	r, ok := parseNumber(v)
	if !ok {
		return 0
	}
	return r
}

// parseNumber parses numeric values. Strings may use a comma as decimal
// separator. NaN, infinities and unparseable text are absent.
func parseNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case decimal.Decimal:
		f = n.InexactFloat64()
	case json.Number:
		return parseNumber(string(n))
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(n), ",", ".")
		if s == "" {
			return 0, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return 0, false
		}
		f = d.InexactFloat64()
	default:
		return 0, false
	}
	if !isFinite(f) {
		return 0, false
	}
	return f, true
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case decimal.Decimal:
		return s.String()
	case nil:
		return ""
	}
	return ""
}

func isBlank(v any) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(s) == ""
	}
	return false
}
