package costbasis

import (
	"database/sql/driver"
	"strconv"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value backed by decimal arithmetic. It marshals to a
// plain JSON number rounded to four places.
type Amount struct {
	decimal.Decimal
}

// NewAmount creates an Amount from a float64.
func NewAmount(f float64) Amount {
	if !isFinite(f) {
		return Amount{decimal.Zero}
	}
	return Amount{decimal.NewFromFloat(f)}
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{a.Decimal.Add(b.Decimal)}
}

// Float returns the amount as a float64.
func (a Amount) Float() float64 {
	f, _ := a.Decimal.Float64()
	return f
}

// MarshalJSON outputs a JSON number, not a string.
func (a Amount) MarshalJSON() ([]byte, error) {
	f, _ := a.Round(4).Float64()
	return []byte(strconv.FormatFloat(f, 'f', -1, 64)), nil
}

// UnmarshalJSON accepts JSON numbers and quoted strings.
func (a *Amount) UnmarshalJSON(data []byte) error {
	return a.Decimal.UnmarshalJSON(data)
}

// Scan reads REAL, INTEGER and TEXT columns.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		a.Decimal = decimal.Zero
		return nil
	case float64:
		a.Decimal = decimal.NewFromFloat(v)
		return nil
	case int64:
		a.Decimal = decimal.NewFromInt(v)
		return nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return err
		}
		a.Decimal = d
		return nil
	}
	return a.Decimal.Scan(src)
}

// Value stores the amount as a float rounded to four places.
func (a Amount) Value() (driver.Value, error) {
	f, _ := a.Round(4).Float64()
	return f, nil
}
