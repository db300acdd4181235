package costbasis

import (
	"math"
	"testing"
	"time"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(days int) time.Time {
	return day0.AddDate(0, 0, days)
}

func buy(key string, days int, shares, price float64) Transaction {
	return Transaction{
		InstrumentKey: key,
		Action:        ActionBuy,
		Shares:        shares,
		Price:         Float(price),
		QuoteCurrency: "USD",
		Timestamp:     at(days),
	}
}

func sell(key string, days int, shares, price float64) Transaction {
	tx := buy(key, days, shares, price)
	tx.Action = ActionSell
	return tx
}

func split(key string, days int, ratio float64) Transaction {
	return Transaction{
		InstrumentKey: key,
		Action:        ActionSplit,
		SplitRatio:    ratio,
		Timestamp:     at(days),
	}
}

// assertFloatEquals fails the test if the floats differ by more than 0.001.
func assertFloatEquals(t *testing.T, got, want float64, msg string) {
	t.Helper()
	if math.Abs(got-want) >= 0.001 {
		t.Errorf("%s: got %.6f, want %.6f", msg, got, want)
	}
}

// assertPtrFloat fails the test if got is nil or not within tol of want.
func assertPtrFloat(t *testing.T, got *float64, want, tol float64, msg string) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s: got nil, want %.6f", msg, want)
	}
	if math.Abs(*got-want) > tol {
		t.Errorf("%s: got %.8f, want %.8f", msg, *got, want)
	}
}
