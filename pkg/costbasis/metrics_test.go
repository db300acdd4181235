package costbasis

import (
	"math"
	"testing"
)

func TestComputeTWR(t *testing.T) {
	tests := []struct {
		name    string
		periods []TwrPeriod
		want    float64
	}{
		{"single period without flows", []TwrPeriod{{Starting: 100, Flows: 0, Ending: 110}}, 0.10},
		{"flows are removed", []TwrPeriod{{Starting: 100, Flows: 50, Ending: 160}}, 0.10},
		{"chained periods", []TwrPeriod{
			{Starting: 100, Ending: 110},
			{Starting: 110, Flows: 100, Ending: 199},
		}, 1.1*0.9 - 1},
		{"non-positive start skipped", []TwrPeriod{
			{Starting: 0, Ending: 50},
			{Starting: 100, Ending: 120},
		}, 0.20},
		{"non-positive growth skipped", []TwrPeriod{
			{Starting: 100, Flows: 100, Ending: 50},
			{Starting: 100, Ending: 105},
		}, 0.05},
		{"non-finite skipped", []TwrPeriod{
			{Starting: 100, Ending: math.Inf(1)},
			{Starting: math.NaN(), Ending: 1},
			{Starting: 200, Ending: 220},
		}, 0.10},
		{"all skipped", []TwrPeriod{{Starting: -1, Ending: 5}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertPtrFloat(t, ComputeTWR(tt.periods), tt.want, 1e-12, "twr")
		})
	}
}

func TestComputeTWREmpty(t *testing.T) {
	if got := ComputeTWR(nil); got != nil {
		t.Fatalf("expected nil, got %v", *got)
	}
	if got := ComputeTWR([]TwrPeriod{}); got != nil {
		t.Fatalf("expected nil, got %v", *got)
	}
}

func TestXIRRSimple(t *testing.T) {
	got := XIRR([]Cashflow{
		{Date: at(0), Amount: -1000},
		{Date: at(365), Amount: 1100},
	})
	assertPtrFloat(t, got, 0.10, 1e-4, "xirr")
}

func TestXIRRUnorderedInput(t *testing.T) {
	got := XIRR([]Cashflow{
		{Date: at(730), Amount: 1210},
		{Date: at(0), Amount: -1000},
	})
	assertPtrFloat(t, got, 0.10, 1e-4, "xirr")
}

func TestXIRRMultipleFlows(t *testing.T) {
	flows := []Cashflow{
		{Date: at(0), Amount: -1000},
		{Date: at(182), Amount: -500},
		{Date: at(365), Amount: 100},
		{Date: at(547), Amount: 1700},
	}
	rate := XIRR(flows)
	if rate == nil {
		t.Fatalf("expected a rate")
	}
	var npv float64
	for _, f := range flows {
		npv += f.Amount / math.Pow(1+*rate, f.Date.Sub(at(0)).Hours()/24/365)
	}
	if math.Abs(npv) > 1e-4 {
		t.Fatalf("npv at solved rate = %.9f (rate %.6f)", npv, *rate)
	}
}

func TestXIRRWithGuess(t *testing.T) {
	got := XIRRWithGuess([]Cashflow{
		{Date: at(0), Amount: -100},
		{Date: at(365), Amount: 50},
	}, -0.3)
	assertPtrFloat(t, got, -0.5, 1e-6, "loss")

	got = XIRRWithGuess([]Cashflow{
		{Date: at(0), Amount: -1000},
		{Date: at(365), Amount: 1100},
	}, math.NaN())
	assertPtrFloat(t, got, 0.10, 1e-4, "nan guess falls back to default")
}

func TestXIRREdgeCases(t *testing.T) {
	if got := XIRR(nil); got != nil {
		t.Fatalf("expected nil for empty flows, got %v", *got)
	}
	// A single flow has a flat NPV curve; the guess is returned unchanged.
	got := XIRR([]Cashflow{{Date: at(0), Amount: -100}})
	assertPtrFloat(t, got, DefaultXIRRGuess, 1e-12, "flat npv")
}

func TestAnnualizeReturn(t *testing.T) {
	assertPtrFloat(t, AnnualizeReturn(0.21, 730), 0.10, 1e-9, "two years")
	if AnnualizeReturn(0.1, 0) != nil {
		t.Fatalf("expected nil for zero days")
	}
	if AnnualizeReturn(-1, 10) != nil {
		t.Fatalf("expected nil for total loss")
	}
}
