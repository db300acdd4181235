package costbasis

import (
	"math"
	"time"
)

// XIRR solver parameters.
const (
	DefaultXIRRGuess   = 0.10
	xirrMaxIterations  = 100
	xirrDerivativeStep = 1e-6
	xirrTolerance      = 1e-9
	xirrFlatDerivative = 1e-10
	daysPerYear        = 365.0
)

// TwrPeriod is one valuation sub-period.
type TwrPeriod struct {
	Starting float64 `json:"starting"`
	Flows    float64 `json:"flows"`
	Ending   float64 `json:"ending"`
}

// growth returns the flow-adjusted growth factor of the period and whether
// it is usable.
func (p TwrPeriod) growth() (float64, bool) {
	if !isPositive(p.Starting) {
		return 0, false
	}
	g := (p.Ending - p.Flows) / p.Starting
	if !isPositive(g) {
		return 0, false
	}
	return g, true
}

// ComputeTWR chains the growth of each period and returns the compounded
// return. Periods without a positive start value or with a non-positive or
// non-finite growth factor carry no information and are skipped rather than
// counted as total losses. Returns nil for an empty list.
func ComputeTWR(periods []TwrPeriod) *float64 {
	if len(periods) == 0 {
		return nil
	}
	product := 1.0
	for _, p := range periods {
		g, ok := p.growth()
		if !ok {
			continue
		}
		product *= g
	}
	twr := product - 1
	if !isFinite(twr) {
		return nil
	}
	return &twr
}

// Cashflow is a dated amount. Outflows are negative, inflows positive.
type Cashflow struct {
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`
}

// XIRR solves for the annual rate that zeroes the NPV of flows, starting
// from DefaultXIRRGuess.
func XIRR(flows []Cashflow) *float64 {
	return XIRRWithGuess(flows, DefaultXIRRGuess)
}

// XIRRWithGuess runs Newton-Raphson from guess. There is no bracketing
// fallback: a pattern that does not converge yields the last finite
// estimate. Returns nil for no flows or a non-finite result.
func XIRRWithGuess(flows []Cashflow, guess float64) *float64 {
	if len(flows) == 0 {
		return nil
	}
	if !isFinite(guess) {
		guess = DefaultXIRRGuess
	}
	earliest := flows[0].Date
	for _, f := range flows[1:] {
		if f.Date.Before(earliest) {
			earliest = f.Date
		}
	}
	years := make([]float64, len(flows))
	for i, f := range flows {
		years[i] = f.Date.Sub(earliest).Hours() / 24 / daysPerYear
	}
	npv := func(rate float64) float64 {
		var sum float64
		for i, f := range flows {
			sum += f.Amount / math.Pow(1+rate, years[i])
		}
		return sum
	}

	rate := guess
	for i := 0; i < xirrMaxIterations; i++ {
		value := npv(rate)
		deriv := (npv(rate+xirrDerivativeStep) - value) / xirrDerivativeStep
		if math.Abs(deriv) < xirrFlatDerivative {
			break
		}
		next := rate - value/deriv
		delta := next - rate
		rate = next
		if math.Abs(delta) < xirrTolerance {
			break
		}
	}
	if !isFinite(rate) {
		return nil
	}
	return &rate
}

// AnnualizeReturn converts a total return over days into an annual rate.
// Returns nil when days is not positive or the total is a full loss or worse.
func AnnualizeReturn(total, days float64) *float64 {
	if !isPositive(days) || !isFinite(total) || total <= -1 {
		return nil
	}
	annual := math.Pow(1+total, daysPerYear/days) - 1
	if !isFinite(annual) {
		return nil
	}
	return &annual
}
