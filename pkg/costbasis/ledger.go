package costbasis

import "math"

// Epsilon is the quantity below which a lot or a remaining sell quantity is
// treated as zero.
const Epsilon = 1e-12

// Lot is an open purchase tranche.
type Lot struct {
	Quantity float64 `json:"quantity"`
	UnitCost float64 `json:"unit_cost"`
}

// Cost returns quantity times unit cost.
func (l Lot) Cost() float64 {
	return l.Quantity * l.UnitCost
}

// Consumption is the outcome of matching a sell against a ledger.
type Consumption struct {
	ConsumedCost float64
	UnmatchedQty float64
}

// MatchedQty returns how much of requested was actually consumed.
func (c Consumption) MatchedQty(requested float64) float64 {
	return requested - c.UnmatchedQty
}

// Ledger is a FIFO queue of open lots for one instrument. The zero value is
// an empty ledger.
type Ledger struct {
	lots []Lot
}

// OpenLot appends a lot to the tail. Non-positive or non-finite quantities
// are ignored.
func (l *Ledger) OpenLot(qty, unitCost float64) {
	if !isPositive(qty) || !isFinite(unitCost) {
		return
	}
	l.lots = append(l.lots, Lot{Quantity: qty, UnitCost: unitCost})
}

// ConsumeLots takes qty from the oldest lots first. Whatever cannot be
// matched is returned as UnmatchedQty.
func (l *Ledger) ConsumeLots(qty float64) Consumption {
	if !isPositive(qty) {
		return Consumption{}
	}
	remaining := qty
	var cost float64
	for remaining > Epsilon && len(l.lots) > 0 {
		head := &l.lots[0]
		take := math.Min(remaining, head.Quantity)
		cost += take * head.UnitCost
		head.Quantity -= take
		remaining -= take
		if head.Quantity <= Epsilon {
			l.lots = l.lots[1:]
		}
	}
	if remaining <= Epsilon {
		remaining = 0
	}
	return Consumption{ConsumedCost: cost, UnmatchedQty: remaining}
}

// ApplySplit scales every lot by ratio, keeping each lot's cost unchanged.
func (l *Ledger) ApplySplit(ratio float64) {
	if !isPositive(ratio) {
		return
	}
	for i := range l.lots {
		l.lots[i].Quantity *= ratio
		l.lots[i].UnitCost /= ratio
	}
}

// Quantity returns the total open quantity.
func (l *Ledger) Quantity() float64 {
	var qty float64
	for _, lot := range l.lots {
		qty += lot.Quantity
	}
	return qty
}

// TotalCost returns the cost basis of all open lots.
func (l *Ledger) TotalCost() float64 {
	var cost float64
	for _, lot := range l.lots {
		cost += lot.Cost()
	}
	return cost
}

// Lots returns a copy of the open lots, oldest first.
func (l *Ledger) Lots() []Lot {
	out := make([]Lot, len(l.lots))
	copy(out, l.lots)
	return out
}

// Len returns the number of open lots.
func (l *Ledger) Len() int {
	return len(l.lots)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func isPositive(v float64) bool {
	return isFinite(v) && v > 0
}
