// Package prediction implements binary prediction markets priced by a
// logarithmic market scoring rule (LMSR) automated market maker.
package prediction

import "math"

// cost is the LMSR cost function C(q) = b·ln(e^(qYes/b) + e^(qNo/b)).
// Computed with max-subtraction so large share counts cannot overflow
// the exponentials.
func cost(b, qYes, qNo float64) float64 {
	x := qYes / b
	y := qNo / b
	m := math.Max(x, y)
	return b * (m + math.Log(math.Exp(x-m)+math.Exp(y-m)))
}

// priceYes is the instantaneous YES price, e^(qYes/b) / (e^(qYes/b) +
// e^(qNo/b)). Always in (0, 1); the NO price is its complement, so the
// two sides sum to exactly 1.
func priceYes(b, qYes, qNo float64) float64 {
	x := qYes / b
	y := qNo / b
	m := math.Max(x, y)
	ey := math.Exp(x - m)
	en := math.Exp(y - m)
	return ey / (ey + en)
}

// tradeCost returns C(after) − C(before) for adding delta shares to one
// side. Positive delta (buy) yields a positive cost; negative delta
// (sell) yields a negative value whose magnitude is the refund.
func tradeCost(b, qYes, qNo, delta float64, side Side) float64 {
	before := cost(b, qYes, qNo)
	var after float64
	if side == SideYes {
		after = cost(b, qYes+delta, qNo)
	} else {
		after = cost(b, qYes, qNo+delta)
	}
	return after - before
}
