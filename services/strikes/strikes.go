// Package strikes resolves at-the-money strikes and strike ladders from a
// spot price and the instrument's strike step.
package strikes

import "math"

// ATM returns the strike nearest the spot price, rounding half-up:
// a spot exactly on a half-step boundary resolves to the higher strike.
// One rule, applied everywhere.
func ATM(spot, step float64) float64 {
	if step <= 0 {
		return spot
	}
	return math.Floor(spot/step+0.5) * step
}

// Ladder returns 2*depth+1 strikes centered on the ATM strike, ascending.
// Depth is a configuration parameter, not a hard-coded ±1.
func Ladder(spot, step float64, depth int) []float64 {
	if depth < 0 {
		depth = 0
	}
	atm := ATM(spot, step)
	out := make([]float64, 0, 2*depth+1)
	for i := -depth; i <= depth; i++ {
		out = append(out, atm+float64(i)*step)
	}
	return out
}
