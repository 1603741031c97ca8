// Package util provides common utility functions for price and strike
// calculations.
package util

import "math"

// RoundToTick rounds x to the nearest tick increment.
// For example, with tick=0.01, 1.2345 becomes 1.23 or 1.24 depending on rounding.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}

// RoundToStep rounds x to the nearest multiple of an integer strike step.
// Used to size hedge wings from a straddle premium, e.g. step=50 turns a
// 212.4 premium into a 200-point wing offset.
func RoundToStep(x float64, step int) int {
	if step <= 0 {
		return int(math.Round(x))
	}
	return step * int(math.Round(x/float64(step)))
}
