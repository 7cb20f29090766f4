// Package util provides small numeric helpers shared across the simulator.
package util

import "math"

// RoundToTick rounds x to the nearest tick increment; the mock feed uses
// it to quantize generated prices. A zero tick returns x unchanged and a
// negative tick rounds by its magnitude.
func RoundToTick(x, tick float64) float64 {
	if tick == 0 {
		return x
	}
	tick = math.Abs(tick)
	return math.Round(x/tick) * tick
}
