// Package ranked scores finished ranked games.
package ranked

import "math"

// KFactor returns the rating volatility for a team average.
func KFactor(avg float64) float64 {
	switch {
	case avg < 2100:
		return 32
	case avg < 2400:
		return 24
	default:
		return 16
	}
}

// Compute returns how many points the winners gain and the losers lose. The
// K factor is chosen from the winners' average rating. Either team being
// empty scores nothing.
func Compute(winners, losers []int) (win, loss int) {
	if len(winners) == 0 || len(losers) == 0 {
		return 0, 0
	}
	a, b := average(winners), average(losers)
	k := KFactor(a)

	expected := 1 / (1 + math.Pow(10, (b-a)/400))
	win = int(math.RoundToEven(k * (1 - expected)))
	loss = int(math.Abs(math.RoundToEven(-k * expected)))
	return win, loss
}

// Apply adds delta to elo, never going below zero.
func Apply(elo, delta int) int {
	return max(0, elo+delta)
}

func average(elos []int) float64 {
	sum := 0
	for _, e := range elos {
		sum += e
	}
	return float64(sum) / float64(len(elos))
}
