package arbitrage

import (
	"math"

	"github.com/rewired-gh/arbscout/internal/models"
)

// ExpectedValue weights each leg's return by its raw implied probability.
// The weights sum to R, not 1: this is the vig-inclusive market view.
func ExpectedValue(stakes []models.Stake) float64 {
	return math.Round(expectedValue(stakes))
}

// Volatility is the spread of the returns around ExpectedValue under the
// same raw weights.
func Volatility(stakes []models.Stake) float64 {
	ev := expectedValue(stakes)
	var sum float64
	for _, s := range stakes {
		d := s.PotentialReturn - ev
		sum += s.ImpliedProbability * d * d
	}
	return math.Round(math.Sqrt(sum))
}

func expectedValue(stakes []models.Stake) float64 {
	var ev float64
	for _, s := range stakes {
		ev += s.PotentialReturn * s.ImpliedProbability
	}
	return ev
}
