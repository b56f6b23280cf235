package arbitrage

import (
	"math"
	"time"

	"github.com/rewired-gh/arbscout/internal/models"
)

// RiskInputs are the per-market figures the risk score is built from.
type RiskInputs struct {
	Ratio         float64
	AvgLiquidity  float64
	AvgSuspension float64
	TimeToMatch   time.Duration
	Bookmakers    int
}

// RiskScore folds the inputs into a 0-100 score; lower is safer.
func RiskScore(in RiskInputs) float64 {
	var score float64

	switch {
	case in.Ratio < 0.95:
		// no penalty
	case in.Ratio < 0.97:
		score += 10
	case in.Ratio < 0.99:
		score += 20
	case in.Ratio < 1.0:
		score += 30
	default:
		score += 50
	}

	score -= math.Min(20, in.AvgLiquidity*2)
	score += math.Min(20, in.AvgSuspension*4)

	switch {
	case in.TimeToMatch < time.Hour:
		score += 20
	case in.TimeToMatch < 3*time.Hour:
		score += 10
	case in.TimeToMatch < 12*time.Hour:
		score += 5
	}

	score -= math.Min(10, float64(in.Bookmakers)*2)

	return clamp(score, 0, 100)
}

// RiskLevelFor buckets a risk score.
func RiskLevelFor(score float64) models.RiskLevel {
	switch {
	case score < 30:
		return models.RiskLow
	case score < 60:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

// ConfidenceScore rates an opportunity 1-10 from its overround, whether a
// premium bookmaker is involved and how old the freshest quote is.
func ConfidenceScore(ratio float64, hasPremium bool, staleness time.Duration) int {
	score := 10.0
	if ratio > 1 {
		score -= math.Min(5, (ratio-1)*10)
	}
	if !hasPremium {
		score -= 2
	}
	switch {
	case staleness > 30*time.Minute:
		score -= 3
	case staleness > 15*time.Minute:
		score -= 2
	case staleness > 5*time.Minute:
		score -= 1
	}
	return int(math.Round(clamp(score, 1, 10)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
