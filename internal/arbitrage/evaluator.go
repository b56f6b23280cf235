package arbitrage

import (
	"math"

	"github.com/rewired-gh/arbscout/internal/models"
)

const (
	// DefaultTolerance accepts near-misses up to a 2% overround next to true
	// arbitrage (R < 1). Near-misses are reported with 0% profit.
	DefaultTolerance = 1.02
	// DefaultTotalStake is used when the caller passes a non-positive budget.
	DefaultTotalStake = 10000.0
)

// Ratio is the arbitrage ratio R, the sum of inverse odds. Outcomes without a
// price are left out rather than treated as infinite odds.
func Ratio(prices []Price) float64 {
	var r float64
	for _, p := range prices {
		if p.Odds > 0 {
			r += 1 / p.Odds
		}
	}
	return r
}

// WithinThreshold reports whether r is at or below threshold, allowing for
// float noise at the boundary.
func WithinThreshold(r, threshold float64) bool {
	return r > 0 && r <= threshold+ratioEpsilon
}

// ProfitPercentage is (1/R - 1) * 100 for a true arbitrage and 0 otherwise.
func ProfitPercentage(r float64) float64 {
	if r <= 0 || r >= 1 {
		return 0
	}
	return (1/r - 1) * 100
}

// StakePlan is a rounded stake distribution and the profit it locks in.
type StakePlan struct {
	Stakes           []models.Stake
	TotalStake       float64
	GuaranteedProfit float64
}

// DistributeStakes splits totalStake across the outcomes in proportion to
// their implied probability so every outcome pays the same. Stakes and
// returns are rounded to whole currency units; the guaranteed profit is
// measured against the rounded total actually staked.
func DistributeStakes(prices []Price, totalStake float64) StakePlan {
	r := Ratio(prices)
	if r <= 0 {
		return StakePlan{}
	}

	plan := StakePlan{Stakes: make([]models.Stake, 0, len(prices))}
	for _, p := range prices {
		if p.Odds <= 0 {
			continue
		}
		implied := 1 / p.Odds
		stake := math.Round(totalStake * implied / r)
		plan.Stakes = append(plan.Stakes, models.Stake{
			Outcome:            string(p.Outcome),
			Bookmaker:          p.Bookmaker,
			Odds:               p.Odds,
			Amount:             stake,
			PotentialReturn:    math.Round(stake * p.Odds),
			ImpliedProbability: implied,
		})
		plan.TotalStake += stake
	}

	if len(plan.Stakes) > 0 {
		plan.GuaranteedProfit = plan.Stakes[0].PotentialReturn - plan.TotalStake
	}
	return plan
}

func bestOddsSummary(prices []Price) []models.BestOdds {
	out := make([]models.BestOdds, 0, len(prices))
	for _, p := range prices {
		if p.Odds <= 0 {
			continue
		}
		out = append(out, models.BestOdds{Outcome: string(p.Outcome), Bookmaker: p.Bookmaker, Odds: p.Odds})
	}
	return out
}
