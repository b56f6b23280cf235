package arbitrage

import (
	"math"
	"sort"
	"time"

	"github.com/rewired-gh/arbscout/internal/logger"
	"github.com/rewired-gh/arbscout/internal/models"
)

const (
	minDynamicThreshold = 0.995
	minTimeDecay        = 0.2
	decayTimeConstant   = 30 * time.Minute
	windowOpensBefore   = 4 * time.Hour
	windowClosesBefore  = 30 * time.Minute
	windowConfidence    = 0.85
	efficiencyScale     = 100
)

// EnhancedOptions tunes ComputeEnhanced.
type EnhancedOptions struct {
	MinProfitPercentage float64
	// MaxRiskLevel is compared against the 0-1 execution risk.
	MaxRiskLevel float64
	// TimeHorizonHours is advisory. Old quotes are cut by the time decay
	// filter, not by this value.
	TimeHorizonHours  float64
	EnableCrossMarket bool
	DynamicThresholds bool
}

func DefaultEnhancedOptions() EnhancedOptions {
	return EnhancedOptions{
		MinProfitPercentage: 0.1,
		MaxRiskLevel:        0.7,
		TimeHorizonHours:    24,
		EnableCrossMarket:   true,
		DynamicThresholds:   true,
	}
}

// ComputeEnhancedArbitrage runs the enhanced evaluator with the default
// tables and wall clock.
func ComputeEnhancedArbitrage(quotes []models.Quote, totalStake float64, opts EnhancedOptions) []models.EnhancedOpportunity {
	return New().ComputeEnhanced(quotes, totalStake, opts)
}

// ComputeEnhanced evaluates quotes like Compute and then weighs each
// opportunity by bookmaker reliability, market stability and quote age.
// Results are ordered by risk-adjusted profit.
func (e *Engine) ComputeEnhanced(quotes []models.Quote, totalStake float64, opts EnhancedOptions) (out []models.EnhancedOpportunity) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Enhanced arbitrage calculation failed: %v", r)
			out = nil
		}
	}()

	if totalStake <= 0 {
		totalStake = DefaultTotalStake
	}
	now := e.now()

	groups, _ := GroupByMatch(quotes)
	out, _ = isolate(groups, func(g MatchGroup) []models.EnhancedOpportunity {
		var res []models.EnhancedOpportunity
		for _, b := range SplitMarkets(g.Quotes) {
			if eo, ok := e.enhance(g, b, totalStake, now, opts); ok {
				res = append(res, eo)
			}
		}
		if opts.EnableCrossMarket {
			res = append(res, e.DetectCrossMarket(g)...)
		}
		return append(res, e.DetectValueBets(g)...)
	})

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RiskAdjustedProfit != out[j].RiskAdjustedProfit {
			return out[i].RiskAdjustedProfit > out[j].RiskAdjustedProfit
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func (e *Engine) enhance(g MatchGroup, b MarketBucket, totalStake float64, now time.Time, opts EnhancedOptions) (models.EnhancedOpportunity, bool) {
	a, ok := e.analyzeBucket(b)
	if !ok {
		return models.EnhancedOpportunity{}, false
	}

	timeToMatch := b.Quotes[0].MatchTime.Sub(now)
	reliability := e.averageReliability(a.prices)

	threshold := e.tolerance
	if opts.DynamicThresholds {
		threshold = DynamicThreshold(e.tolerance, a.avgLiquidity, reliability, timeToMatch)
	}
	if !WithinThreshold(a.ratio, threshold) {
		return models.EnhancedOpportunity{}, false
	}

	opp := e.opportunity(g, a, totalStake, now)
	stability := MarketStability(a.ratio)
	execRisk := ExecutionRisk(reliability, stability, a.avgLiquidity)
	decay := TimeDecay(now.Sub(a.newest))

	eo := models.EnhancedOpportunity{
		Opportunity:          opp,
		DynamicThreshold:     threshold,
		BookmakerReliability: reliability,
		MarketStability:      stability,
		ExecutionRisk:        execRisk,
		MarketEfficiency:     MarketEfficiency(b),
		TimeDecayFactor:      decay,
		RiskAdjustedProfit:   opp.ProfitPercentage * (1 - execRisk) * decay,
		ExecutionWindow:      OptimalExecutionWindow(opp.MatchTime),
	}

	if opp.ProfitPercentage < opts.MinProfitPercentage ||
		execRisk > opts.MaxRiskLevel ||
		decay <= minTimeDecay {
		return eo, false
	}
	return eo, true
}

// DetectCrossMarket is reserved for arbitrage across different market types
// of one match. It finds nothing yet.
func (e *Engine) DetectCrossMarket(g MatchGroup) []models.EnhancedOpportunity {
	return nil
}

// DetectValueBets is reserved for single-leg value bets. It finds nothing
// yet.
func (e *Engine) DetectValueBets(g MatchGroup) []models.EnhancedOpportunity {
	return nil
}

// DynamicThreshold adjusts the acceptance threshold for market conditions.
// Thin liquidity tightens it (never below 0.995) and lower bookmaker
// reliability tightens it further. Inside two hours of kick-off the
// threshold is multiplied by 1.01, which raises it and admits more markets;
// beyond two days it is multiplied by 0.998, which lowers it. These factors
// are kept as tuned even though they read backwards.
func DynamicThreshold(base, avgLiquidity, avgReliability float64, timeToMatch time.Duration) float64 {
	t := base - (1-clamp(avgLiquidity, 0, 10)/10)*0.02
	t = math.Max(t, minDynamicThreshold)
	t *= 0.98 + 0.02*clamp(avgReliability, 0, 1)

	switch {
	case timeToMatch < 2*time.Hour:
		t *= 1.01
	case timeToMatch > 48*time.Hour:
		t *= 0.998
	}
	return t
}

// MarketStability is 1 at R = 0.95 and falls off linearly either side.
func MarketStability(ratio float64) float64 {
	return math.Max(0, 1-math.Abs(ratio-0.95))
}

// ExecutionRisk scores from 0 to 1 how hard it is to get every leg on at
// the quoted prices.
func ExecutionRisk(avgReliability, stability, avgLiquidity float64) float64 {
	return clamp(1-(avgReliability+stability+avgLiquidity/10)/3, 0, 1)
}

// TimeDecay discounts an opportunity by the age of its freshest quote.
func TimeDecay(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	return math.Exp(-age.Minutes() / decayTimeConstant.Minutes())
}

// MarketEfficiency grows with how much bookmakers disagree on the implied
// probability of each outcome, on a 0-1 scale.
func MarketEfficiency(b MarketBucket) float64 {
	perOutcome := make(map[Outcome]*RunningStats)
	var order []Outcome

	for _, q := range b.Quotes {
		for _, p := range quotePrices(q) {
			if p.Odds <= 0 {
				continue
			}
			s, ok := perOutcome[p.Outcome]
			if !ok {
				s = &RunningStats{}
				perOutcome[p.Outcome] = s
				order = append(order, p.Outcome)
			}
			s.Add(1 / p.Odds)
		}
	}
	if len(order) == 0 {
		return 0
	}

	var variance RunningStats
	for _, o := range order {
		variance.Add(perOutcome[o].Variance())
	}
	return math.Min(1, variance.Mean(0)*efficiencyScale)
}

// OptimalExecutionWindow is a fixed window from four hours to thirty
// minutes before kick-off.
func OptimalExecutionWindow(matchTime time.Time) models.ExecutionWindow {
	return models.ExecutionWindow{
		Start:      matchTime.Add(-windowOpensBefore),
		End:        matchTime.Add(-windowClosesBefore),
		Confidence: windowConfidence,
	}
}

func (e *Engine) averageReliability(prices []Price) float64 {
	var s RunningStats
	for _, p := range prices {
		s.Add(e.weights.reliabilityOf(p.Bookmaker))
	}
	return s.Mean(e.weights.defaultReliability)
}

func quotePrices(q models.Quote) []Price {
	switch p := q.Prices.(type) {
	case models.TwoWay:
		return []Price{{OutcomeHome, q.Bookmaker, p.Home}, {OutcomeAway, q.Bookmaker, p.Away}}
	case models.ThreeWay:
		return []Price{{OutcomeHome, q.Bookmaker, p.Home}, {OutcomeDraw, q.Bookmaker, p.Draw}, {OutcomeAway, q.Bookmaker, p.Away}}
	case models.OverUnder:
		return []Price{{OutcomeOver, q.Bookmaker, p.Over}, {OutcomeUnder, q.Bookmaker, p.Under}}
	}
	return nil
}
