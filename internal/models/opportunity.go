package models

import (
	"errors"
	"time"
)

// RiskLevel is the coarse 3-tier risk label.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low Risk"
	RiskMedium RiskLevel = "Medium Risk"
	RiskHigh   RiskLevel = "High Risk"
)

// Stake is one leg of the staking plan.
type Stake struct {
	Outcome            string  `json:"outcome"`
	Bookmaker          string  `json:"bookmaker"`
	Odds               float64 `json:"odds"`
	Amount             float64 `json:"stake"`
	PotentialReturn    float64 `json:"potential_return"`
	ImpliedProbability float64 `json:"implied_probability"`
}

// BestOdds is the display summary of the best price for one outcome.
type BestOdds struct {
	Outcome   string  `json:"outcome"`
	Bookmaker string  `json:"bookmaker"`
	Odds      float64 `json:"odds"`
}

// Opportunity is a detected arbitrage (or near-miss within tolerance) for one
// match and market. ID is regenerated on every computation; Key is stable
// across refreshes and is what consumers re-key on.
type Opportunity struct {
	ID        string     `json:"id"`
	Key       string     `json:"key"`
	MatchID   string     `json:"match_id"`
	HomeTeam  string     `json:"home_team"`
	AwayTeam  string     `json:"away_team"`
	League    string     `json:"league"`
	MatchTime time.Time  `json:"match_time"`
	Market    MarketType `json:"market_type"`
	Threshold float64    `json:"threshold,omitempty"`

	ArbitragePercentage float64 `json:"arbitrage_percentage"`
	ProfitPercentage    float64 `json:"profit_percentage"`
	GuaranteedProfit    float64 `json:"guaranteed_profit"`
	TotalStake          float64 `json:"total_stake"`

	Stakes   []Stake    `json:"stakes"`
	BestOdds []BestOdds `json:"best_odds"`

	RiskScore       float64   `json:"risk_score"`
	RiskLevel       RiskLevel `json:"risk_level"`
	ConfidenceScore int       `json:"confidence_score"`
	ExpectedValue   float64   `json:"expected_value"`
	Volatility      float64   `json:"volatility"`

	LastUpdated time.Time `json:"last_updated"`
}

// IsGuaranteed reports whether the opportunity is a true arbitrage (R < 1)
// rather than a near-miss kept for visibility.
func (o *Opportunity) IsGuaranteed() bool {
	return o.ArbitragePercentage < 1
}

// IsExpired reports whether the match has already started at now.
func (o *Opportunity) IsExpired(now time.Time) bool {
	return o.MatchTime.Before(now)
}

// Validate checks the structural invariants of an emitted opportunity.
func (o *Opportunity) Validate() error {
	if o.Key == "" {
		return errors.New("opportunity key must not be empty")
	}
	switch o.Market {
	case MarketType1X2:
		if len(o.Stakes) != 2 && len(o.Stakes) != 3 {
			return errors.New("1X2 opportunity must have 2 or 3 stakes")
		}
	case MarketTypeOverUnder:
		if len(o.Stakes) != 2 {
			return errors.New("over/under opportunity must have 2 stakes")
		}
	default:
		return errors.New("unknown market type")
	}
	if len(o.BestOdds) != len(o.Stakes) {
		return errors.New("best odds must cover every staked outcome")
	}
	var total float64
	for _, s := range o.Stakes {
		if s.Amount < 0 {
			return errors.New("stakes must not be negative")
		}
		if s.Odds < 1.0 {
			return errors.New("stake odds must be >= 1.0")
		}
		total += s.Amount
	}
	if total != o.TotalStake {
		return errors.New("total stake must equal the sum of stakes")
	}
	if o.ConfidenceScore < 1 || o.ConfidenceScore > 10 {
		return errors.New("confidence score must be between 1 and 10")
	}
	return nil
}

// ExecutionWindow is the advisory time range for placing the bets.
type ExecutionWindow struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Confidence float64   `json:"confidence"`
}

// EnhancedOpportunity extends Opportunity with the enhanced evaluator's
// adjustment factors.
type EnhancedOpportunity struct {
	Opportunity

	DynamicThreshold     float64         `json:"dynamic_threshold"`
	BookmakerReliability float64         `json:"bookmaker_reliability"`
	MarketStability      float64         `json:"market_stability"`
	ExecutionRisk        float64         `json:"execution_risk"`
	MarketEfficiency     float64         `json:"market_efficiency"`
	TimeDecayFactor      float64         `json:"time_decay_factor"`
	RiskAdjustedProfit   float64         `json:"risk_adjusted_profit"`
	ExecutionWindow      ExecutionWindow `json:"execution_window"`
}
