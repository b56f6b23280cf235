// Package kelly sizes single bets with the Kelly criterion. It is a what-if
// calculator next to the arbitrage engine and plays no part in staking an
// arbitrage.
package kelly

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Input describes a single bet.
type Input struct {
	// Probability is the bettor's own estimate that the outcome happens.
	Probability float64 `json:"probability"`
	// Odds are decimal odds.
	Odds     float64 `json:"odds"`
	Bankroll float64 `json:"bankroll"`
	// Fraction scales full Kelly down (0.25 = quarter Kelly).
	Fraction float64 `json:"fraction"`
	// MaxStakePct caps the stake as a share of bankroll when positive.
	MaxStakePct float64 `json:"max_stake_pct,omitempty"`
}

// Result is the recommended sizing. Money is rounded to cents.
type Result struct {
	FullKelly      float64  `json:"full_kelly"`
	AppliedKelly   float64  `json:"applied_kelly"`
	FullStake      float64  `json:"full_stake"`
	Stake          float64  `json:"stake"`
	Edge           float64  `json:"edge"`
	ExpectedProfit float64  `json:"expected_profit"`
	Capped         bool     `json:"capped"`
	Warnings       []string `json:"warnings,omitempty"`
}

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Validate checks the input ranges.
func (in Input) Validate() error {
	if in.Probability <= 0 || in.Probability >= 1 {
		return errors.New("probability must be between 0 and 1")
	}
	if in.Odds <= 1 {
		return errors.New("odds must be greater than 1")
	}
	if in.Bankroll <= 0 {
		return errors.New("bankroll must be positive")
	}
	if in.Fraction <= 0 || in.Fraction > 1 {
		return errors.New("fraction must be in (0, 1]")
	}
	if in.MaxStakePct < 0 || in.MaxStakePct > 1 {
		return errors.New("max stake percentage must be in [0, 1]")
	}
	return nil
}

// Calculate returns the Kelly stake for in. A bet without an edge gets a
// zero stake, not an error.
func Calculate(in Input) (*Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	p := decimal.NewFromFloat(in.Probability)
	d := decimal.NewFromFloat(in.Odds)
	bankroll := decimal.NewFromFloat(in.Bankroll)
	fraction := decimal.NewFromFloat(in.Fraction)

	// f* = (p*d - 1) / (d - 1)
	edge := p.Mul(d).Sub(one)
	full := edge.Div(d.Sub(one))
	if full.IsNegative() {
		full = decimal.Zero
	}
	if full.GreaterThan(one) {
		full = one
	}

	applied := full.Mul(fraction)
	stake := bankroll.Mul(applied)

	res := &Result{}
	if in.MaxStakePct > 0 {
		limit := bankroll.Mul(decimal.NewFromFloat(in.MaxStakePct))
		if stake.GreaterThan(limit) {
			stake = limit
			applied = decimal.NewFromFloat(in.MaxStakePct)
			res.Capped = true
		}
	}
	stake = stake.Round(2)

	res.FullKelly = full.Round(6).InexactFloat64()
	res.AppliedKelly = applied.Round(6).InexactFloat64()
	res.FullStake = bankroll.Mul(full).Round(2).InexactFloat64()
	res.Stake = stake.InexactFloat64()
	res.Edge = edge.Round(6).InexactFloat64()
	res.ExpectedProfit = stake.Mul(edge).Round(2).InexactFloat64()

	if !edge.IsPositive() {
		res.Warnings = append(res.Warnings, "no edge at these odds")
	} else if edge.Mul(hundred).LessThan(decimal.NewFromInt(2)) {
		res.Warnings = append(res.Warnings, "edge below 2%")
	}
	if stake.GreaterThan(bankroll.Mul(decimal.NewFromFloat(0.05))) {
		res.Warnings = append(res.Warnings, "stake above 5% of bankroll")
	}

	return res, nil
}
