// Package models defines the core domain entities: bookmaker quotes, their
// market variants, and the arbitrage opportunities derived from them.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MarketType tags the bet category a quote prices.
type MarketType string

const (
	MarketType1X2       MarketType = "1X2"
	MarketTypeOverUnder MarketType = "OVER_UNDER"
)

// Market is the set of prices a single quote carries. Exactly one of
// TwoWay, ThreeWay or OverUnder.
type Market interface {
	Type() MarketType
	validate() error
}

// TwoWay is a head-to-head market with no draw price offered.
type TwoWay struct {
	Home float64 `json:"home"`
	Away float64 `json:"away"`
}

// ThreeWay is a 1X2 market with a draw price.
type ThreeWay struct {
	Home float64 `json:"home"`
	Draw float64 `json:"draw"`
	Away float64 `json:"away"`
}

// OverUnder is a total-goals market around a threshold (2.5, 1.5, ...).
type OverUnder struct {
	Threshold float64 `json:"threshold"`
	Over      float64 `json:"over"`
	Under     float64 `json:"under"`
}

func (TwoWay) Type() MarketType    { return MarketType1X2 }
func (ThreeWay) Type() MarketType  { return MarketType1X2 }
func (OverUnder) Type() MarketType { return MarketTypeOverUnder }

func (m TwoWay) validate() error {
	if !validOdds(m.Home) || !validOdds(m.Away) {
		return errors.New("home and away odds must be >= 1.0")
	}
	return nil
}

// A zero draw means the draw is not offered; the market is then priced as
// two-way.
func (m ThreeWay) validate() error {
	if !validOdds(m.Home) || !validOdds(m.Away) {
		return errors.New("home and away odds must be >= 1.0")
	}
	if m.Draw != 0 && !validOdds(m.Draw) {
		return errors.New("draw odds must be 0 or >= 1.0")
	}
	return nil
}

func (m OverUnder) validate() error {
	if m.Threshold <= 0 {
		return errors.New("over/under threshold must be positive")
	}
	if !validOdds(m.Over) || !validOdds(m.Under) {
		return errors.New("over and under odds must be >= 1.0")
	}
	return nil
}

func validOdds(o float64) bool {
	return o >= 1.0
}

// Quote is one bookmaker's published prices for one market of one match.
// Team names are canonical here; legacy field naming is reconciled by the
// feed adapter before a Quote is built.
type Quote struct {
	ID        string    `json:"id"`
	MatchID   string    `json:"match_id"`
	Bookmaker string    `json:"bookmaker"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	League    string    `json:"league"`
	MatchTime time.Time `json:"match_time"`
	Prices    Market    `json:"-"`

	LastUpdated time.Time `json:"last_updated"`

	// Optional risk inputs: liquidity on a 0-10 scale, suspension risk on 0-5.
	Liquidity      *float64 `json:"liquidity,omitempty"`
	SuspensionRisk *float64 `json:"suspension_risk,omitempty"`
}

// MarketType returns the tag of the quote's market variant.
func (q *Quote) MarketType() MarketType {
	if q.Prices == nil {
		return ""
	}
	return q.Prices.Type()
}

// Validate checks that a quote can take part in arbitrage evaluation.
func (q *Quote) Validate() error {
	if strings.TrimSpace(q.HomeTeam) == "" || strings.TrimSpace(q.AwayTeam) == "" {
		return errors.New("home and away team names must not be empty")
	}
	if strings.TrimSpace(q.Bookmaker) == "" {
		return errors.New("bookmaker must not be empty")
	}
	if q.Prices == nil {
		return errors.New("quote carries no market prices")
	}
	if err := q.Prices.validate(); err != nil {
		return fmt.Errorf("invalid %s prices: %w", q.Prices.Type(), err)
	}
	if q.Liquidity != nil && *q.Liquidity < 0 {
		return errors.New("liquidity must not be negative")
	}
	if q.SuspensionRisk != nil && *q.SuspensionRisk < 0 {
		return errors.New("suspension risk must not be negative")
	}
	return nil
}

// Float returns a pointer to v, for the optional quote fields.
func Float(v float64) *float64 {
	return &v
}

type quoteAlias Quote

type quoteJSON struct {
	quoteAlias
	MarketType MarketType      `json:"market_type"`
	Prices     json.RawMessage `json:"prices"`
}

// MarshalJSON encodes the market variant next to its type tag.
func (q Quote) MarshalJSON() ([]byte, error) {
	out := quoteJSON{quoteAlias: quoteAlias(q), MarketType: q.MarketType()}
	if q.Prices != nil {
		raw, err := json.Marshal(q.Prices)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal prices: %w", err)
		}
		out.Prices = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the market variant from its type tag. A 1X2 payload
// without a draw price decodes as TwoWay.
func (q *Quote) UnmarshalJSON(data []byte) error {
	var in quoteJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*q = Quote(in.quoteAlias)
	q.Prices = nil
	if len(in.Prices) == 0 {
		return nil
	}
	switch in.MarketType {
	case MarketType1X2:
		var m ThreeWay
		if err := json.Unmarshal(in.Prices, &m); err != nil {
			return fmt.Errorf("failed to unmarshal 1X2 prices: %w", err)
		}
		if m.Draw > 0 {
			q.Prices = m
		} else {
			q.Prices = TwoWay{Home: m.Home, Away: m.Away}
		}
	case MarketTypeOverUnder:
		var m OverUnder
		if err := json.Unmarshal(in.Prices, &m); err != nil {
			return fmt.Errorf("failed to unmarshal over/under prices: %w", err)
		}
		q.Prices = m
	default:
		return fmt.Errorf("unknown market type %q", in.MarketType)
	}
	return nil
}
