// Package oddsfeed supplies quote snapshots to the refresh cycle: an HTTP
// client for an odds feed, a seeded synthetic generator, and the adapter
// that turns the feed's wire format into models.Quote.
package oddsfeed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rewired-gh/arbscout/internal/logger"
	"github.com/rewired-gh/arbscout/internal/models"
)

// ErrEmptyFeed is returned when a feed answers with no quotes at all.
// Callers treat it as "no opportunities", not as an outage.
var ErrEmptyFeed = errors.New("odds feed returned no quotes")

// Source produces the latest quote snapshot.
type Source interface {
	GetLatestQuotes(ctx context.Context) ([]models.Quote, error)
}

// WireQuote is a quote as the feed serves it. Older producers send the team
// names as team_home/team_away; both spellings are accepted.
type WireQuote struct {
	ID         string `json:"id"`
	MatchID    string `json:"match_id"`
	Bookmaker  string `json:"bookmaker"`
	HomeTeam   string `json:"home_team,omitempty"`
	AwayTeam   string `json:"away_team,omitempty"`
	TeamHome   string `json:"team_home,omitempty"`
	TeamAway   string `json:"team_away,omitempty"`
	League     string `json:"league"`
	MatchTime  string `json:"match_time"`
	MarketType string `json:"market_type"`

	HomeOdds  *float64 `json:"home_odds,omitempty"`
	DrawOdds  *float64 `json:"draw_odds,omitempty"`
	AwayOdds  *float64 `json:"away_odds,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
	OverOdds  *float64 `json:"over_odds,omitempty"`
	UnderOdds *float64 `json:"under_odds,omitempty"`

	LastUpdated    string   `json:"last_updated"`
	Liquidity      *float64 `json:"liquidity,omitempty"`
	SuspensionRisk *float64 `json:"suspension_risk,omitempty"`
}

// ToQuote converts w into the canonical model.
func (w WireQuote) ToQuote() (models.Quote, error) {
	home := firstNonEmpty(w.HomeTeam, w.TeamHome)
	away := firstNonEmpty(w.AwayTeam, w.TeamAway)
	if home == "" || away == "" {
		return models.Quote{}, errors.New("missing team names")
	}

	prices, err := w.market()
	if err != nil {
		return models.Quote{}, err
	}

	matchTime, err := parseTime(w.MatchTime)
	if err != nil {
		return models.Quote{}, fmt.Errorf("invalid match_time: %w", err)
	}
	updated, err := parseTime(w.LastUpdated)
	if err != nil {
		return models.Quote{}, fmt.Errorf("invalid last_updated: %w", err)
	}

	q := models.Quote{
		ID:             w.ID,
		MatchID:        w.MatchID,
		Bookmaker:      w.Bookmaker,
		HomeTeam:       home,
		AwayTeam:       away,
		League:         w.League,
		MatchTime:      matchTime,
		Prices:         prices,
		LastUpdated:    updated,
		Liquidity:      w.Liquidity,
		SuspensionRisk: w.SuspensionRisk,
	}
	if err := q.Validate(); err != nil {
		return models.Quote{}, err
	}
	return q, nil
}

func (w WireQuote) market() (models.Market, error) {
	switch models.MarketType(strings.ToUpper(w.MarketType)) {
	case models.MarketType1X2, "":
		if w.HomeOdds == nil || w.AwayOdds == nil {
			return nil, errors.New("missing home or away odds")
		}
		if w.DrawOdds != nil && *w.DrawOdds > 0 {
			return models.ThreeWay{Home: *w.HomeOdds, Draw: *w.DrawOdds, Away: *w.AwayOdds}, nil
		}
		return models.TwoWay{Home: *w.HomeOdds, Away: *w.AwayOdds}, nil
	case models.MarketTypeOverUnder:
		if w.Threshold == nil || w.OverOdds == nil || w.UnderOdds == nil {
			return nil, errors.New("missing over/under threshold or odds")
		}
		return models.OverUnder{Threshold: *w.Threshold, Over: *w.OverOdds, Under: *w.UnderOdds}, nil
	default:
		return nil, fmt.Errorf("unsupported market type %q", w.MarketType)
	}
}

// FromQuote is the inverse of ToQuote, always using the current team field
// names.
func FromQuote(q models.Quote) WireQuote {
	w := WireQuote{
		ID:             q.ID,
		MatchID:        q.MatchID,
		Bookmaker:      q.Bookmaker,
		HomeTeam:       q.HomeTeam,
		AwayTeam:       q.AwayTeam,
		League:         q.League,
		MarketType:     string(q.MarketType()),
		Liquidity:      q.Liquidity,
		SuspensionRisk: q.SuspensionRisk,
	}
	if !q.MatchTime.IsZero() {
		w.MatchTime = q.MatchTime.UTC().Format(time.RFC3339)
	}
	if !q.LastUpdated.IsZero() {
		w.LastUpdated = q.LastUpdated.UTC().Format(time.RFC3339)
	}
	switch p := q.Prices.(type) {
	case models.TwoWay:
		w.HomeOdds, w.AwayOdds = models.Float(p.Home), models.Float(p.Away)
	case models.ThreeWay:
		w.HomeOdds, w.DrawOdds, w.AwayOdds = models.Float(p.Home), models.Float(p.Draw), models.Float(p.Away)
	case models.OverUnder:
		w.Threshold, w.OverOdds, w.UnderOdds = models.Float(p.Threshold), models.Float(p.Over), models.Float(p.Under)
	}
	return w
}

// ConvertAll converts a batch, dropping and logging the quotes that cannot
// be converted.
func ConvertAll(wire []WireQuote) ([]models.Quote, int) {
	quotes := make([]models.Quote, 0, len(wire))
	dropped := 0
	for _, w := range wire {
		q, err := w.ToQuote()
		if err != nil {
			logger.Warn("Dropping feed quote %q from %q: %v", w.ID, w.Bookmaker, err)
			dropped++
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, dropped
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
