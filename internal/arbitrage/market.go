package arbitrage

import (
	"strconv"

	"github.com/rewired-gh/arbscout/internal/models"
)

// Outcome labels a stake leg.
type Outcome string

const (
	OutcomeHome  Outcome = "Home"
	OutcomeDraw  Outcome = "Draw"
	OutcomeAway  Outcome = "Away"
	OutcomeOver  Outcome = "Over"
	OutcomeUnder Outcome = "Under"
)

// MarketBucket is the quotes of one match that price the same market. Each
// over/under threshold is its own bucket.
type MarketBucket struct {
	Key       string
	Type      models.MarketType
	Threshold float64
	Quotes    []models.Quote
}

// MarketKey returns "1X2" or "OVER_UNDER:<threshold>".
func MarketKey(t models.MarketType, threshold float64) string {
	if t == models.MarketTypeOverUnder {
		return string(t) + ":" + strconv.FormatFloat(threshold, 'f', -1, 64)
	}
	return string(t)
}

// SplitMarkets buckets a match's quotes by market, in order of first
// occurrence.
func SplitMarkets(quotes []models.Quote) []MarketBucket {
	var buckets []MarketBucket
	index := make(map[string]int)

	for _, q := range quotes {
		var threshold float64
		if ou, ok := q.Prices.(models.OverUnder); ok {
			threshold = ou.Threshold
		}
		key := MarketKey(q.MarketType(), threshold)
		idx, ok := index[key]
		if !ok {
			idx = len(buckets)
			index[key] = idx
			buckets = append(buckets, MarketBucket{Key: key, Type: q.MarketType(), Threshold: threshold})
		}
		buckets[idx].Quotes = append(buckets[idx].Quotes, q)
	}

	return buckets
}

// Price is the best available odds for one outcome and who offers them.
type Price struct {
	Outcome   Outcome
	Bookmaker string
	Odds      float64
}

// BestPrices picks the highest odds per outcome across the bucket. On ties
// the first quote wins. A 1X2 bucket where nobody prices the draw comes back
// two-way. Returns nil when a required outcome has no price.
func BestPrices(b MarketBucket) []Price {
	switch b.Type {
	case models.MarketType1X2:
		return best1X2(b.Quotes)
	case models.MarketTypeOverUnder:
		return bestOverUnder(b.Quotes)
	}
	return nil
}

func best1X2(quotes []models.Quote) []Price {
	home := Price{Outcome: OutcomeHome}
	draw := Price{Outcome: OutcomeDraw}
	away := Price{Outcome: OutcomeAway}

	for _, q := range quotes {
		switch p := q.Prices.(type) {
		case models.TwoWay:
			home.offer(q.Bookmaker, p.Home)
			away.offer(q.Bookmaker, p.Away)
		case models.ThreeWay:
			home.offer(q.Bookmaker, p.Home)
			draw.offer(q.Bookmaker, p.Draw)
			away.offer(q.Bookmaker, p.Away)
		}
	}

	if home.Odds <= 0 || away.Odds <= 0 {
		return nil
	}
	if draw.Odds > 0 {
		return []Price{home, draw, away}
	}
	return []Price{home, away}
}

func bestOverUnder(quotes []models.Quote) []Price {
	over := Price{Outcome: OutcomeOver}
	under := Price{Outcome: OutcomeUnder}

	for _, q := range quotes {
		if p, ok := q.Prices.(models.OverUnder); ok {
			over.offer(q.Bookmaker, p.Over)
			under.offer(q.Bookmaker, p.Under)
		}
	}

	if over.Odds <= 0 || under.Odds <= 0 {
		return nil
	}
	return []Price{over, under}
}

func (p *Price) offer(bookmaker string, odds float64) {
	if odds > p.Odds {
		p.Odds = odds
		p.Bookmaker = bookmaker
	}
}

// uniqueBookmakers counts distinct bookmakers, case-insensitively.
func uniqueBookmakers(quotes []models.Quote) int {
	seen := make(map[string]struct{}, len(quotes))
	for _, q := range quotes {
		seen[normalizeBookmaker(q.Bookmaker)] = struct{}{}
	}
	return len(seen)
}
