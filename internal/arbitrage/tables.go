package arbitrage

import "strings"

// Tables holds the fixed weight lookups the scorers read. They are
// illustrative constants, not fitted values. A Tables value is copied when
// handed to New, so later mutation by the caller has no effect on an Engine.
type Tables struct {
	// PremiumBookmakers is the allow-list that keeps the confidence score
	// from taking the "no premium bookmaker" penalty.
	PremiumBookmakers []string
	// Reliability maps a bookmaker name to a 0-1 execution reliability.
	Reliability        map[string]float64
	DefaultReliability float64
	// DefaultLiquidity (0-10) and DefaultSuspensionRisk (0-5) stand in for
	// quotes that carry no risk inputs.
	DefaultLiquidity      float64
	DefaultSuspensionRisk float64
}

// DefaultTables returns the stock weights.
func DefaultTables() Tables {
	return Tables{
		PremiumBookmakers: []string{"pinnacle", "bet365", "betfair", "william hill"},
		Reliability: map[string]float64{
			"pinnacle":     0.98,
			"betfair":      0.95,
			"bet365":       0.92,
			"william hill": 0.90,
			"paddy power":  0.87,
			"unibet":       0.86,
			"ladbrokes":    0.85,
			"betway":       0.84,
			"coral":        0.83,
			"888sport":     0.80,
		},
		DefaultReliability:    0.75,
		DefaultLiquidity:      5.0,
		DefaultSuspensionRisk: 2.0,
	}
}

type weights struct {
	premium            map[string]struct{}
	reliability        map[string]float64
	defaultReliability float64
	defaultLiquidity   float64
	defaultSuspension  float64
}

func (t Tables) compile() weights {
	w := weights{
		premium:            make(map[string]struct{}, len(t.PremiumBookmakers)),
		reliability:        make(map[string]float64, len(t.Reliability)),
		defaultReliability: t.DefaultReliability,
		defaultLiquidity:   t.DefaultLiquidity,
		defaultSuspension:  t.DefaultSuspensionRisk,
	}
	for _, name := range t.PremiumBookmakers {
		w.premium[normalizeBookmaker(name)] = struct{}{}
	}
	for name, r := range t.Reliability {
		w.reliability[normalizeBookmaker(name)] = r
	}
	return w
}

func (w weights) isPremium(bookmaker string) bool {
	_, ok := w.premium[normalizeBookmaker(bookmaker)]
	return ok
}

func (w weights) reliabilityOf(bookmaker string) float64 {
	if r, ok := w.reliability[normalizeBookmaker(bookmaker)]; ok {
		return r
	}
	return w.defaultReliability
}

func normalizeBookmaker(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
