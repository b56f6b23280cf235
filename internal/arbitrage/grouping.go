package arbitrage

import (
	"strings"

	"github.com/rewired-gh/arbscout/internal/logger"
	"github.com/rewired-gh/arbscout/internal/models"
)

// MatchGroup is every quote seen for one real-world match.
type MatchGroup struct {
	Key    string
	Quotes []models.Quote
}

// MatchKey normalizes a fixture to "home vs away" in lower case. Names are
// compared exactly after lower-casing; different spellings of the same team
// end up in different groups.
func MatchKey(home, away string) string {
	return strings.ToLower(home) + " vs " + strings.ToLower(away)
}

// GroupByMatch partitions quotes by match key, in order of first
// occurrence. Quotes that fail validation are dropped and counted.
func GroupByMatch(quotes []models.Quote) ([]MatchGroup, int) {
	var groups []MatchGroup
	index := make(map[string]int)
	dropped := 0

	for i := range quotes {
		q := quotes[i]
		if err := q.Validate(); err != nil {
			logger.Warn("Dropping quote %q from %q: %v", q.ID, q.Bookmaker, err)
			dropped++
			continue
		}
		key := MatchKey(q.HomeTeam, q.AwayTeam)
		idx, ok := index[key]
		if !ok {
			idx = len(groups)
			index[key] = idx
			groups = append(groups, MatchGroup{Key: key})
		}
		groups[idx].Quotes = append(groups[idx].Quotes, q)
	}

	return groups, dropped
}
