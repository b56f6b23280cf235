// Package arbitrage finds arbitrage and near-arbitrage staking plans in a
// snapshot of bookmaker quotes.
//
// An Engine is stateless between calls: every run regroups the whole
// snapshot and derives the opportunity set from scratch. Concurrent calls
// are safe; callers that keep the latest result must serialize that write
// themselves.
package arbitrage

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rewired-gh/arbscout/internal/logger"
	"github.com/rewired-gh/arbscout/internal/models"
)

// Engine evaluates quote snapshots.
type Engine struct {
	weights   weights
	tolerance float64
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock used for time-to-match, staleness and
// ids.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithTables injects the weight tables.
func WithTables(t Tables) Option {
	return func(e *Engine) {
		e.weights = t.compile()
	}
}

// WithTolerance replaces the fixed 1.02 acceptance threshold.
func WithTolerance(tolerance float64) Option {
	return func(e *Engine) {
		e.tolerance = tolerance
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		weights:   DefaultTables().compile(),
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Report is the outcome of one Analyze run.
type Report struct {
	Opportunities []models.Opportunity
	Groups        int
	Dropped       int
	FailedGroups  int
}

// ComputeArbitrage evaluates quotes with the default tables and wall clock.
func ComputeArbitrage(quotes []models.Quote, totalStake float64) []models.Opportunity {
	return New().Compute(quotes, totalStake)
}

// Compute returns the opportunities found in quotes, best profit first.
func (e *Engine) Compute(quotes []models.Quote, totalStake float64) []models.Opportunity {
	return e.Analyze(quotes, totalStake).Opportunities
}

// Analyze evaluates quotes and reports what was found along with how many
// quotes were dropped and how many match groups failed. It never panics: a
// fault inside one match group skips that group, and a fault anywhere else
// yields an empty report.
func (e *Engine) Analyze(quotes []models.Quote, totalStake float64) (report Report) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Arbitrage calculation failed: %v", r)
			report = Report{}
		}
	}()

	if totalStake <= 0 {
		totalStake = DefaultTotalStake
	}
	now := e.now()

	groups, dropped := GroupByMatch(quotes)
	opps, failed := isolate(groups, func(g MatchGroup) []models.Opportunity {
		var out []models.Opportunity
		for _, b := range SplitMarkets(g.Quotes) {
			a, ok := e.analyzeBucket(b)
			if !ok || !WithinThreshold(a.ratio, e.tolerance) {
				continue
			}
			out = append(out, e.opportunity(g, a, totalStake, now))
		}
		return out
	})

	sortOpportunities(opps)
	logger.Debug("Evaluated %d quotes in %d match groups: %d opportunities, %d dropped, %d failed",
		len(quotes), len(groups), len(opps), dropped, failed)

	return Report{
		Opportunities: opps,
		Groups:        len(groups),
		Dropped:       dropped,
		FailedGroups:  failed,
	}
}

// isolate runs fn over every group, recovering from a panic in any single
// group so the others still produce results.
func isolate[T any](groups []MatchGroup, fn func(MatchGroup) []T) ([]T, int) {
	var out []T
	failed := 0
	for _, g := range groups {
		res, err := safeEval(g, fn)
		if err != nil {
			logger.Error("Skipping match group %q: %v", g.Key, err)
			failed++
			continue
		}
		out = append(out, res...)
	}
	return out, failed
}

func safeEval[T any](g MatchGroup, fn func(MatchGroup) []T) (res []T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(g), nil
}

// bucketAnalysis is what both evaluators need to know about one market.
type bucketAnalysis struct {
	bucket        MarketBucket
	prices        []Price
	ratio         float64
	bookmakers    int
	avgLiquidity  float64
	avgSuspension float64
	newest        time.Time
	hasPremium    bool
}

// analyzeBucket finds the best prices of a market and the averages the
// scorers read. ok is false when fewer than two bookmakers quote the market
// or a required outcome is unpriced.
func (e *Engine) analyzeBucket(b MarketBucket) (bucketAnalysis, bool) {
	a := bucketAnalysis{bucket: b, bookmakers: uniqueBookmakers(b.Quotes)}
	if a.bookmakers < 2 {
		return a, false
	}
	a.prices = BestPrices(b)
	if a.prices == nil {
		return a, false
	}
	a.ratio = Ratio(a.prices)

	var liquidity, suspension RunningStats
	for _, q := range b.Quotes {
		if q.Liquidity != nil {
			liquidity.Add(*q.Liquidity)
		} else {
			liquidity.Add(e.weights.defaultLiquidity)
		}
		if q.SuspensionRisk != nil {
			suspension.Add(*q.SuspensionRisk)
		} else {
			suspension.Add(e.weights.defaultSuspension)
		}
		if q.LastUpdated.After(a.newest) {
			a.newest = q.LastUpdated
		}
		if e.weights.isPremium(q.Bookmaker) {
			a.hasPremium = true
		}
	}
	a.avgLiquidity = liquidity.Mean(e.weights.defaultLiquidity)
	a.avgSuspension = suspension.Mean(e.weights.defaultSuspension)

	return a, true
}

func (e *Engine) opportunity(g MatchGroup, a bucketAnalysis, totalStake float64, now time.Time) models.Opportunity {
	ref := a.bucket.Quotes[0]
	plan := DistributeStakes(a.prices, totalStake)

	matchID := ref.MatchID
	idPrefix := g.Key
	if matchID == "" {
		matchID = g.Key
	} else {
		// Feeds may share one match id across spellings that group apart.
		idPrefix = matchID + "-" + g.Key
	}

	risk := RiskScore(RiskInputs{
		Ratio:         a.ratio,
		AvgLiquidity:  a.avgLiquidity,
		AvgSuspension: a.avgSuspension,
		TimeToMatch:   ref.MatchTime.Sub(now),
		Bookmakers:    a.bookmakers,
	})

	return models.Opportunity{
		ID:                  idPrefix + "-" + a.bucket.Key + "-" + strconv.FormatInt(now.UnixMilli(), 10),
		Key:                 g.Key + "|" + a.bucket.Key,
		MatchID:             matchID,
		HomeTeam:            ref.HomeTeam,
		AwayTeam:            ref.AwayTeam,
		League:              ref.League,
		MatchTime:           ref.MatchTime,
		Market:              a.bucket.Type,
		Threshold:           a.bucket.Threshold,
		ArbitragePercentage: a.ratio,
		ProfitPercentage:    ProfitPercentage(a.ratio),
		GuaranteedProfit:    plan.GuaranteedProfit,
		TotalStake:          plan.TotalStake,
		Stakes:              plan.Stakes,
		BestOdds:            bestOddsSummary(a.prices),
		RiskScore:           risk,
		RiskLevel:           RiskLevelFor(risk),
		ConfidenceScore:     ConfidenceScore(a.ratio, a.hasPremium, now.Sub(a.newest)),
		ExpectedValue:       ExpectedValue(plan.Stakes),
		Volatility:          Volatility(plan.Stakes),
		LastUpdated:         now,
	}
}

func sortOpportunities(opps []models.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].ProfitPercentage != opps[j].ProfitPercentage {
			return opps[i].ProfitPercentage > opps[j].ProfitPercentage
		}
		if opps[i].ArbitragePercentage != opps[j].ArbitragePercentage {
			return opps[i].ArbitragePercentage < opps[j].ArbitragePercentage
		}
		return opps[i].Key < opps[j].Key
	})
}
