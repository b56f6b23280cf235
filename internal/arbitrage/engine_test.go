package arbitrage

import (
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/arbscout/internal/models"
)

var testNow = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

func newTestEngine(opts ...Option) *Engine {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return New(opts...)
}

func newQuote(bookmaker, home, away string, prices models.Market) models.Quote {
	return models.Quote{
		ID:          bookmaker + "-" + home,
		MatchID:     strings.ToLower(home + "-" + away),
		Bookmaker:   bookmaker,
		HomeTeam:    home,
		AwayTeam:    away,
		League:      "Premier League",
		MatchTime:   testNow.Add(24 * time.Hour),
		Prices:      prices,
		LastUpdated: testNow,
	}
}

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestComputeEmptyInput(t *testing.T) {
	if got := newTestEngine().Compute(nil, 10000); len(got) != 0 {
		t.Errorf("expected no opportunities, got %d", len(got))
	}
	if got := ComputeArbitrage([]models.Quote{}, 10000); len(got) != 0 {
		t.Errorf("expected no opportunities, got %d", len(got))
	}
}

func TestSingleBookmakerYieldsNothing(t *testing.T) {
	quotes := []models.Quote{
		newQuote("X", "Arsenal", "Chelsea", models.TwoWay{Home: 3.0, Away: 3.0}),
	}
	if got := newTestEngine().Compute(quotes, 10000); len(got) != 0 {
		t.Errorf("expected no opportunities for a single bookmaker, got %d", len(got))
	}

	// The same bookmaker twice still counts once.
	quotes = append(quotes, newQuote("x", "Arsenal", "Chelsea", models.TwoWay{Home: 2.9, Away: 3.1}))
	if got := newTestEngine().Compute(quotes, 10000); len(got) != 0 {
		t.Errorf("expected no opportunities for one distinct bookmaker, got %d", len(got))
	}
}

func TestTrueArbitrageTwoWay(t *testing.T) {
	quotes := []models.Quote{
		newQuote("X", "Arsenal", "Chelsea", models.TwoWay{Home: 2.5, Away: 1.6}),
		newQuote("Y", "Arsenal", "Chelsea", models.TwoWay{Home: 1.7, Away: 2.2}),
	}

	opps := newTestEngine().Compute(quotes, 10000)
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}
	o := opps[0]

	if !approx(o.ArbitragePercentage, 0.4+1/2.2, 1e-12) {
		t.Errorf("ratio = %v, want %v", o.ArbitragePercentage, 0.4+1/2.2)
	}
	if !approx(o.ProfitPercentage, 17.0213, 1e-3) {
		t.Errorf("profit%% = %v, want ~17.0213", o.ProfitPercentage)
	}
	if len(o.Stakes) != 2 {
		t.Fatalf("expected 2 stakes, got %d", len(o.Stakes))
	}

	home, away := o.Stakes[0], o.Stakes[1]
	if home.Outcome != "Home" || home.Bookmaker != "X" || home.Amount != 4681 || home.PotentialReturn != 11703 {
		t.Errorf("unexpected home leg: %+v", home)
	}
	if away.Outcome != "Away" || away.Bookmaker != "Y" || away.Amount != 5319 || away.PotentialReturn != 11702 {
		t.Errorf("unexpected away leg: %+v", away)
	}
	if o.TotalStake != 10000 {
		t.Errorf("total stake = %v, want 10000", o.TotalStake)
	}
	if o.GuaranteedProfit != 1703 {
		t.Errorf("guaranteed profit = %v, want 1703", o.GuaranteedProfit)
	}
	if !o.IsGuaranteed() {
		t.Error("expected a guaranteed opportunity")
	}
	if err := o.Validate(); err != nil {
		t.Errorf("emitted opportunity fails validation: %v", err)
	}
}

func TestThreeWayNearMissIsKeptWithZeroProfit(t *testing.T) {
	quotes := []models.Quote{
		newQuote("A", "Man Utd", "Liverpool", models.ThreeWay{Home: 1.8, Draw: 3.2, Away: 3.5}),
		newQuote("B", "Man Utd", "Liverpool", models.ThreeWay{Home: 2.0, Draw: 3.4, Away: 4.0}),
		newQuote("C", "Man Utd", "Liverpool", models.ThreeWay{Home: 1.9, Draw: 3.6, Away: 4.2}),
	}

	opps := newTestEngine().Compute(quotes, 10000)
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}
	o := opps[0]

	want := 1/2.0 + 1/3.6 + 1/4.2
	if !approx(o.ArbitragePercentage, want, 1e-12) {
		t.Errorf("ratio = %v, want %v", o.ArbitragePercentage, want)
	}
	if o.ProfitPercentage != 0 {
		t.Errorf("profit%% = %v, want 0 for R >= 1", o.ProfitPercentage)
	}
	if o.IsGuaranteed() {
		t.Error("near-miss must not be reported as guaranteed")
	}

	wantBest := []models.BestOdds{
		{Outcome: "Home", Bookmaker: "B", Odds: 2.0},
		{Outcome: "Draw", Bookmaker: "C", Odds: 3.6},
		{Outcome: "Away", Bookmaker: "C", Odds: 4.2},
	}
	if !reflect.DeepEqual(o.BestOdds, wantBest) {
		t.Errorf("best odds = %+v, want %+v", o.BestOdds, wantBest)
	}
	if o.Key != "man utd vs liverpool|1X2" {
		t.Errorf("key = %q", o.Key)
	}
}

func TestThresholdBoundary(t *testing.T) {
	tests := []struct {
		name     string
		away     float64
		included bool
	}{
		{"ratio 1.00", 2.0, true},
		{"ratio 1.02", 1 / 0.52, true},
		{"ratio 1.03", 1 / 0.53, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quotes := []models.Quote{
				newQuote("X", "Home FC", "Away FC", models.TwoWay{Home: 2.0, Away: 1.5}),
				newQuote("Y", "Home FC", "Away FC", models.TwoWay{Home: 1.5, Away: tt.away}),
			}
			opps := newTestEngine().Compute(quotes, 10000)
			if got := len(opps) == 1; got != tt.included {
				t.Fatalf("included = %v, want %v", got, tt.included)
			}
			if tt.included && opps[0].ProfitPercentage != 0 {
				t.Errorf("profit%% = %v, want 0", opps[0].ProfitPercentage)
			}
		})
	}
}

func TestMissingDrawFallsBackToTwoWay(t *testing.T) {
	quotes := []models.Quote{
		newQuote("A", "Lakers", "Celtics", models.TwoWay{Home: 2.1, Away: 1.8}),
		newQuote("B", "Lakers", "Celtics", models.TwoWay{Home: 1.9, Away: 2.05}),
		newQuote("C", "Lakers", "Celtics", models.TwoWay{Home: 2.0, Away: 1.9}),
	}

	opps := newTestEngine().Compute(quotes, 10000)
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}
	if len(opps[0].Stakes) != 2 {
		t.Fatalf("expected 2 stakes, got %d", len(opps[0].Stakes))
	}
	for _, s := range opps[0].Stakes {
		if s.Outcome == "Draw" {
			t.Error("found a synthetic draw leg")
		}
	}
}

func TestZeroDrawThreeWayIsPricedTwoWay(t *testing.T) {
	quotes := []models.Quote{
		newQuote("X", "Arsenal", "Chelsea", models.ThreeWay{Home: 2.5, Draw: 0, Away: 1.6}),
		newQuote("Y", "Arsenal", "Chelsea", models.ThreeWay{Home: 1.7, Draw: 0, Away: 2.2}),
	}

	report := newTestEngine().Analyze(quotes, 10000)
	if report.Dropped != 0 {
		t.Errorf("expected no dropped quotes, got %d", report.Dropped)
	}
	if len(report.Opportunities) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(report.Opportunities))
	}
	o := report.Opportunities[0]
	if len(o.Stakes) != 2 {
		t.Fatalf("expected 2 stakes, got %d", len(o.Stakes))
	}
	if !approx(o.ArbitragePercentage, 0.4+1/2.2, 1e-12) {
		t.Errorf("ratio = %v, want %v", o.ArbitragePercentage, 0.4+1/2.2)
	}
	if o.GuaranteedProfit != 1703 {
		t.Errorf("guaranteed profit = %v, want 1703", o.GuaranteedProfit)
	}
}

func TestPayoutEquality(t *testing.T) {
	markets := [][2]models.Market{
		{models.TwoWay{Home: 2.5, Away: 1.6}, models.TwoWay{Home: 1.7, Away: 2.2}},
		{models.TwoWay{Home: 2.1, Away: 1.5}, models.TwoWay{Home: 1.4, Away: 2.15}},
		{models.ThreeWay{Home: 3.1, Draw: 3.0, Away: 2.6}, models.ThreeWay{Home: 2.7, Draw: 3.9, Away: 3.3}},
		{models.OverUnder{Threshold: 2.5, Over: 2.2, Under: 1.7}, models.OverUnder{Threshold: 2.5, Over: 1.8, Under: 2.05}},
	}
	for _, stake := range []float64{100, 1000, 10000, 2500} {
		for i, m := range markets {
			home := "Team" + string(rune('A'+i))
			quotes := []models.Quote{
				newQuote("X", home, "Rivals", m[0]),
				newQuote("Y", home, "Rivals", m[1]),
			}
			opps := newTestEngine().Compute(quotes, stake)
			if len(opps) != 1 {
				t.Fatalf("market %d: expected 1 opportunity, got %d", i, len(opps))
			}
			o := opps[0]
			if !o.IsGuaranteed() {
				t.Fatalf("market %d: expected R < 1, got %v", i, o.ArbitragePercentage)
			}

			maxOdds := 0.0
			for _, s := range o.Stakes {
				maxOdds = math.Max(maxOdds, s.Odds)
				if s.Amount < 0 || s.Amount != math.Trunc(s.Amount) {
					t.Errorf("market %d: stake %v is not a non-negative integer", i, s.Amount)
				}
				if s.PotentialReturn != math.Round(s.Amount*s.Odds) {
					t.Errorf("market %d: return %v != round(stake*odds)", i, s.PotentialReturn)
				}
			}
			common := o.Stakes[0].PotentialReturn
			for _, s := range o.Stakes[1:] {
				if !approx(s.PotentialReturn, common, maxOdds+1) {
					t.Errorf("market %d stake %v: returns diverge: %v vs %v", i, stake, s.PotentialReturn, common)
				}
			}
			if o.GuaranteedProfit != common-o.TotalStake || o.GuaranteedProfit <= 0 {
				t.Errorf("market %d: guaranteed profit %v, common %v, total %v", i, o.GuaranteedProfit, common, o.TotalStake)
			}
		}
	}
}

func TestRatioMatchesBestOdds(t *testing.T) {
	quotes := []models.Quote{
		newQuote("A", "Inter", "Milan", models.ThreeWay{Home: 2.4, Draw: 3.4, Away: 3.2}),
		newQuote("B", "Inter", "Milan", models.ThreeWay{Home: 2.6, Draw: 3.3, Away: 3.0}),
		newQuote("C", "Inter", "Milan", models.ThreeWay{Home: 2.5, Draw: 3.8, Away: 3.1}),
	}
	for _, o := range newTestEngine().Compute(quotes, 10000) {
		var r float64
		for _, b := range o.BestOdds {
			r += 1 / b.Odds
		}
		if !approx(r, o.ArbitragePercentage, 1e-12) {
			t.Errorf("ratio %v does not match best odds sum %v", o.ArbitragePercentage, r)
		}
	}
}

func TestComputeIsIdempotent(t *testing.T) {
	quotes := []models.Quote{
		newQuote("A", "Arsenal", "Chelsea", models.ThreeWay{Home: 2.6, Draw: 3.6, Away: 3.1}),
		newQuote("B", "Arsenal", "Chelsea", models.ThreeWay{Home: 2.4, Draw: 3.9, Away: 3.4}),
		newQuote("A", "Arsenal", "Chelsea", models.OverUnder{Threshold: 2.5, Over: 2.1, Under: 1.8}),
		newQuote("B", "Arsenal", "Chelsea", models.OverUnder{Threshold: 2.5, Over: 1.85, Under: 2.05}),
	}

	calls := 0
	clock := func() time.Time {
		calls++
		return testNow.Add(time.Duration(calls) * time.Millisecond)
	}
	e := New(WithClock(clock))

	first := e.Compute(quotes, 10000)
	second := e.Compute(quotes, 10000)
	if len(first) == 0 || len(first) != len(second) {
		t.Fatalf("unexpected result sizes: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID == second[i].ID {
			t.Errorf("expected a fresh id per computation, got %q twice", first[i].ID)
		}
		a, b := first[i], second[i]
		a.ID, b.ID = "", ""
		a.LastUpdated, b.LastUpdated = time.Time{}, time.Time{}
		if !reflect.DeepEqual(a, b) {
			t.Errorf("opportunity %d differs between runs:\n%+v\n%+v", i, a, b)
		}
	}
}

func TestOverUnderThresholdsAreSeparateMarkets(t *testing.T) {
	quotes := []models.Quote{
		newQuote("A", "Ajax", "PSV", models.OverUnder{Threshold: 2.5, Over: 2.2, Under: 1.6}),
		newQuote("B", "Ajax", "PSV", models.OverUnder{Threshold: 1.5, Over: 1.3, Under: 3.9}),
	}
	if got := newTestEngine().Compute(quotes, 10000); len(got) != 0 {
		t.Fatalf("lines 1.5 and 2.5 must not be combined, got %d opportunities", len(got))
	}

	quotes = append(quotes,
		newQuote("C", "Ajax", "PSV", models.OverUnder{Threshold: 2.5, Over: 1.7, Under: 2.3}),
	)
	opps := newTestEngine().Compute(quotes, 10000)
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}
	o := opps[0]
	if o.Market != models.MarketTypeOverUnder || o.Threshold != 2.5 {
		t.Errorf("unexpected market %s %v", o.Market, o.Threshold)
	}
	if o.Key != "ajax vs psv|OVER_UNDER:2.5" {
		t.Errorf("key = %q", o.Key)
	}
	if o.Stakes[0].Outcome != "Over" || o.Stakes[1].Outcome != "Under" {
		t.Errorf("unexpected outcome order: %s, %s", o.Stakes[0].Outcome, o.Stakes[1].Outcome)
	}
}

func TestOpportunityIdentity(t *testing.T) {
	quotes := []models.Quote{
		newQuote("X", "Arsenal", "Chelsea", models.TwoWay{Home: 2.5, Away: 1.6}),
		newQuote("Y", "Arsenal", "Chelsea", models.TwoWay{Home: 1.7, Away: 2.2}),
	}
	o := newTestEngine().Compute(quotes, 10000)[0]

	wantID := "arsenal-chelsea-arsenal vs chelsea-1X2-1773500400000"
	if o.ID != wantID {
		t.Errorf("id = %q, want %q", o.ID, wantID)
	}
	if o.Key != "arsenal vs chelsea|1X2" {
		t.Errorf("key = %q", o.Key)
	}
	if o.HomeTeam != "Arsenal" || o.League != "Premier League" || !o.MatchTime.Equal(testNow.Add(24*time.Hour)) {
		t.Errorf("metadata not copied from the reference quote: %+v", o)
	}
}

func TestOpportunityIDsUniqueAcrossSpellings(t *testing.T) {
	quotes := []models.Quote{
		newQuote("X", "Man Utd", "Liverpool", models.TwoWay{Home: 2.5, Away: 1.6}),
		newQuote("Y", "Man Utd", "Liverpool", models.TwoWay{Home: 1.7, Away: 2.2}),
		newQuote("X", "Manchester United", "Liverpool", models.TwoWay{Home: 2.4, Away: 1.6}),
		newQuote("Y", "Manchester United", "Liverpool", models.TwoWay{Home: 1.7, Away: 2.3}),
	}
	for i := range quotes {
		quotes[i].MatchID = "m-42"
	}

	opps := newTestEngine().Compute(quotes, 10000)
	if len(opps) != 2 {
		t.Fatalf("expected 2 opportunities, got %d", len(opps))
	}
	if opps[0].ID == opps[1].ID {
		t.Errorf("duplicate id %q for keys %q and %q", opps[0].ID, opps[0].Key, opps[1].Key)
	}
	for _, o := range opps {
		if o.MatchID != "m-42" {
			t.Errorf("match id = %q, want m-42", o.MatchID)
		}
	}

	// Without a feed match id the group key alone identifies the match.
	for i := range quotes {
		quotes[i].MatchID = ""
	}
	opps = newTestEngine().Compute(quotes, 10000)
	if len(opps) != 2 || opps[0].ID == opps[1].ID {
		t.Fatalf("expected 2 distinct ids, got %+v", opps)
	}
	for _, o := range opps {
		if !strings.HasPrefix(o.ID, o.MatchID+"-1X2-") {
			t.Errorf("id %q should start with the group key %q", o.ID, o.MatchID)
		}
	}
}

func TestResultsSortedByProfit(t *testing.T) {
	quotes := []models.Quote{
		newQuote("X", "Low", "Margin", models.TwoWay{Home: 2.05, Away: 1.9}),
		newQuote("Y", "Low", "Margin", models.TwoWay{Home: 1.9, Away: 2.05}),
		newQuote("X", "High", "Margin", models.TwoWay{Home: 2.5, Away: 1.6}),
		newQuote("Y", "High", "Margin", models.TwoWay{Home: 1.7, Away: 2.2}),
		newQuote("X", "No", "Margin", models.TwoWay{Home: 2.0, Away: 1.9}),
		newQuote("Y", "No", "Margin", models.TwoWay{Home: 1.9, Away: 2.0}),
	}
	opps := newTestEngine().Compute(quotes, 10000)
	if len(opps) != 3 {
		t.Fatalf("expected 3 opportunities, got %d", len(opps))
	}
	for i := 1; i < len(opps); i++ {
		if opps[i].ProfitPercentage > opps[i-1].ProfitPercentage {
			t.Errorf("opportunities not sorted by profit: %v before %v", opps[i-1].ProfitPercentage, opps[i].ProfitPercentage)
		}
	}
	if opps[0].HomeTeam != "High" {
		t.Errorf("best opportunity = %s, want High", opps[0].HomeTeam)
	}
}

func TestMalformedQuotesAreDropped(t *testing.T) {
	bad := newQuote("Z", "", "Chelsea", models.TwoWay{Home: 9, Away: 9})
	noPrices := newQuote("Z", "Arsenal", "Chelsea", nil)
	quotes := []models.Quote{
		bad,
		newQuote("X", "Arsenal", "Chelsea", models.TwoWay{Home: 2.5, Away: 1.6}),
		noPrices,
		newQuote("Y", "Arsenal", "Chelsea", models.TwoWay{Home: 1.7, Away: 2.2}),
	}

	report := newTestEngine().Analyze(quotes, 0)
	if report.Dropped != 2 {
		t.Errorf("dropped = %d, want 2", report.Dropped)
	}
	if report.Groups != 1 || len(report.Opportunities) != 1 {
		t.Fatalf("groups = %d, opportunities = %d", report.Groups, len(report.Opportunities))
	}
	if report.Opportunities[0].TotalStake != DefaultTotalStake {
		t.Errorf("non-positive stake should fall back to %v, got %v", DefaultTotalStake, report.Opportunities[0].TotalStake)
	}
}

func TestIsolateSkipsPanickingGroup(t *testing.T) {
	groups := []MatchGroup{{Key: "a"}, {Key: "boom"}, {Key: "c"}}
	out, failed := isolate(groups, func(g MatchGroup) []string {
		if g.Key == "boom" {
			var m map[string]int
			m["x"]++
		}
		return []string{g.Key}
	})

	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	if !reflect.DeepEqual(out, []string{"a", "c"}) {
		t.Errorf("out = %v, want [a c]", out)
	}
}

func TestAnalyzeRecoversFromFaultOutsideGroups(t *testing.T) {
	// A nil variant pointer passes the nil check but panics in validation,
	// which runs before per-group isolation.
	broken := newQuote("X", "Arsenal", "Chelsea", (*models.TwoWay)(nil))
	quotes := []models.Quote{
		newQuote("A", "Ajax", "PSV", models.TwoWay{Home: 2.5, Away: 1.6}),
		newQuote("B", "Ajax", "PSV", models.TwoWay{Home: 1.7, Away: 2.2}),
		broken,
	}

	report := newTestEngine().Analyze(quotes, 10000)
	if len(report.Opportunities) != 0 || report.Groups != 0 {
		t.Errorf("expected an empty report, got %+v", report)
	}
}
