package monitor

import (
	"testing"
	"time"

	"github.com/rewired-gh/arbscout/internal/arbitrage"
	"github.com/rewired-gh/arbscout/internal/models"
	"github.com/rewired-gh/arbscout/internal/storage"
)

var testNow = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

const arsenalKey = "arsenal vs chelsea|1X2"

func newTestStorage(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.New(100, ":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestMonitor(t *testing.T, s *storage.Storage, cfg Config) *Monitor {
	t.Helper()
	clock := func() time.Time { return testNow }
	m := New(s, arbitrage.New(arbitrage.WithClock(clock)), cfg)
	m.now = clock
	return m
}

func quote(bookmaker string, home, away float64) models.Quote {
	return models.Quote{
		ID:          bookmaker + "-ars-che",
		MatchID:     "ars-che",
		Bookmaker:   bookmaker,
		HomeTeam:    "Arsenal",
		AwayTeam:    "Chelsea",
		League:      "Premier League",
		MatchTime:   testNow.Add(24 * time.Hour),
		Prices:      models.TwoWay{Home: home, Away: away},
		LastUpdated: testNow,
	}
}

func arbSnapshot() []models.Quote {
	return []models.Quote{quote("X", 2.5, 1.6), quote("Y", 1.7, 2.2)}
}

func flatSnapshot() []models.Quote {
	return []models.Quote{quote("X", 1.8, 1.8), quote("Y", 1.85, 1.8)}
}

func opp(key string, profit float64, guaranteed bool, matchTime time.Time) models.Opportunity {
	ratio := 0.9
	if !guaranteed {
		ratio = 1.01
	}
	return models.Opportunity{
		Key:                 key,
		ProfitPercentage:    profit,
		ArbitragePercentage: ratio,
		MatchTime:           matchTime,
	}
}

func TestProcessSnapshot_Lifecycle(t *testing.T) {
	s := newTestStorage(t)
	m := newTestMonitor(t, s, DefaultConfig())

	res := m.ProcessSnapshot(arbSnapshot())
	if len(res.New) != 1 || res.New[0].Key != arsenalKey {
		t.Fatalf("first snapshot: expected 1 new opportunity %q, got %+v", arsenalKey, res.New)
	}
	if res.CycleID == "" {
		t.Error("expected a cycle id")
	}
	if res.Quotes != 2 || res.Groups != 1 {
		t.Errorf("expected 2 quotes in 1 group, got %d in %d", res.Quotes, res.Groups)
	}

	res = m.ProcessSnapshot(arbSnapshot())
	if len(res.New) != 0 || len(res.StillOpen) != 1 {
		t.Fatalf("second snapshot: expected 0 new and 1 still open, got %d and %d", len(res.New), len(res.StillOpen))
	}

	res = m.ProcessSnapshot(flatSnapshot())
	if len(res.Current) != 0 {
		t.Fatalf("flat snapshot should have no opportunities, got %d", len(res.Current))
	}
	if len(res.Closed) != 1 || res.Closed[0] != arsenalKey {
		t.Fatalf("expected %q to close, got %v", arsenalKey, res.Closed)
	}

	rec, err := s.GetOpportunity(arsenalKey)
	if err != nil {
		t.Fatalf("GetOpportunity failed: %v", err)
	}
	if rec.ClosedAt == nil {
		t.Error("expected the stored opportunity to be closed")
	}
	if len(m.Latest()) != 0 {
		t.Errorf("expected Latest to be empty, got %d", len(m.Latest()))
	}
}

func TestNew_RestoresPersistedState(t *testing.T) {
	s := newTestStorage(t)
	first := newTestMonitor(t, s, DefaultConfig())
	first.ProcessSnapshot(arbSnapshot())
	first.RecordNotified(first.Latest())

	restored := newTestMonitor(t, s, DefaultConfig())
	if got := len(restored.Latest()); got != 1 {
		t.Fatalf("expected 1 restored opportunity, got %d", got)
	}
	if got := len(restored.Quotes()); got != 2 {
		t.Fatalf("expected 2 restored quotes, got %d", got)
	}

	res := restored.ProcessSnapshot(arbSnapshot())
	if len(res.New) != 0 || len(res.StillOpen) != 1 {
		t.Errorf("restart should not report the open opportunity as new: new=%d open=%d", len(res.New), len(res.StillOpen))
	}

	// The notification record survives the restart as well.
	if got := restored.FilterRecentlySent(res.Current, time.Hour); len(got) != 0 {
		t.Errorf("expected the restored notification to suppress a resend, got %d", len(got))
	}
}

func TestProcessSnapshot_Enhanced(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enhanced = true
	cfg.EnhancedOptions.MaxRiskLevel = 1

	m := newTestMonitor(t, newTestStorage(t), cfg)
	res := m.ProcessSnapshot(arbSnapshot())
	if len(res.Enhanced) != 1 {
		t.Fatalf("expected 1 enhanced opportunity, got %d", len(res.Enhanced))
	}
	if got := m.LatestEnhanced(); len(got) != 1 || got[0].Key != arsenalKey {
		t.Errorf("unexpected LatestEnhanced: %+v", got)
	}

	cfg.Enhanced = false
	m = newTestMonitor(t, newTestStorage(t), cfg)
	if res := m.ProcessSnapshot(arbSnapshot()); len(res.Enhanced) != 0 {
		t.Errorf("enhanced results should be empty when disabled, got %d", len(res.Enhanced))
	}
}

func TestPostProcess(t *testing.T) {
	future := testNow.Add(time.Hour)
	opps := []models.Opportunity{
		opp("a", 1.0, true, future),
		opp("b", 5.0, true, future),
		opp("c", 3.0, true, future),
		opp("near", 0, false, future),
		opp("started", 9.0, true, testNow.Add(-time.Minute)),
	}

	tests := []struct {
		name           string
		topK           int
		guaranteedOnly bool
		want           []string
	}{
		{"top k guaranteed", 2, true, []string{"b", "c"}},
		{"all guaranteed", 10, true, []string{"b", "c", "a"}},
		{"near misses allowed", 10, false, []string{"b", "c", "a", "near"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.TopK = tt.topK
			cfg.GuaranteedOnly = tt.guaranteedOnly
			m := newTestMonitor(t, newTestStorage(t), cfg)

			got := m.PostProcess(opps, time.Minute)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d opportunities, got %d", len(tt.want), len(got))
			}
			for i, key := range tt.want {
				if got[i].Key != key {
					t.Errorf("position %d: expected %q, got %q", i, key, got[i].Key)
				}
			}
		})
	}
}

func TestFilterRecentlySent(t *testing.T) {
	s := newTestStorage(t)
	m := newTestMonitor(t, s, DefaultConfig())
	future := testNow.Add(time.Hour)

	m.RecordNotified([]models.Opportunity{opp("a", 2.0, true, future)})

	if got := m.FilterRecentlySent([]models.Opportunity{opp("a", 2.0, true, future)}, time.Hour); len(got) != 0 {
		t.Errorf("same profit within cooldown should be suppressed, got %d", len(got))
	}
	if got := m.FilterRecentlySent([]models.Opportunity{opp("a", 2.5, true, future)}, time.Hour); len(got) != 1 {
		t.Errorf("improved profit should pass, got %d", len(got))
	}
	if got := m.FilterRecentlySent([]models.Opportunity{opp("b", 1.0, true, future)}, time.Hour); len(got) != 1 {
		t.Errorf("never-sent opportunity should pass, got %d", len(got))
	}

	m.now = func() time.Time { return testNow.Add(2 * time.Hour) }
	if got := m.FilterRecentlySent([]models.Opportunity{opp("a", 2.0, true, future)}, time.Hour); len(got) != 1 {
		t.Errorf("expired cooldown should pass, got %d", len(got))
	}
}

func TestPostProcess_Cooldown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CooldownMultiplier = 5
	m := newTestMonitor(t, newTestStorage(t), cfg)
	future := testNow.Add(time.Hour)
	opps := []models.Opportunity{opp("a", 2.0, true, future)}

	m.RecordNotified(m.PostProcess(opps, time.Minute))

	m.now = func() time.Time { return testNow.Add(4 * time.Minute) }
	if got := m.PostProcess(opps, time.Minute); len(got) != 0 {
		t.Errorf("expected cooldown of 5 polls to suppress, got %d", len(got))
	}
	m.now = func() time.Time { return testNow.Add(6 * time.Minute) }
	if got := m.PostProcess(opps, time.Minute); len(got) != 1 {
		t.Errorf("expected resend after cooldown, got %d", len(got))
	}
}
