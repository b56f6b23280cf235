// Package monitor runs the refresh cycle around the arbitrage engine. It
// re-keys each computation against the previous one by match and market,
// persists the result and decides which opportunities are worth a
// notification.
package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/arbscout/internal/arbitrage"
	"github.com/rewired-gh/arbscout/internal/logger"
	"github.com/rewired-gh/arbscout/internal/models"
	"github.com/rewired-gh/arbscout/internal/storage"
)

type Config struct {
	TotalStake         float64
	TopK               int
	CooldownMultiplier int
	GuaranteedOnly     bool
	Enhanced           bool
	EnhancedOptions    arbitrage.EnhancedOptions
}

func DefaultConfig() Config {
	return Config{
		TotalStake:         arbitrage.DefaultTotalStake,
		TopK:               10,
		CooldownMultiplier: 5,
		GuaranteedOnly:     true,
		EnhancedOptions:    arbitrage.DefaultEnhancedOptions(),
	}
}

// Result is what one refresh produced, split by how each key compares to
// the previous refresh.
type Result struct {
	CycleID   string
	Current   []models.Opportunity
	New       []models.Opportunity
	StillOpen []models.Opportunity
	Closed    []string
	Enhanced  []models.EnhancedOpportunity

	Quotes       int
	Groups       int
	Dropped      int
	FailedGroups int
}

type notifiedRecord struct {
	Profit float64
	SentAt time.Time
}

type Monitor struct {
	storage *storage.Storage
	engine  *arbitrage.Engine
	config  Config
	now     func() time.Time

	mu       sync.RWMutex
	open     map[string]models.Opportunity
	latest   []models.Opportunity
	enhanced []models.EnhancedOpportunity
	quotes   []models.Quote

	notifiedMu sync.Mutex
	notified   map[string]notifiedRecord
}

// New creates a monitor and restores the last snapshot and open set from
// storage, so a restart does not report everything as new.
func New(s *storage.Storage, engine *arbitrage.Engine, config Config) *Monitor {
	m := &Monitor{
		storage:  s,
		engine:   engine,
		config:   config,
		now:      time.Now,
		open:     make(map[string]models.Opportunity),
		notified: make(map[string]notifiedRecord),
	}

	quotes, err := s.LoadQuotes()
	if err != nil {
		logger.Warn("Failed to load persisted quotes: %v", err)
	} else {
		m.quotes = quotes
	}

	records, err := s.GetOpenOpportunities()
	if err != nil {
		logger.Warn("Failed to load open opportunities: %v", err)
		return m
	}
	for _, r := range records {
		m.open[r.Key] = r.Opportunity
		m.latest = append(m.latest, r.Opportunity)
		if r.NotifiedAt != nil {
			m.notified[r.Key] = notifiedRecord{Profit: r.ProfitPercentage, SentAt: *r.NotifiedAt}
		}
	}
	logger.Info("Restored %d quotes and %d open opportunities", len(m.quotes), len(records))

	return m
}

// ProcessSnapshot evaluates a full quote snapshot and diffs the outcome
// against the previous snapshot by opportunity key.
func (m *Monitor) ProcessSnapshot(quotes []models.Quote) Result {
	now := m.now()
	report := m.engine.Analyze(quotes, m.config.TotalStake)

	var enhanced []models.EnhancedOpportunity
	if m.config.Enhanced {
		enhanced = m.engine.ComputeEnhanced(quotes, m.config.TotalStake, m.config.EnhancedOptions)
	}

	res := Result{
		CycleID:      uuid.NewString(),
		Current:      report.Opportunities,
		Enhanced:     enhanced,
		Quotes:       len(quotes),
		Groups:       report.Groups,
		Dropped:      report.Dropped,
		FailedGroups: report.FailedGroups,
	}

	m.mu.Lock()
	current := make(map[string]models.Opportunity, len(report.Opportunities))
	for _, o := range report.Opportunities {
		current[o.Key] = o
		if _, seen := m.open[o.Key]; seen {
			res.StillOpen = append(res.StillOpen, o)
		} else {
			res.New = append(res.New, o)
		}
	}
	for key := range m.open {
		if _, ok := current[key]; !ok {
			res.Closed = append(res.Closed, key)
		}
	}
	sort.Strings(res.Closed)

	m.open = current
	m.latest = report.Opportunities
	m.enhanced = enhanced
	m.quotes = quotes
	m.mu.Unlock()

	if err := m.storage.ReplaceQuotes(quotes, now); err != nil {
		logger.Warn("Failed to persist quote snapshot: %v", err)
	}
	if err := m.storage.RecordCycle(report.Opportunities, res.Closed, now); err != nil {
		logger.Warn("Failed to record cycle %s: %v", res.CycleID, err)
	}
	if err := m.storage.RotateOpportunities(); err != nil {
		logger.Warn("Failed to rotate opportunities: %v", err)
	}

	logger.Debug("Cycle %s: %d quotes, %d groups, %d open (%d new, %d closed), %d dropped, %d failed groups",
		res.CycleID, res.Quotes, res.Groups, len(res.Current), len(res.New), len(res.Closed),
		res.Dropped, res.FailedGroups)

	return res
}

// Latest returns the opportunities of the most recent refresh, best profit
// first.
func (m *Monitor) Latest() []models.Opportunity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Opportunity, len(m.latest))
	copy(out, m.latest)
	return out
}

// LatestEnhanced returns the enhanced results of the most recent refresh.
// Empty unless the enhanced evaluator is enabled.
func (m *Monitor) LatestEnhanced() []models.EnhancedOpportunity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.EnhancedOpportunity, len(m.enhanced))
	copy(out, m.enhanced)
	return out
}

// Quotes returns the most recent quote snapshot.
func (m *Monitor) Quotes() []models.Quote {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Quote, len(m.quotes))
	copy(out, m.quotes)
	return out
}

// FilterRecentlySent drops opportunities notified within cooldown, unless
// their profit has improved since.
func (m *Monitor) FilterRecentlySent(opps []models.Opportunity, cooldown time.Duration) []models.Opportunity {
	now := m.now()
	m.notifiedMu.Lock()
	defer m.notifiedMu.Unlock()

	var result []models.Opportunity
	for _, o := range opps {
		rec, exists := m.notified[o.Key]
		if exists && now.Sub(rec.SentAt) < cooldown && o.ProfitPercentage <= rec.Profit {
			continue
		}
		result = append(result, o)
	}
	return result
}

// RecordNotified remembers that opps were sent.
func (m *Monitor) RecordNotified(opps []models.Opportunity) {
	now := m.now()
	keys := make([]string, 0, len(opps))

	m.notifiedMu.Lock()
	for _, o := range opps {
		m.notified[o.Key] = notifiedRecord{Profit: o.ProfitPercentage, SentAt: now}
		keys = append(keys, o.Key)
	}
	m.notifiedMu.Unlock()

	if err := m.storage.MarkNotified(keys, now); err != nil {
		logger.Warn("Failed to mark opportunities notified: %v", err)
	}
}

// PostProcess picks what to notify from a refresh: matches that have not
// started, true arbitrage only when configured, the top K by profit, minus
// anything still in cooldown.
func (m *Monitor) PostProcess(opps []models.Opportunity, pollInterval time.Duration) []models.Opportunity {
	now := m.now()

	var candidates []models.Opportunity
	for _, o := range opps {
		if o.IsExpired(now) {
			continue
		}
		if m.config.GuaranteedOnly && !o.IsGuaranteed() {
			continue
		}
		candidates = append(candidates, o)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ProfitPercentage > candidates[j].ProfitPercentage
	})

	if len(candidates) > m.config.TopK {
		candidates = candidates[:m.config.TopK]
	}

	cooldown := time.Duration(m.config.CooldownMultiplier) * pollInterval
	return m.FilterRecentlySent(candidates, cooldown)
}
