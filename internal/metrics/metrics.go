// Package metrics exposes Prometheus collectors for the refresh cycle.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewired-gh/arbscout/internal/models"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal    *prometheus.CounterVec
	DetectedTotal  *prometheus.CounterVec
	QuotesDropped  prometheus.Counter
	FailedGroups   prometheus.Counter
	NotifiedTotal  prometheus.Counter
	OpenOpps       prometheus.Gauge
	SnapshotQuotes prometheus.Gauge
	BestProfitPct  prometheus.Gauge
	CycleDuration  prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbscout_cycles_total",
				Help: "Refresh cycles by outcome",
			},
			[]string{"status"},
		),
		DetectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbscout_opportunities_detected_total",
				Help: "Newly opened opportunities by market type",
			},
			[]string{"market"},
		),
		QuotesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbscout_quotes_dropped_total",
			Help: "Malformed quotes skipped by the evaluator",
		}),
		OpenOpps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbscout_open_opportunities",
			Help: "Opportunities in the latest refresh",
		}),
		SnapshotQuotes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbscout_snapshot_quotes",
			Help: "Quotes in the latest snapshot",
		}),
		BestProfitPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbscout_best_profit_percentage",
			Help: "Highest profit percentage in the latest refresh",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbscout_cycle_duration_seconds",
			Help:    "Refresh cycle duration",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}),
		NotifiedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbscout_notifications_sent_total",
			Help: "Opportunities sent to Telegram",
		}),
		FailedGroups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbscout_failed_groups_total",
			Help: "Match groups skipped after an evaluation failure",
		}),
	}

	m.registry.MustRegister(
		m.CyclesTotal,
		m.DetectedTotal,
		m.QuotesDropped,
		m.OpenOpps,
		m.SnapshotQuotes,
		m.BestProfitPct,
		m.CycleDuration,
		m.NotifiedTotal,
		m.FailedGroups,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CycleSummary is what a successful refresh reports.
type CycleSummary struct {
	Quotes       int
	Dropped      int
	FailedGroups int
	Current      []models.Opportunity
	New          []models.Opportunity
}

// ObserveCycle records a successful refresh.
func (m *Metrics) ObserveCycle(s CycleSummary, took time.Duration) {
	m.CyclesTotal.WithLabelValues(StatusOK).Inc()
	m.CycleDuration.Observe(took.Seconds())
	m.QuotesDropped.Add(float64(s.Dropped))
	m.FailedGroups.Add(float64(s.FailedGroups))
	m.SnapshotQuotes.Set(float64(s.Quotes))
	m.OpenOpps.Set(float64(len(s.Current)))

	best := 0.0
	for _, o := range s.Current {
		if o.ProfitPercentage > best {
			best = o.ProfitPercentage
		}
	}
	m.BestProfitPct.Set(best)

	for _, o := range s.New {
		m.DetectedTotal.WithLabelValues(string(o.Market)).Inc()
	}
}

// ObserveFailure records a refresh that could not complete.
func (m *Metrics) ObserveFailure(took time.Duration) {
	m.CyclesTotal.WithLabelValues(StatusError).Inc()
	m.CycleDuration.Observe(took.Seconds())
}
