package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/boboshow2025/TaiwanETF-Tracker/internal/models"
	"github.com/boboshow2025/TaiwanETF-Tracker/internal/refresh"
)

// Registry holds the service metrics on a private prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	RefreshTotal     *prometheus.CounterVec
	RefreshDuration  prometheus.Histogram
	SnapshotRecords  *prometheus.GaugeVec
	SnapshotFetched  prometheus.Gauge
	LeaderboardBuilt *prometheus.CounterVec
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		RefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etf_refresh_total",
				Help: "Completed feed refresh attempts by result",
			},
			[]string{"result"},
		),
		RefreshDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "etf_refresh_duration_seconds",
				Help:    "Duration of feed refresh attempts in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		SnapshotRecords: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "etf_snapshot_records",
				Help: "Records in the latest good snapshot by category",
			},
			[]string{"category"},
		),
		SnapshotFetched: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "etf_snapshot_fetched_timestamp_seconds",
				Help: "Unix time the latest good snapshot was fetched",
			},
		),
		LeaderboardBuilt: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etf_leaderboard_builds_total",
				Help: "Leaderboard views built by category and range",
			},
			[]string{"category", "range"},
		),
	}
	r.reg.MustRegister(r.RefreshTotal, r.RefreshDuration, r.SnapshotRecords, r.SnapshotFetched, r.LeaderboardBuilt)
	return r
}

func (r *Registry) ObserveRefresh(status refresh.Status, took time.Duration) {
	r.RefreshTotal.WithLabelValues(string(status)).Inc()
	r.RefreshDuration.Observe(took.Seconds())
}

func (r *Registry) ObserveSnapshot(active, passive int, fetchedAt time.Time) {
	r.SnapshotRecords.WithLabelValues(string(models.CategoryActive)).Set(float64(active))
	r.SnapshotRecords.WithLabelValues(string(models.CategoryPassive)).Set(float64(passive))
	r.SnapshotFetched.Set(float64(fetchedAt.Unix()))
}

func (r *Registry) ObserveBuild(category models.Category, rangeToken string) {
	r.LeaderboardBuilt.WithLabelValues(string(category), rangeToken).Inc()
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
