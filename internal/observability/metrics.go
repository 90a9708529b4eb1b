package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// collection pipeline.
type Metrics struct {
	CyclesStarted        prometheus.Counter
	CycleFailures        prometheus.Counter
	CycleDuration        prometheus.Histogram
	CollectorRunning     prometheus.Gauge
	ReadingsPersisted    prometheus.Counter
	IndexRecordsComputed prometheus.Counter
	RecordsPublished     prometheus.Counter

	// Provider metrics.
	FetchFailures          *prometheus.CounterVec // label: provider
	QuotaDenials           *prometheus.CounterVec // label: provider
	SupplementCellsFetched prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CyclesStarted,
		m.CycleFailures,
		m.CycleDuration,
		m.CollectorRunning,
		m.ReadingsPersisted,
		m.IndexRecordsComputed,
		m.RecordsPublished,
		m.FetchFailures,
		m.QuotaDenials,
		m.SupplementCellsFetched,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		CyclesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airhealth",
			Name:      "cycles_started_total",
			Help:      "Total collection cycles started.",
		}),
		CycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airhealth",
			Name:      "cycle_failures_total",
			Help:      "Total collection cycles that ended in CYCLE_FAILED.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "airhealth",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete collection cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		CollectorRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "airhealth",
			Name:      "collector_running",
			Help:      "1 when the collector is active, 0 when shut down.",
		}),
		ReadingsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airhealth",
			Name:      "readings_persisted_total",
			Help:      "Total raw readings upserted into the store.",
		}),
		IndexRecordsComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airhealth",
			Name:      "index_records_computed_total",
			Help:      "Total health index records computed and persisted.",
		}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airhealth",
			Name:      "index_records_published_total",
			Help:      "Total health index records delivered to the sink topic.",
		}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airhealth",
			Name:      "fetch_failures_total",
			Help:      "Per-target provider fetch failures.",
		}, []string{"provider"}),
		QuotaDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airhealth",
			Name:      "quota_denials_total",
			Help:      "Provider calls denied by the daily quota gate.",
		}, []string{"provider"}),
		SupplementCellsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airhealth",
			Name:      "supplement_cells_fetched_total",
			Help:      "Distinct grid cells fetched from the secondary provider.",
		}),
	}
}
