package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// reconciliation pipeline.
type Metrics struct {
	ScopesProcessed *prometheus.CounterVec // labels: outcome={ok,error,no_data}
	PipelineRunning prometheus.Gauge

	// Reconciliation metrics.
	HourlyReconciled *prometheus.CounterVec // labels: source={AQS,Envista}
	RowsDropped      prometheus.Counter

	// Derivation metrics.
	DailyRecords  prometheus.Counter
	AQIOutOfRange prometheus.Counter

	// Scope processing metrics.
	ScopeDuration prometheus.Histogram
	ScopeRows     prometheus.Histogram

	// Ingestion metrics.
	FetchRequests   *prometheus.CounterVec   // labels: feed={aqs,envista}, outcome={success,error,empty}
	FetchDuration   *prometheus.HistogramVec // labels: feed={aqs,envista}
	StationCacheOps *prometheus.CounterVec   // labels: result={hit,miss}
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ScopesProcessed,
		m.PipelineRunning,
		m.HourlyReconciled,
		m.RowsDropped,
		m.DailyRecords,
		m.AQIOutOfRange,
		m.ScopeDuration,
		m.ScopeRows,
		m.FetchRequests,
		m.FetchDuration,
		m.StationCacheOps,
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
		ScopesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aq_etl",
			Name:      "scopes_processed_total",
			Help:      "Pollutant-year scopes processed, by outcome.",
		}, []string{"outcome"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aq_etl",
			Name:      "pipeline_running",
			Help:      "1 while a pipeline run is active, 0 otherwise.",
		}),
		HourlyReconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aq_etl",
			Name:      "hourly_reconciled_total",
			Help:      "Reconciled hourly records emitted, by surviving source.",
		}, []string{"source"}),
		RowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aq_etl",
			Name:      "rows_dropped_total",
			Help:      "Input rows dropped during reconciliation (null or malformed on both sides).",
		}),
		DailyRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aq_etl",
			Name:      "daily_records_total",
			Help:      "Daily AQI records derived.",
		}),
		AQIOutOfRange: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aq_etl",
			Name:      "aqi_out_of_range_total",
			Help:      "Daily records whose mean concentration fell outside the breakpoint domain.",
		}),
		ScopeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aq_etl",
			Name:      "scope_duration_seconds",
			Help:      "Duration of a complete reconcile-derive cycle for one scope.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ScopeRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aq_etl",
			Name:      "scope_rows",
			Help:      "Reconciled hourly rows per scope.",
			Buckets:   []float64{0, 100, 1000, 10000, 50000, 100000, 500000},
		}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aq_etl",
			Name:      "fetch_requests_total",
			Help:      "Upstream API requests by feed and outcome.",
		}, []string{"feed", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aq_etl",
			Name:      "fetch_duration_seconds",
			Help:      "Upstream API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 60},
		}, []string{"feed"}),
		StationCacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aq_etl",
			Name:      "station_cache_total",
			Help:      "Envista station metadata cache lookups by result.",
		}, []string{"result"}),
	}
}
