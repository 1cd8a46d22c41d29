package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "inundation"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// inundation service.
type Metrics struct {
	RequestsConsumed prometheus.Counter
	ResultsProduced  prometheus.Counter
	RunFailures      *prometheus.CounterVec // labels: kind
	PipelineRunning  prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Run metrics.
	StageDuration      *prometheus.HistogramVec // labels: stage={synthesize,classify,depth}
	WetFraction        prometheus.Histogram
	FallbackThresholds *prometheus.CounterVec // labels: region

	// Artifact access metrics.
	ProfileLookups *prometheus.CounterVec // labels: result={hit,miss,error}
	DEMRequests    *prometheus.CounterVec // labels: outcome={success,error,unavailable}
	DEMCache       *prometheus.CounterVec // labels: result={hit,miss}
	DEMDuration    prometheus.Histogram
}

func newMetrics() *Metrics {
	return &Metrics{
		RequestsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_consumed_total",
			Help:      "Total run requests read from the request topic.",
		}),
		ResultsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_produced_total",
			Help:      "Total run summaries written to the result topic.",
		}),
		RunFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_failures_total",
			Help:      "Failed runs by error kind.",
		}, []string{"kind"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of requests per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-transform-load cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each run stage.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		WetFraction: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wet_fraction",
			Help:      "Share of area-of-interest pixels classified wet per run.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		FallbackThresholds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_threshold_total",
			Help:      "Runs classified with the fixed fallback threshold, by region.",
		}, []string{"region"}),
		ProfileLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_lookups_total",
			Help:      "Region profile cache lookups by result.",
		}, []string{"result"}),
		DEMRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dem_requests_total",
			Help:      "Elevation service requests by outcome.",
		}, []string{"outcome"}),
		DEMCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dem_cache_total",
			Help:      "Elevation window cache lookups by result.",
		}, []string{"result"}),
		DEMDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dem_request_duration_seconds",
			Help:      "Elevation service request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RequestsConsumed,
		m.ResultsProduced,
		m.RunFailures,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.StageDuration,
		m.WetFraction,
		m.FallbackThresholds,
		m.ProfileLookups,
		m.DEMRequests,
		m.DEMCache,
		m.DEMDuration,
	}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
