// Package metrics defines the Prometheus metric collectors used by the
// translation-memory service and serves them for scraping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	QueriesTotal         *prometheus.CounterVec
	QueryLatency         *prometheus.HistogramVec
	QueryHits            prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	UnitsIndexedTotal    prometheus.Counter
	UnitsRemovedTotal    prometheus.Counter
	IndexUnits           prometheus.Gauge
	IndexFlushesTotal    *prometheus.CounterVec
	ImportEventsTotal    *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all metrics and registers them with the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates all metrics and registers them with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tm_queries_total",
				Help: "Total TM queries by mode and result (hit, zero_result, error).",
			},
			[]string{"mode", "result"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tm_query_latency_seconds",
				Help:    "TM query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		QueryHits: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tm_query_hits",
				Help:    "Number of hits returned per TM query.",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tm_cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tm_cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		UnitsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tm_units_indexed_total",
				Help: "Total translation units inserted.",
			},
		),
		UnitsRemovedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tm_units_removed_total",
				Help: "Total translation units removed.",
			},
		),
		IndexUnits: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tm_index_units",
				Help: "Number of live translation units in the index.",
			},
		),
		IndexFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tm_index_flushes_total",
				Help: "Total index snapshot flushes by status.",
			},
			[]string{"status"},
		),
		ImportEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tm_import_events_total",
				Help: "Total import events consumed by operation and status.",
			},
			[]string{"op", "status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.QueriesTotal,
		m.QueryLatency,
		m.QueryHits,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.UnitsIndexedTotal,
		m.UnitsRemovedTotal,
		m.IndexUnits,
		m.IndexFlushesTotal,
		m.ImportEventsTotal,
		m.CircuitBreakerState,
	)

	return m
}

// NewForTest registers the metrics on a private registry.
func NewForTest() *Metrics {
	return NewWithRegisterer(prometheus.NewRegistry())
}
