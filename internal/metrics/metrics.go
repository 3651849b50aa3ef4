// Package metrics holds the Prometheus collectors for ingest, processing,
// export caching and the HTTP API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Pipeline metrics
	UploadsIngested prometheus.Counter
	RowsAccepted    prometheus.Counter
	RowsRejected    prometheus.Counter
	ProcessRuns     *prometheus.CounterVec
	ProcessDuration prometheus.Histogram
	ClientsScored   prometheus.Counter

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// New creates a Metrics instance registered on its own registry, together
// with the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		UploadsIngested: f.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_uploads_ingested_total",
			Help: "Total number of CSV uploads accepted",
		}),
		RowsAccepted: f.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_rows_accepted_total",
			Help: "Total number of CSV rows staged for scoring",
		}),
		RowsRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_rows_rejected_total",
			Help: "Total number of CSV rows rejected by validation",
		}),
		ProcessRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_process_runs_total",
				Help: "Total number of upload processing runs by outcome",
			},
			[]string{"outcome"}, // completed, failed, vanished, rejected
		),
		ProcessDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "analyzer_process_duration_seconds",
			Help:    "Time to score and store one upload",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		ClientsScored: f.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_clients_scored_total",
			Help: "Total number of single clients scored",
		}),

		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_export_cache_hits_total",
			Help: "Total number of export cache hits",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_export_cache_misses_total",
			Help: "Total number of export cache misses",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests and custom exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// RecordIngest records one accepted upload.
func (m *Metrics) RecordIngest(accepted, rejected int) {
	if m == nil {
		return
	}
	m.UploadsIngested.Inc()
	m.RowsAccepted.Add(float64(accepted))
	m.RowsRejected.Add(float64(rejected))
}

// RecordProcess records the outcome of one processing run.
func (m *Metrics) RecordProcess(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProcessRuns.WithLabelValues(outcome).Inc()
	if outcome == "completed" || outcome == "failed" {
		m.ProcessDuration.Observe(d.Seconds())
	}
}

// RecordClientScored increments the single-client counter.
func (m *Metrics) RecordClientScored() {
	if m == nil {
		return
	}
	m.ClientsScored.Inc()
}

// RecordCache records an export cache lookup.
func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// RecordHTTP records one served request. route is the matched route pattern.
func (m *Metrics) RecordHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
