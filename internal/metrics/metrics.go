// Package metrics provides Prometheus metrics for docqa
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingest outcomes
const (
	OutcomeIndexed = "indexed"
	OutcomeEmpty   = "empty"
	OutcomeFailed  = "failed"
)

// Metrics holds all Prometheus metrics for docqa.
// Each instance owns its registry so several can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Indexing metrics
	IngestsTotal         *prometheus.CounterVec
	ChunksIndexedTotal   prometheus.Counter
	DocumentDeletesTotal *prometheus.CounterVec

	// Retrieval metrics
	SearchesTotal      *prometheus.CounterVec
	SearchDuration     prometheus.Histogram
	SearchResultsTotal prometheus.Counter

	// Generation metrics
	AnswersTotal         *prometheus.CounterVec
	BackendFailuresTotal *prometheus.CounterVec
	BackendDuration      *prometheus.HistogramVec
}

// New creates and registers all metrics on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docqa_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.HTTPRequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "docqa_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	m.IngestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_ingests_total",
			Help: "Total number of document ingests by outcome",
		},
		[]string{"outcome"},
	)

	m.ChunksIndexedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "docqa_chunks_indexed_total",
			Help: "Total number of chunks written to the vector index",
		},
	)

	m.DocumentDeletesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_document_deletes_total",
			Help: "Total number of index deletions by result",
		},
		[]string{"result"},
	)

	m.SearchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_searches_total",
			Help: "Total number of semantic searches",
		},
		[]string{"status"},
	)

	m.SearchDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docqa_search_duration_seconds",
			Help:    "Duration of semantic searches in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	m.SearchResultsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "docqa_search_results_total",
			Help: "Total number of search results returned",
		},
	)

	m.AnswersTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_answers_total",
			Help: "Total number of answers by the backend that produced them",
		},
		[]string{"backend"},
	)

	m.BackendFailuresTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_backend_failures_total",
			Help: "Total number of failed generation attempts per backend",
		},
		[]string{"backend", "reason"},
	)

	m.BackendDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docqa_backend_duration_seconds",
			Help:    "Duration of generation attempts in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"backend"},
	)

	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request with its status
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordIngest records an ingest outcome and, when indexed, its chunk count
func (m *Metrics) RecordIngest(outcome string, chunks int) {
	m.IngestsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeIndexed && chunks > 0 {
		m.ChunksIndexedTotal.Add(float64(chunks))
	}
}

// RecordDelete records whether a deletion removed anything
func (m *Metrics) RecordDelete(removed bool) {
	result := "noop"
	if removed {
		result = "removed"
	}
	m.DocumentDeletesTotal.WithLabelValues(result).Inc()
}

// RecordSearch records a semantic search
func (m *Metrics) RecordSearch(results int, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.SearchesTotal.WithLabelValues(status).Inc()
	m.SearchDuration.Observe(duration.Seconds())
	m.SearchResultsTotal.Add(float64(results))
}

// RecordAnswer records which backend produced an answer
func (m *Metrics) RecordAnswer(backend string) {
	m.AnswersTotal.WithLabelValues(backend).Inc()
}

// RecordBackendAttempt records one fallback-chain attempt. reason is empty on success.
func (m *Metrics) RecordBackendAttempt(backend, reason string, duration time.Duration) {
	m.BackendDuration.WithLabelValues(backend).Observe(duration.Seconds())
	if reason != "" {
		m.BackendFailuresTotal.WithLabelValues(backend, reason).Inc()
	}
}
