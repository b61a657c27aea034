// Package metrics exposes Prometheus collectors for search, loading and HTTP traffic.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hyperjump/glyphseek/internal/errs"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	searches       *prometheus.CounterVec
	searchDuration prometheus.Histogram
	corpusLoads    *prometheus.CounterVec
	modelLoads     *prometheus.CounterVec
	corpusEntries  prometheus.Gauge
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry along
// with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		searches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glyphseek_searches_total",
				Help: "Total number of searches by outcome",
			},
			[]string{"status"},
		),
		searchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "glyphseek_search_duration_seconds",
				Help:    "Search latency including embedding and scoring",
				Buckets: prometheus.DefBuckets,
			},
		),
		corpusLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glyphseek_corpus_loads_total",
				Help: "Corpus artifact load attempts by result",
			},
			[]string{"result"},
		),
		modelLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glyphseek_model_loads_total",
				Help: "Embedding model load attempts by result",
			},
			[]string{"result"},
		),
		corpusEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "glyphseek_corpus_entries",
				Help: "Number of entries in the loaded corpus",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glyphseek_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "glyphseek_http_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}
	m.registry.MustRegister(
		m.searches, m.searchDuration,
		m.corpusLoads, m.modelLoads, m.corpusEntries,
		m.httpRequests, m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSearch records one search and its latency.
func (m *Metrics) ObserveSearch(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(SearchStatus(err)).Inc()
	m.searchDuration.Observe(d.Seconds())
}

// ObserveCorpusLoad records a corpus load attempt; entries is used on success.
func (m *Metrics) ObserveCorpusLoad(entries int, err error) {
	if m == nil {
		return
	}
	m.corpusLoads.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.corpusEntries.Set(float64(entries))
	}
}

// ObserveModelLoad records an embedding model load attempt.
func (m *Metrics) ObserveModelLoad(err error) {
	if m == nil {
		return
	}
	m.modelLoads.WithLabelValues(result(err)).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// SearchStatus maps a search error to its metric label.
func SearchStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errs.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, errs.ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, errs.ErrCorruptData):
		return "corrupt_data"
	case errors.Is(err, errs.ErrDataUnavailable):
		return "data_unavailable"
	default:
		return "error"
	}
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
