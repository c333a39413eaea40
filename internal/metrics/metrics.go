// Package metrics exposes Prometheus instrumentation for the query
// pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline collectors over a private registry.
type Metrics struct {
	registry *prometheus.Registry

	queriesTotal   *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	upstreamErrors *prometheus.CounterVec
	warningsTotal  *prometheus.CounterVec
	returnedDocs   prometheus.Histogram
}

// New creates and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ratio",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Completed queries by terminal status.",
		}, []string{"status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ratio",
			Subsystem: "query",
			Name:      "stage_duration_seconds",
			Help:      "Wall time per pipeline stage.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ratio",
			Subsystem: "upstream",
			Name:      "errors_total",
			Help:      "Upstream failures by dependency and error kind.",
		}, []string{"dependency", "kind"}),
		warningsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ratio",
			Subsystem: "query",
			Name:      "warnings_total",
			Help:      "Non-fatal pipeline warnings by code.",
		}, []string{"code"}),
		returnedDocs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ratio",
			Subsystem: "query",
			Name:      "returned_docs",
			Help:      "Documents returned per query.",
			Buckets:   []float64{0, 1, 3, 5, 8, 11, 20, 40, 80},
		}),
	}

	registry.MustRegister(
		m.queriesTotal,
		m.stageDuration,
		m.upstreamErrors,
		m.warningsTotal,
		m.returnedDocs,
	)
	return m
}

// ObserveStage records the duration of one pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// QueryCompleted counts one finished query.
func (m *Metrics) QueryCompleted(status string, returnedDocs int) {
	m.queriesTotal.WithLabelValues(status).Inc()
	m.returnedDocs.Observe(float64(returnedDocs))
}

// UpstreamError counts one upstream failure.
func (m *Metrics) UpstreamError(dependency, kind string) {
	m.upstreamErrors.WithLabelValues(dependency, kind).Inc()
}

// Warning counts one non-fatal pipeline warning.
func (m *Metrics) Warning(code string) {
	m.warningsTotal.WithLabelValues(code).Inc()
}

// Handler serves the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
