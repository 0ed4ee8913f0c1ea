// Package telemetry provides logging and metrics for the sharkcalc service.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for expression evaluation.
// Each Metrics owns its registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	evaluationsTotal   *prometheus.CounterVec   // surface, outcome
	evaluationDuration *prometheus.HistogramVec // surface
	complexityScore    prometheus.Histogram
	dedupedTotal       prometheus.Counter
	reloadsTotal       *prometheus.CounterVec // status
}

var durationBuckets = []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05, 0.25, 1, 5}

// NewMetrics creates a collector with its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		evaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sharkcalc_evaluations_total",
			Help: "Expression evaluations by surface and outcome (ok or error kind).",
		}, []string{"surface", "outcome"}),
		evaluationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sharkcalc_evaluation_duration_seconds",
			Help:    "Wall-clock time spent evaluating one expression.",
			Buckets: durationBuckets,
		}, []string{"surface"}),
		complexityScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sharkcalc_complexity_score",
			Help:    "Complexity score of expressions that reached the complexity guard.",
			Buckets: []float64{1, 5, 10, 25, 50, 75, 100, 150},
		}),
		dedupedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sharkcalc_deduplicated_total",
			Help: "Callers whose evaluation was shared with identical in-flight requests.",
		}),
		reloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sharkcalc_config_reloads_total",
			Help: "Configuration reloads by status.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		m.evaluationsTotal,
		m.evaluationDuration,
		m.complexityScore,
		m.dedupedTotal,
		m.reloadsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordEvaluation records one finished evaluation. outcome is "ok" or
// the error kind.
func (m *Metrics) RecordEvaluation(surface, outcome string, duration time.Duration, score float64) {
	m.evaluationsTotal.WithLabelValues(surface, outcome).Inc()
	m.evaluationDuration.WithLabelValues(surface).Observe(duration.Seconds())
	if score > 0 {
		m.complexityScore.Observe(score)
	}
}

// RecordDeduplicated counts a caller whose result was shared with other
// identical in-flight requests.
func (m *Metrics) RecordDeduplicated() {
	m.dedupedTotal.Inc()
}

// RecordReload counts a configuration reload attempt.
func (m *Metrics) RecordReload(ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.reloadsTotal.WithLabelValues(status).Inc()
}

// Evaluations returns the evaluation counter for one surface and outcome.
func (m *Metrics) Evaluations(surface, outcome string) prometheus.Counter {
	return m.evaluationsTotal.WithLabelValues(surface, outcome)
}

// Deduplicated returns the singleflight counter.
func (m *Metrics) Deduplicated() prometheus.Counter {
	return m.dedupedTotal
}

// Reloads returns the reload counter for status "ok" or "error".
func (m *Metrics) Reloads(status string) prometheus.Counter {
	return m.reloadsTotal.WithLabelValues(status)
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler that serves Prometheus-format metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
