// Package metrics exposes Prometheus metrics for the ripeness service.
// Each Metrics value owns its registry so tests and embedded services do not collide.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/menta2k/fruit-ripeness/pkg/types"
)

// Metrics implements pipeline.Recorder
type Metrics struct {
	registry *prometheus.Registry

	gateDecisions     *prometheus.CounterVec
	gateMatch         prometheus.Histogram
	inferenceDuration prometheus.Histogram
	inferenceErrors   prometheus.Counter
	renderFailures    prometheus.Counter
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		gateDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ripeness_gate_decisions_total",
				Help: "Color gate decisions by outcome",
			},
			[]string{"outcome"},
		),
		gateMatch: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ripeness_gate_match_fraction",
				Help:    "Percentage of pixels inside the guava color band",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
		),
		inferenceDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ripeness_inference_duration_seconds",
				Help:    "Model invocation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		inferenceErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ripeness_inference_errors_total",
				Help: "Model invocations that failed",
			},
		),
		renderFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ripeness_heatmap_render_failures_total",
				Help: "Thermal outputs that could not be rendered",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ripeness_http_requests_total",
				Help: "HTTP requests by method, endpoint and status",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ripeness_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}

	m.registry.MustRegister(
		m.gateDecisions,
		m.gateMatch,
		m.inferenceDuration,
		m.inferenceErrors,
		m.renderFailures,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveGate records one gate decision
func (m *Metrics) ObserveGate(decision types.GateDecision) {
	outcome := "rejected"
	if decision.IsMatch {
		outcome = "accepted"
	}
	m.gateDecisions.WithLabelValues(outcome).Inc()
	m.gateMatch.Observe(decision.MatchFraction)
}

// ObserveInference records one model invocation
func (m *Metrics) ObserveInference(elapsed time.Duration, err error) {
	m.inferenceDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.inferenceErrors.Inc()
	}
}

// ObserveRender records a heat-map render attempt
func (m *Metrics) ObserveRender(err error) {
	if err != nil {
		m.renderFailures.Inc()
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the metrics endpoint handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
