// Package telemetry owns the Prometheus registry served at /metrics.
//
// Every method is safe on a nil *Metrics, so components take a *Metrics and
// tests simply pass nil.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "devstats"

type Metrics struct {
	registry *prometheus.Registry

	httpDuration     *prometheus.HistogramVec
	githubRequests   *prometheus.CounterVec
	githubDuration   prometheus.Histogram
	metricsFallbacks prometheus.Counter
	aiGenerations    *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		githubRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "github_requests_total",
			Help:      "GitHub API attempts by outcome (ok, retry, fail).",
		}, []string{"outcome"}),
		githubDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "github_request_duration_seconds",
			Help:      "Latency of single GitHub API attempts.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		metricsFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "github_metrics_fallbacks_total",
			Help:      "Metrics requests answered with the zeroed default record.",
		}),
		aiGenerations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_generations_total",
			Help:      "AI generations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Payment webhook deliveries by event type and outcome.",
		}, []string{"type", "outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpDuration,
		m.githubRequests,
		m.githubDuration,
		m.metricsFallbacks,
		m.aiGenerations,
		m.webhookEvents,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(took.Seconds())
}

// ObserveGitHubRequest implements github.Observer.
func (m *Metrics) ObserveGitHubRequest(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.githubRequests.WithLabelValues(outcome).Inc()
	m.githubDuration.Observe(took.Seconds())
}

func (m *Metrics) MetricsFallback() {
	if m == nil {
		return
	}
	m.metricsFallbacks.Inc()
}

func (m *Metrics) AIGeneration(kind string, err error) {
	if m == nil {
		return
	}
	m.aiGenerations.WithLabelValues(kind, outcome(err)).Inc()
}

// WebhookEvent records a delivery; outcome is "applied", "duplicate",
// "ignored" or "error".
func (m *Metrics) WebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
