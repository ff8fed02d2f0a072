// Package telemetry exposes Prometheus metrics for source fetches, provider
// routing and served briefs. A nil *Metrics is a no-op so the CLI path can
// skip metrics entirely.
package telemetry

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/wxbrief/internal/feature"
	"github.com/mohammad-safakhou/wxbrief/internal/router"
)

type Metrics struct {
	registry *prometheus.Registry

	sourceFetches    *prometheus.CounterVec
	sourceLatency    *prometheus.HistogramVec
	providerAttempts *prometheus.CounterVec
	routingDuration  prometheus.Histogram
	briefsServed     *prometheus.CounterVec
}

// New builds the collectors on a private registry so tests and multiple
// instances never collide on the global one.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wxbrief_source_fetch_total",
			Help: "Source fetches by source id and outcome status.",
		}, []string{"source", "status"}),
		sourceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wxbrief_source_fetch_seconds",
			Help:    "Source fetch latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		}, []string{"source"}),
		providerAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wxbrief_provider_attempts_total",
			Help: "Provider attempts by provider id and outcome.",
		}, []string{"provider", "outcome"}),
		routingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wxbrief_routing_seconds",
			Help:    "Wall time spent walking the provider chain per brief.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		briefsServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wxbrief_briefs_total",
			Help: "Briefs served by kind, split by synthetic fallback.",
		}, []string{"kind", "synthetic"}),
	}
	m.registry.MustRegister(m.sourceFetches, m.sourceLatency, m.providerAttempts, m.routingDuration, m.briefsServed)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePack records per-source outcomes and latency for one assembly.
func (m *Metrics) ObservePack(pack *feature.Pack) {
	if m == nil || pack == nil {
		return
	}
	for _, res := range pack.Results {
		m.sourceFetches.WithLabelValues(res.Source, res.Status.String()).Inc()
		m.sourceLatency.WithLabelValues(res.Source).Observe(res.Elapsed.Seconds())
	}
}

// ObserveRouting records the attempt outcomes and total routing time.
func (m *Metrics) ObserveRouting(res *router.Result) {
	if m == nil || res == nil {
		return
	}
	for _, at := range res.Attempts {
		m.providerAttempts.WithLabelValues(at.Provider, string(at.Outcome)).Inc()
	}
	m.routingDuration.Observe(res.Elapsed.Seconds())
}

// ObserveBrief counts one served brief.
func (m *Metrics) ObserveBrief(kind string, synthetic bool) {
	if m == nil {
		return
	}
	m.briefsServed.WithLabelValues(kind, strconv.FormatBool(synthetic)).Inc()
}
