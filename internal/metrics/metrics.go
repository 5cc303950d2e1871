// Package metrics exposes the gateway's Prometheus instrumentation,
// grounded on paulwilltell-OFFGRIDFLOW/internal/observability/metrics_handler.go's
// registry-handle pattern: a dedicated *prometheus.Registry (not the
// global default) wrapping a handful of collectors, served at /metrics
// via promhttp.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the gateway registers.
type Metrics struct {
	registry *prometheus.Registry

	UpstreamRequests *prometheus.CounterVec
	RetryAttempts    *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec
}

// New builds a Metrics with its own registry, distinct from the global
// default (paulwilltell-OFFGRIDFLOW/internal/observability/metrics_handler.go:
// NewMetricsHandlerWithRegistry).
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrouter_upstream_requests_total",
			Help: "Count of requests dispatched to upstream providers, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		RetryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrouter_upstream_retries_total",
			Help: "Count of retry attempts against upstream providers, by provider.",
		}, []string{"provider"}),
		UpstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmrouter_upstream_request_duration_seconds",
			Help:    "Latency of upstream provider requests, by provider.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
	}

	registry.MustRegister(m.UpstreamRequests, m.RetryAttempts, m.UpstreamLatency)
	return m
}

// Handler returns the HTTP handler for GET /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// OnRetry builds the internal/retry.Send onRetry hook for a given
// provider id.
func (m *Metrics) OnRetry(provider string) func() {
	return func() {
		m.RetryAttempts.WithLabelValues(provider).Inc()
	}
}

// instrumentedTransport wraps an http.RoundTripper to record
// UpstreamRequests and UpstreamLatency per upstream round trip, labeling each
// round trip by the provider id its request host maps to. Grounded on the
// same registry-holder pattern as the rest of this package — a transport
// decorator instead of a per-call hook, since every adapter shares one
// *http.Client (spec.md §5: "shared by reference across concurrent
// request tasks").
type instrumentedTransport struct {
	base           http.RoundTripper
	metrics        *Metrics
	hostToProvider map[string]string
}

// InstrumentTransport wraps base so every upstream round trip is recorded
// against the provider its request host resolves to (via hostToProvider,
// built from config's per-provider base URLs). Hosts absent from the map
// are recorded under the "unknown" provider label.
func (m *Metrics) InstrumentTransport(base http.RoundTripper, hostToProvider map[string]string) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &instrumentedTransport{base: base, metrics: m, hostToProvider: hostToProvider}
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	provider, ok := t.hostToProvider[req.URL.Host]
	if !ok {
		provider = "unknown"
	}

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	t.metrics.UpstreamLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())

	outcome := "success"
	if err != nil {
		outcome = "error"
	} else if resp.StatusCode >= 400 {
		outcome = "error"
	}
	t.metrics.UpstreamRequests.WithLabelValues(provider, outcome).Inc()

	return resp, err
}
