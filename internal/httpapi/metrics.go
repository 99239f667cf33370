package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records request counts and latencies on its own registry.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics builds a recorder with Go and process collectors registered.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "endpoint"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_latency_seconds",
				Help:    "Request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
	}
	m.registry.MustRegister(
		m.requests,
		m.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry so other components can add collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the Prometheus text exposition of the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observe records one completed request.
func (m *Metrics) Observe(method, endpoint string, dur time.Duration) {
	m.requests.WithLabelValues(method, endpoint).Inc()
	m.latency.WithLabelValues(endpoint).Observe(dur.Seconds())
}

// Middleware instruments requests. The endpoint label is resolved after the
// router ran, so it carries the matched route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		m.Observe(r.Method, endpointLabel(r), time.Since(start))
	})
}

// unmatchedEndpoint labels requests that matched no route, so arbitrary
// paths cannot grow the series count.
const unmatchedEndpoint = "unmatched"

// endpointLabel returns the chi route pattern, or unmatchedEndpoint.
func endpointLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return unmatchedEndpoint
}
