package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the prometheus collectors for the service. A nil *Metrics
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	cacheReads         *prometheus.CounterVec
	cacheWrites        *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec
	upstreamRequests   *prometheus.CounterVec
	upstreamDuration   *prometheus.HistogramVec
}

var upstreamBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		cacheReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_reads_total",
				Help:      "Cache reads by category and result (hit, miss, stale, fault)",
			},
			[]string{"category", "result"},
		),
		cacheWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_writes_total",
				Help:      "Cache writes by category and status",
			},
			[]string{"category", "status"},
		),
		cacheInvalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_invalidations_total",
				Help:      "Explicit cache invalidations by category and status",
			},
			[]string{"category", "status"},
		),
		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Requests to upstream providers by provider and status",
			},
			[]string{"provider", "status"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_duration_seconds",
				Help:      "Upstream request latency",
				Buckets:   upstreamBuckets,
			},
			[]string{"provider"},
		),
	}

	registry.MustRegister(
		m.cacheReads,
		m.cacheWrites,
		m.cacheInvalidations,
		m.upstreamRequests,
		m.upstreamDuration,
	)
	return m
}

func (m *Metrics) CacheRead(category, result string) {
	if m == nil {
		return
	}
	m.cacheReads.WithLabelValues(category, result).Inc()
}

func (m *Metrics) CacheWrite(category string, ok bool) {
	if m == nil {
		return
	}
	m.cacheWrites.WithLabelValues(category, status(ok)).Inc()
}

func (m *Metrics) CacheInvalidate(category string, ok bool) {
	if m == nil {
		return
	}
	m.cacheInvalidations.WithLabelValues(category, status(ok)).Inc()
}

func (m *Metrics) Upstream(provider string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(provider, status(ok)).Inc()
	m.upstreamDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func status(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
