// Package metrics exposes Prometheus instrumentation for the gateway.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"routecodex-hq/routecodex/pkg/config"
)

var defaultDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// Collector owns the registry and the metric families the gateway emits.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	stageDuration   *prometheus.HistogramVec
	upstreamErrors  *prometheus.CounterVec
	poolInstances   *prometheus.GaugeVec
	auditDropped    prometheus.Counter
}

// NewCollector creates and registers the gateway metrics. A nil registry
// creates a private one, which is what tests use.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "routecodex"
	}
	buckets := cfg.RequestDurationBuckets
	if len(buckets) == 0 {
		buckets = defaultDurationBuckets
	}

	c := &Collector{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "requests_total",
				Help:      "Total requests processed, by provider, category and status.",
			},
			[]string{"provider", "category", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "request_duration_seconds",
				Help:      "End to end request duration in seconds.",
				Buckets:   buckets,
			},
			[]string{"provider", "category"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "pipeline_stage_duration_seconds",
				Help:      "Per module-stage duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"module_type", "direction"},
		),
		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "upstream_errors_total",
				Help:      "Upstream failures by provider and error code.",
			},
			[]string{"provider", "code"},
		),
		poolInstances: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "pool_instances",
				Help:      "Pipeline pool instances by health state.",
			},
			[]string{"state"},
		),
		auditDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "audit_dropped_total",
				Help:      "Audit snapshots dropped due to backpressure.",
			},
		),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.stageDuration,
		c.upstreamErrors,
		c.poolInstances,
		c.auditDropped,
	)
	return c
}

// ObserveRequest records one completed request.
func (c *Collector) ObserveRequest(provider, category, status string, d time.Duration) {
	if category == "" {
		category = "default"
	}
	c.requestsTotal.WithLabelValues(provider, category, status).Inc()
	c.requestDuration.WithLabelValues(provider, category).Observe(d.Seconds())
}

// ObserveStage records one module stage execution.
func (c *Collector) ObserveStage(moduleType, direction string, d time.Duration) {
	c.stageDuration.WithLabelValues(moduleType, direction).Observe(d.Seconds())
}

// CountUpstreamError records an upstream failure by taxonomy code.
func (c *Collector) CountUpstreamError(provider, code string) {
	c.upstreamErrors.WithLabelValues(provider, code).Inc()
}

// SetPoolInstances updates the pool health gauges.
func (c *Collector) SetPoolInstances(healthy, degraded, failed int) {
	c.poolInstances.WithLabelValues("healthy").Set(float64(healthy))
	c.poolInstances.WithLabelValues("degraded").Set(float64(degraded))
	c.poolInstances.WithLabelValues("failed").Set(float64(failed))
}

// CountAuditDropped records dropped audit snapshots.
func (c *Collector) CountAuditDropped(n int64) {
	c.auditDropped.Add(float64(n))
}

// Handler serves the registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
