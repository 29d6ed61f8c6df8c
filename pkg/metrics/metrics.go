// Package metrics exposes the engine's Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for served requests.
const (
	OutcomeDouble   = "double"
	OutcomeProxy    = "proxy"
	OutcomeNotFound = "not_found"
)

// Collector owns the engine's metrics on a private registry, so two
// engines in one process never collide.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	doublesRegistered prometheus.Gauge
	spyEntries        prometheus.Gauge
}

// NewCollector builds a collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "restspy",
				Name:      "requests_total",
				Help:      "Requests served, by outcome.",
			},
			[]string{"outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "restspy",
				Name:      "request_duration_seconds",
				Help:      "Time spent serving requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		doublesRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "restspy",
			Name:      "doubles_registered",
			Help:      "Matchables currently registered on the port.",
		}),
		spyEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "restspy",
			Name:      "spy_entries",
			Help:      "Recorded requests currently held.",
		}),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.doublesRegistered,
		c.spyEntries,
	)
	return c
}

// ObserveRequest counts one served request.
func (c *Collector) ObserveRequest(outcome string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(outcome).Inc()
	c.requestDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// SetDoublesRegistered tracks how many matchables the port holds.
func (c *Collector) SetDoublesRegistered(n int) {
	c.doublesRegistered.Set(float64(n))
}

// SetSpyEntries tracks how many recordings are held.
func (c *Collector) SetSpyEntries(n int) {
	c.spyEntries.Set(float64(n))
}

// Handler serves the exposition format for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
