// Package metrics exposes Prometheus instrumentation for tracking, triggering and sweeps.
// A Metrics value owns a private registry; a nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors used across skywatch.
type Metrics struct {
	registry *prometheus.Registry

	fetches       *prometheus.CounterVec
	cacheHits     *prometheus.CounterVec
	events        *prometheus.CounterVec
	triggers      *prometheus.CounterVec
	sweepUsers    *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	lastSweep     prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.fetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skywatch",
		Name:      "tracking_fetches_total",
		Help:      "Upstream snapshot fetches by module and outcome",
	}, []string{"module", "outcome"})
	m.cacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skywatch",
		Name:      "tracking_cache_hits_total",
		Help:      "Updates answered from active memory without fetching",
	}, []string{"module"})
	m.events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skywatch",
		Name:      "tracking_events_total",
		Help:      "Significant events detected by module and event tag",
	}, []string{"module", "event"})
	m.triggers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skywatch",
		Name:      "synthesis_triggers_total",
		Help:      "Synthesis trigger decisions by trigger and outcome",
	}, []string{"trigger", "outcome"})
	m.sweepUsers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skywatch",
		Name:      "sweep_users_total",
		Help:      "Users processed by refresh sweeps by outcome",
	}, []string{"outcome"})
	m.sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "skywatch",
		Name:      "sweep_duration_seconds",
		Help:      "Wall time of a full refresh sweep",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
	m.lastSweep = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "skywatch",
		Name:      "sweep_last_completed_timestamp_seconds",
		Help:      "Unix timestamp of the last completed sweep",
	})

	m.registry.MustRegister(
		m.fetches, m.cacheHits, m.events, m.triggers,
		m.sweepUsers, m.sweepDuration, m.lastSweep,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveFetch counts an upstream fetch.
func (m *Metrics) ObserveFetch(module, outcome string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(module, outcome).Inc()
}

// ObserveCacheHit counts an update served from cache.
func (m *Metrics) ObserveCacheHit(module string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(module).Inc()
}

// ObserveEvent counts a detected event.
func (m *Metrics) ObserveEvent(module, event string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(module, event).Inc()
}

// ObserveTrigger counts a trigger decision.
func (m *Metrics) ObserveTrigger(trigger, outcome string) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(trigger, outcome).Inc()
}

// ObserveSweep records a completed sweep.
func (m *Metrics) ObserveSweep(started time.Time, ok, failed int) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(time.Since(started).Seconds())
	m.sweepUsers.WithLabelValues("ok").Add(float64(ok))
	m.sweepUsers.WithLabelValues("failed").Add(float64(failed))
	m.lastSweep.SetToCurrentTime()
}
