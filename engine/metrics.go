package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors the Engine exposes for compute
// latency, single-flight occupancy, and outcome counts.
type Metrics struct {
	computeDuration   prometheus.Histogram
	singleFlightOccupied prometheus.Gauge
	successes         prometheus.Counter
	failures          prometheus.Counter
	timeouts          prometheus.Counter
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		computeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "attrengine",
			Subsystem: "engine",
			Name:      "compute_duration_seconds",
			Help:      "Latency of attribute compute calls, including cache misses only.",
			Buckets:   prometheus.DefBuckets,
		}),
		singleFlightOccupied: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "attrengine",
			Subsystem: "engine",
			Name:      "single_flight_occupied",
			Help:      "Number of compute calls currently coalesced in flight.",
		}),
		successes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attrengine", Subsystem: "engine", Name: "compute_success_total",
			Help: "Total computations that completed successfully.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attrengine", Subsystem: "engine", Name: "compute_failure_total",
			Help: "Total computations that returned an error.",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attrengine", Subsystem: "engine", Name: "compute_timeout_total",
			Help: "Total computations that exceeded their configured timeout.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attrengine", Subsystem: "engine", Name: "cache_hit_total",
			Help: "Total compute calls served from cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attrengine", Subsystem: "engine", Name: "cache_miss_total",
			Help: "Total compute calls that required a fresh computation.",
		}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.computeDuration, m.singleFlightOccupied, m.successes,
		m.failures, m.timeouts, m.cacheHits, m.cacheMisses,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RegisterMetrics registers the Engine's own collectors, plus its
// collaborators' collectors, with reg.
func (e *Engine) RegisterMetrics(reg prometheus.Registerer) error {
	if err := e.metrics.Register(reg); err != nil {
		return err
	}
	if e.cache != nil {
		if err := e.cache.RegisterMetrics(reg); err != nil {
			return err
		}
	}
	if e.invalidator != nil {
		if err := e.invalidator.RegisterMetrics(reg); err != nil {
			return err
		}
	}
	return nil
}
