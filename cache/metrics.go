package cache

import "github.com/prometheus/client_golang/prometheus"

// Metrics mirrors the cache's internal counters onto Prometheus collectors
// so a scrape of the host process surfaces cache health the same way it
// surfaces any other component.
type Metrics struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	sets          prometheus.Counter
	evictions     prometheus.Counter
	invalidations prometheus.Counter
	bytesUsed     prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attrengine",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Number of cache lookups that found an unexpired entry.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attrengine",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Number of cache lookups that found no usable entry.",
		}),
		sets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attrengine",
			Subsystem: "cache",
			Name:      "sets_total",
			Help:      "Number of values written to the cache.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attrengine",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Number of entries evicted, by capacity or by cleanup sweep.",
		}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attrengine",
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Number of entries removed by explicit invalidation.",
		}),
		bytesUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "attrengine",
			Subsystem: "cache",
			Name:      "bytes_used",
			Help:      "Estimated in-memory footprint of all cached entries.",
		}),
	}
}

// Register registers every collector with reg. Safe to call once per Cache
// instance against the process-default or a test-local registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{m.hits, m.misses, m.sets, m.evictions, m.invalidations, m.bytesUsed}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RegisterMetrics exposes the cache's Prometheus collectors for registration
// against an external registry (e.g. the demo server's /metrics handler).
func (c *Cache) RegisterMetrics(reg prometheus.Registerer) error {
	return c.metrics.Register(reg)
}
