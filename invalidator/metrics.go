package invalidator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics mirrors the invalidator's rolling counters onto Prometheus
// collectors.
type Metrics struct {
	total        prometheus.Counter
	successful   prometheus.Counter
	failed       prometheus.Counter
	batches      prometheus.Counter
	cascading    prometheus.Counter
	dbTriggered  prometheus.Counter
	depTriggered prometheus.Counter
	byAxis       *prometheus.CounterVec
	byPriority   *prometheus.CounterVec
	duration     prometheus.Histogram
	lastRunUnix  prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		total: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attrengine", Subsystem: "invalidator", Name: "requests_total",
			Help: "Total invalidation requests executed.",
		}),
		successful: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attrengine", Subsystem: "invalidator", Name: "requests_successful_total",
			Help: "Invalidation requests that completed without error.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attrengine", Subsystem: "invalidator", Name: "requests_failed_total",
			Help: "Invalidation requests that returned an error.",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attrengine", Subsystem: "invalidator", Name: "batches_total",
			Help: "Number of batched queue drains.",
		}),
		cascading: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attrengine", Subsystem: "invalidator", Name: "cascading_total",
			Help: "Number of cascading requests derived from dependency fan-out.",
		}),
		dbTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attrengine", Subsystem: "invalidator", Name: "database_triggered_total",
			Help: "Invalidations triggered by a database change feed event.",
		}),
		depTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attrengine", Subsystem: "invalidator", Name: "dependency_triggered_total",
			Help: "Invalidations triggered by a dependency-axis request.",
		}),
		byAxis: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attrengine", Subsystem: "invalidator", Name: "requests_by_axis_total",
			Help: "Invalidation requests by axis.",
		}, []string{"axis"}),
		byPriority: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attrengine", Subsystem: "invalidator", Name: "requests_by_priority_total",
			Help: "Invalidation requests by priority.",
		}, []string{"priority"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "attrengine", Subsystem: "invalidator", Name: "execution_seconds",
			Help:    "Execution time of a single invalidation request.",
			Buckets: prometheus.DefBuckets,
		}),
		lastRunUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "attrengine", Subsystem: "invalidator", Name: "last_run_unix_seconds",
			Help: "Unix timestamp of the most recently executed invalidation.",
		}),
	}
}

func (m *Metrics) observe(axis, priority string, success bool, d time.Duration) {
	m.total.Inc()
	if success {
		m.successful.Inc()
	} else {
		m.failed.Inc()
	}
	m.byAxis.WithLabelValues(axis).Inc()
	m.byPriority.WithLabelValues(priority).Inc()
	m.duration.Observe(d.Seconds())
	m.lastRunUnix.Set(float64(time.Now().Unix()))
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.total, m.successful, m.failed, m.batches, m.cascading,
		m.dbTriggered, m.depTriggered, m.byAxis, m.byPriority, m.duration, m.lastRunUnix,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RegisterMetrics exposes the invalidator's Prometheus collectors.
func (inv *Invalidator) RegisterMetrics(reg prometheus.Registerer) error {
	return inv.metrics.Register(reg)
}
