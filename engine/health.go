package engine

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/attrengine/core/cache"
	"github.com/attrengine/core/domain/attribute"
	"github.com/attrengine/core/domain/invalidation"
)

// Invalidate removes attributeID's cached values (optionally scoped to a
// single target) via the Invalidator, so the same axis execution, metrics
// and events apply as for any other invalidation. The request runs
// immediately; it does not pass through the queued, rate-limited batch path.
func (e *Engine) Invalidate(ctx context.Context, attributeID, targetID string) (invalidation.Result, error) {
	return e.invalidator.InvalidateByAttribute(ctx, attributeID, targetID)
}

// InvalidateTarget removes every cached attribute computed for the given
// target.
func (e *Engine) InvalidateTarget(ctx context.Context, targetKind attribute.TargetKind, targetID string) (invalidation.Result, error) {
	return e.invalidator.InvalidateByTarget(ctx, targetKind, targetID)
}

// ClearAll empties the cache entirely, the database invalidation axis.
func (e *Engine) ClearAll(ctx context.Context) (invalidation.Result, error) {
	return e.invalidator.InvalidateDatabase(ctx)
}

// Stats is a point-in-time snapshot of engine-level counters, alongside its
// cache's own stats.
type Stats struct {
	RegisteredAttributes int
	DependencyEdges      int
	TotalComputations    int64
	SuccessfulComputations int64
	FailedComputations   int64
	ErrorRate            float64
	AvgComputeTime       time.Duration
	SingleFlightCapacity int
	Cache                cache.Stats
	Uptime               time.Duration
	ResidentMemoryBytes  uint64
}

// Stats returns the current engine-level counters.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	registered := len(e.definitions)
	e.mu.RUnlock()

	total := atomic.LoadInt64(&e.totalComputations)
	successful := atomic.LoadInt64(&e.successfulComputations)
	failed := atomic.LoadInt64(&e.failedComputations)

	s := Stats{
		RegisteredAttributes:   registered,
		DependencyEdges:        e.tracker.EdgeCount(),
		TotalComputations:      total,
		SuccessfulComputations: successful,
		FailedComputations:     failed,
		SingleFlightCapacity:   cap(e.sem),
		Cache:                  e.cache.Stats(),
		Uptime:                 time.Since(e.startedAt),
	}
	if total > 0 {
		s.ErrorRate = float64(failed) / float64(total)
		s.AvgComputeTime = time.Duration(atomic.LoadInt64(&e.computeTimeTotalNanos) / total)
	}
	s.ResidentMemoryBytes = residentMemoryBytes()
	return s
}

// residentMemoryBytes is a best-effort advisory RSS sample for the current
// process; a sampling failure (e.g. unsupported platform) yields zero rather
// than an error, since this figure is advisory only.
func residentMemoryBytes() uint64 {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := proc.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}

// Health reports whether the Engine is fit to serve traffic: initialised,
// single-flight occupancy below 80% of its configured cap, an error rate
// below 10% (once there has been traffic to measure one), and a healthy
// cache.
type Health struct {
	Initialised bool
	Healthy     bool
	Reasons     []string
	Stats       Stats
}

// Health returns the current health snapshot.
func (e *Engine) Health() Health {
	e.mu.RLock()
	initialised := e.initialised
	e.mu.RUnlock()

	stats := e.Stats()
	h := Health{Initialised: initialised, Healthy: true, Stats: stats}

	if !initialised {
		h.Healthy = false
		h.Reasons = append(h.Reasons, "engine not initialised")
	}
	if occupied := e.singleFlightOccupancy(); stats.SingleFlightCapacity > 0 &&
		float64(occupied) >= 0.8*float64(stats.SingleFlightCapacity) {
		h.Healthy = false
		h.Reasons = append(h.Reasons, "single-flight occupancy above 80% of capacity")
	}
	if stats.TotalComputations > 0 && stats.ErrorRate >= 0.1 {
		h.Healthy = false
		h.Reasons = append(h.Reasons, "compute error rate at or above 10%")
	}
	if !stats.Cache.Healthy() {
		h.Healthy = false
		h.Reasons = append(h.Reasons, "cache unhealthy")
	}
	return h
}

func (e *Engine) singleFlightOccupancy() int {
	return len(e.sem)
}
