package engine

import (
	"context"
	"sync/atomic"
	"time"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/attrengine/core/contextbuilder"
	"github.com/attrengine/core/domain/attribute"
	"github.com/attrengine/core/domain/cachekey"
	"github.com/attrengine/core/internal/obs/errors"
)

// Compute resolves attributeID for the target described by cc: a cache hit
// short-circuits, a cache miss coalesces concurrent callers for the same
// (attribute, target) pair through single-flight, and runs the definition's
// compute body under its configured timeout. A successful result is cached;
// a failed one is not.
func (e *Engine) Compute(ctx context.Context, attributeID string, cc *contextbuilder.Context) (attribute.Value, error) {
	e.mu.RLock()
	initialised := e.initialised
	e.mu.RUnlock()
	if !initialised {
		return nil, errors.New(errors.KindConfigurationError, errors.CodeConfigurationError, "engine is not initialised")
	}

	def, ok := e.Get(attributeID)
	if !ok {
		return nil, errors.AttributeNotFound(attributeID)
	}

	key := cachekey.Key{AttributeID: attributeID, TargetKind: cc.TargetKind, TargetID: cc.TargetID}

	if def.Caching.Enabled {
		if v, ok := e.cache.Get(key); ok {
			e.metrics.cacheHits.Inc()
			e.emit(Event{Type: EventCacheHit, AttributeID: attributeID, TargetID: cc.TargetID})
			return v, nil
		}
		e.metrics.cacheMisses.Inc()
		e.emit(Event{Type: EventCacheMiss, AttributeID: attributeID, TargetID: cc.TargetID})
	}

	flightKey := attributeID + "\x00" + cc.TargetID

	doCompute := func() (interface{}, error) {
		select {
		case e.sem <- struct{}{}:
			defer func() { <-e.sem }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		start := time.Now()
		value, err := e.runCompute(ctx, def, cc)
		elapsed := time.Since(start)

		atomic.AddInt64(&e.totalComputations, 1)
		atomic.AddInt64(&e.computeTimeTotalNanos, elapsed.Nanoseconds())
		e.metrics.computeDuration.Observe(elapsed.Seconds())

		if err != nil {
			atomic.AddInt64(&e.failedComputations, 1)
			if errors.Is(err, errors.KindComputationTimeout) {
				e.metrics.timeouts.Inc()
			}
			e.metrics.failures.Inc()
			e.cfg.Logger.LogComputation(ctx, attributeID, cc.TargetID, elapsed, err)
			e.emit(Event{Type: EventError, AttributeID: attributeID, TargetID: cc.TargetID, Err: err})
			return nil, err
		}

		atomic.AddInt64(&e.successfulComputations, 1)
		e.metrics.successes.Inc()
		e.cfg.Logger.LogComputation(ctx, attributeID, cc.TargetID, elapsed, nil)

		if def.Caching.Enabled {
			e.cache.Set(key, value, def.Caching.TTL, dependencyTags(def), elapsed)
		}
		e.emit(Event{Type: EventComputed, AttributeID: attributeID, TargetID: cc.TargetID})
		return value, nil
	}

	e.metrics.singleFlightOccupied.Inc()
	defer e.metrics.singleFlightOccupied.Dec()

	// Coalescing is mandatory, not configurable: §3 Invariant 6 requires at
	// most one in-flight compute body per (attributeID, targetID).
	v, err, _ := e.sf.Do(flightKey, doCompute)
	if err != nil {
		return nil, err
	}
	return v, nil
}

type computeResult struct {
	value attribute.Value
	err   error
}

// runCompute races def.Compute against the definition's configured timeout.
// The compute body is opaque and may not itself honour context
// cancellation, so its result is raced against the timeout rather than
// relied upon to return promptly; an abandoned goroutine is left to finish
// on its own.
func (e *Engine) runCompute(ctx context.Context, def attribute.Definition, cc *contextbuilder.Context) (attribute.Value, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, def.Timeout())
	defer cancel()

	resultCh := make(chan computeResult, 1)
	go func() {
		v, err := def.Compute(timeoutCtx, cc)
		resultCh <- computeResult{value: v, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, errors.ComputationFailed(def.ID, cc.TargetID, res.err)
		}
		return res.value, nil
	case <-timeoutCtx.Done():
		return nil, errors.ComputationTimeout(def.ID, cc.TargetID, def.Timeout())
	}
}

// ComputeMany resolves every attribute in ids, in order, for the same
// target. Per-item failures are collected rather than aborting the batch:
// the returned map holds every attribute that succeeded, and the returned
// error aggregates every one that did not.
func (e *Engine) ComputeMany(ctx context.Context, ids []string, cc *contextbuilder.Context) (map[string]attribute.Value, error) {
	results := make(map[string]attribute.Value, len(ids))
	var errs *multierror.Error

	for _, id := range ids {
		v, err := e.Compute(ctx, id, cc)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		results[id] = v
	}

	if errs != nil {
		return results, errs
	}
	return results, nil
}

// ComputeAllForTarget resolves every active, registered attribute whose
// TargetKind matches cc.TargetKind, for cc's target.
func (e *Engine) ComputeAllForTarget(ctx context.Context, cc *contextbuilder.Context) (map[string]attribute.Value, error) {
	defs := e.List(cc.TargetKind)
	ids := make([]string, 0, len(defs))
	for _, def := range defs {
		if def.Active {
			ids = append(ids, def.ID)
		}
	}
	return e.ComputeMany(ctx, ids, cc)
}

// dependencyTags converts a definition's declared dependencies into the flat
// string tags the cache indexes invalidation against: the target attribute
// ID for attribute-kind edges, or the external source/field path otherwise.
func dependencyTags(def attribute.Definition) []string {
	if len(def.DeclaredDependencies) == 0 {
		return nil
	}
	tags := make([]string, 0, len(def.DeclaredDependencies))
	for _, dep := range def.DeclaredDependencies {
		if dep.TargetsAttribute() {
			tags = append(tags, dep.ToAttributeID)
			continue
		}
		if dep.ExternalSource != "" {
			tags = append(tags, dep.ExternalSource)
		}
	}
	return tags
}
