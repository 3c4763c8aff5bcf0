// Package invalidator centralises cache invalidation across five axes,
// batches low-priority requests, cascades through the dependency graph, and
// ingests external change-feed events.
package invalidator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/attrengine/core/cache"
	"github.com/attrengine/core/dependencytracker"
	"github.com/attrengine/core/domain/attribute"
	"github.com/attrengine/core/domain/invalidation"
	"github.com/attrengine/core/internal/obs/errors"
	"github.com/attrengine/core/internal/obs/logging"
)

// Config controls batching, backpressure, and cascade depth.
type Config struct {
	QueueCapacity             int
	BatchSize                 int
	FlushInterval             time.Duration
	RateLimitPerSec           float64
	RateLimitBurst            int
	CascadeMaxDepth           int
	DependencyTrackingEnabled bool
	Logger                    *logging.Logger
	OnEvent                   EventHandler
}

func (c Config) withDefaults() Config {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 10_000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 500 * time.Millisecond
	}
	if c.RateLimitPerSec <= 0 {
		c.RateLimitPerSec = 500
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 1000
	}
	if c.CascadeMaxDepth <= 0 {
		c.CascadeMaxDepth = 32
	}
	if c.Logger == nil {
		c.Logger = logging.Noop()
	}
	return c
}

// Invalidator drives cache invalidation on behalf of the Engine.
type Invalidator struct {
	cfg     Config
	cache   *cache.Cache
	tracker *dependencytracker.Tracker
	limiter *rate.Limiter
	cron    *cron.Cron
	metrics *Metrics

	mu      sync.Mutex
	pending []invalidation.Request
	timer   *time.Timer

	shutdownOnce sync.Once
}

// New creates an Invalidator bound to cache and, optionally, a
// DependencyTracker for the dependency axis's cascade fan-out (nil disables
// cascading).
func New(cfg Config, c *cache.Cache, tracker *dependencytracker.Tracker) *Invalidator {
	cfg = cfg.withDefaults()
	inv := &Invalidator{
		cfg:     cfg,
		cache:   c,
		tracker: tracker,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
		metrics: newMetrics(),
	}

	inv.cron = cron.New()
	spec := fmt.Sprintf("@every %s", cfg.FlushInterval.String())
	_, _ = inv.cron.AddFunc(spec, inv.flushHeartbeat)
	inv.cron.Start()

	return inv
}

// Shutdown drains any queued requests and stops the background heartbeat.
func (inv *Invalidator) Shutdown(ctx context.Context) error {
	var err error
	inv.shutdownOnce.Do(func() {
		inv.drain(ctx)
		cronCtx := inv.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

func (inv *Invalidator) emit(evt Event) {
	if inv.cfg.OnEvent != nil {
		inv.cfg.OnEvent(evt)
	}
}

// Execute runs req immediately against the appropriate axis, applying
// cascading fan-out when req.Axis == dependency and dependency tracking is
// enabled. Cascading fan-out walks the dependency graph no further than
// Config.CascadeMaxDepth hops from req.Dependency.
func (inv *Invalidator) Execute(ctx context.Context, req invalidation.Request) (invalidation.Result, error) {
	if err := req.Validate(); err != nil {
		return invalidation.Result{}, err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	start := time.Now()
	result := invalidation.Result{Success: true}

	switch req.Axis {
	case invalidation.AxisAttribute:
		result.InvalidatedCount = inv.cache.InvalidateByAttribute(req.AttributeID, req.TargetID)
	case invalidation.AxisDependency:
		result.InvalidatedCount = inv.cache.InvalidateByDependency(req.Dependency)
		inv.metrics.depTriggered.Inc()
		if inv.cfg.DependencyTrackingEnabled && inv.tracker != nil && req.Cascading {
			affected := inv.tracker.AffectedWithinDepth(req.Dependency, inv.cfg.CascadeMaxDepth)
			for _, attributeID := range affected {
				derived := invalidation.Request{
					Axis:        invalidation.AxisAttribute,
					AttributeID: attributeID,
					Reason:      "cascade from " + req.Dependency,
					Priority:    invalidation.PriorityLow,
					Cascading:   false,
					EnqueuedAt:  time.Now(),
				}
				if err := inv.Queue(derived); err == nil {
					result.CascadingInvalidations++
				}
			}
			result.AffectedAttributes = affected
			inv.metrics.cascading.Add(float64(result.CascadingInvalidations))
		}
	case invalidation.AxisTarget:
		result.InvalidatedCount = inv.cache.InvalidateByTarget(req.TargetKind, req.TargetID)
	case invalidation.AxisCollection:
		result.InvalidatedCount = inv.cache.InvalidateByCollectionSubstring(req.CollectionName)
	case invalidation.AxisDatabase:
		result.InvalidatedCount = inv.cache.Clear()
	}

	result.ExecutionTime = time.Since(start)
	inv.metrics.observe(string(req.Axis), string(req.Priority), true, result.ExecutionTime)
	inv.cfg.Logger.LogInvalidation(ctx, string(req.Axis), result.InvalidatedCount, result.ExecutionTime, nil)
	inv.emit(Event{Type: EventInvalidated, Request: req, Result: result})

	return result, nil
}

// InvalidateByAttribute executes an attribute-axis request immediately.
func (inv *Invalidator) InvalidateByAttribute(ctx context.Context, attributeID, targetID string) (invalidation.Result, error) {
	return inv.Execute(ctx, invalidation.Request{
		Axis: invalidation.AxisAttribute, AttributeID: attributeID, TargetID: targetID,
		Priority: invalidation.PriorityMedium, EnqueuedAt: time.Now(),
	})
}

// InvalidateByDependency executes a dependency-axis request immediately,
// cascading through the tracker when enabled.
func (inv *Invalidator) InvalidateByDependency(ctx context.Context, tag string) (invalidation.Result, error) {
	return inv.Execute(ctx, invalidation.Request{
		Axis: invalidation.AxisDependency, Dependency: tag,
		Priority: invalidation.PriorityMedium, Cascading: true, EnqueuedAt: time.Now(),
	})
}

// InvalidateByTarget executes a target-axis request immediately.
func (inv *Invalidator) InvalidateByTarget(ctx context.Context, targetKind attribute.TargetKind, targetID string) (invalidation.Result, error) {
	return inv.Execute(ctx, invalidation.Request{
		Axis: invalidation.AxisTarget, TargetKind: targetKind, TargetID: targetID,
		Priority: invalidation.PriorityMedium, EnqueuedAt: time.Now(),
	})
}

// InvalidateByCollection executes a collection-axis request immediately, at
// high priority per the documented collection-lifecycle handling.
func (inv *Invalidator) InvalidateByCollection(ctx context.Context, collectionName string) (invalidation.Result, error) {
	return inv.Execute(ctx, invalidation.Request{
		Axis: invalidation.AxisCollection, CollectionName: collectionName,
		Priority: invalidation.PriorityHigh, EnqueuedAt: time.Now(),
	})
}

// InvalidateDatabase executes a database-axis request immediately (full
// clear).
func (inv *Invalidator) InvalidateDatabase(ctx context.Context) (invalidation.Result, error) {
	return inv.Execute(ctx, invalidation.Request{
		Axis: invalidation.AxisDatabase, Priority: invalidation.PriorityCritical, EnqueuedAt: time.Now(),
	})
}

// Queue appends req to the pending batch. It is flushed once the batch
// reaches BatchSize, or after FlushInterval elapses since the first pending
// item, whichever comes first.
func (inv *Invalidator) Queue(req invalidation.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = time.Now()
	}

	inv.mu.Lock()
	if len(inv.pending) >= inv.cfg.QueueCapacity {
		inv.mu.Unlock()
		return errors.CacheErr("queue", fmt.Errorf("invalidation queue at capacity (%d)", inv.cfg.QueueCapacity))
	}
	inv.pending = append(inv.pending, req)
	shouldFlush := len(inv.pending) >= inv.cfg.BatchSize
	if inv.timer == nil {
		inv.timer = time.AfterFunc(inv.cfg.FlushInterval, inv.flushHeartbeat)
	}
	inv.mu.Unlock()

	if shouldFlush {
		inv.flushHeartbeat()
	}
	return nil
}

// flushHeartbeat drains the pending batch, throttled by the token-bucket
// limiter so a burst of queued requests cannot monopolise the shared cache
// lock. Invoked both by the cron heartbeat and by Queue once a batch fills.
func (inv *Invalidator) flushHeartbeat() {
	inv.mu.Lock()
	batch := inv.pending
	inv.pending = nil
	if inv.timer != nil {
		inv.timer.Stop()
		inv.timer = nil
	}
	inv.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	inv.drainBatch(context.Background(), batch)
}

func (inv *Invalidator) drainBatch(ctx context.Context, batch []invalidation.Request) *multierror.Error {
	var result *multierror.Error
	inv.metrics.batches.Inc()

	for _, req := range batch {
		deadline := time.Now().Add(inv.cfg.FlushInterval)
		reserveCtx, cancel := context.WithDeadline(ctx, deadline)
		if err := inv.limiter.Wait(reserveCtx); err != nil {
			cancel()
			inv.metrics.observe(string(req.Axis), string(req.Priority), false, 0)
			inv.emit(Event{Type: EventInvalidationError, Request: req, Err: err})
			result = multierror.Append(result, errors.CacheErr("rate-limit-wait", err))
			continue
		}
		cancel()

		if _, err := inv.Execute(ctx, req); err != nil {
			inv.emit(Event{Type: EventInvalidationError, Request: req, Err: err})
			result = multierror.Append(result, err)
		}
	}

	inv.emit(Event{Type: EventBatchInvalidated, BatchSize: len(batch)})
	return result
}

// drain synchronously flushes everything pending, used by Shutdown.
func (inv *Invalidator) drain(ctx context.Context) {
	for {
		inv.mu.Lock()
		remaining := len(inv.pending)
		inv.mu.Unlock()
		if remaining == 0 {
			return
		}
		inv.flushHeartbeat()
	}
}

// ChangeEvent is a unit of the database's change feed, as ingested by
// HandleChangeEvent.
type ChangeEvent struct {
	Type           ChangeEventType
	DocumentID     string
	CollectionName string
}

// ChangeEventType identifies the kind of external change being reported.
type ChangeEventType string

const (
	ChangeInsert             ChangeEventType = "insert"
	ChangeUpdate             ChangeEventType = "update"
	ChangeDelete             ChangeEventType = "delete"
	ChangeCollectionCreated  ChangeEventType = "collectionCreated"
	ChangeCollectionDropped  ChangeEventType = "collectionDropped"
)

// HandleChangeEvent maps a database change-feed event onto a queued
// invalidation request.
func (inv *Invalidator) HandleChangeEvent(evt ChangeEvent) error {
	inv.metrics.dbTriggered.Inc()

	switch evt.Type {
	case ChangeInsert, ChangeUpdate, ChangeDelete:
		return inv.Queue(invalidation.Request{
			Axis: invalidation.AxisTarget, TargetKind: attribute.TargetDocument, TargetID: evt.DocumentID,
			Reason:   "change feed: " + string(evt.Type),
			Priority: invalidation.PriorityMedium,
		})
	case ChangeCollectionCreated, ChangeCollectionDropped:
		return inv.Queue(invalidation.Request{
			Axis: invalidation.AxisCollection, CollectionName: evt.CollectionName,
			Reason:   "change feed: " + string(evt.Type),
			Priority: invalidation.PriorityHigh,
		})
	default:
		return errors.New(errors.KindValidation, errors.CodeValidation, "unrecognised change event type").
			WithDetails("type", evt.Type)
	}
}
