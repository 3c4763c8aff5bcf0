// Package cache memoises computed attribute values with TTL and LRU-bounded
// entries, accounts for memory usage, and supports invalidation along the
// four axes the Invalidator drives it with.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/robfig/cron/v3"

	"github.com/attrengine/core/domain/attribute"
	"github.com/attrengine/core/domain/cachekey"
	"github.com/attrengine/core/internal/obs/errors"
	"github.com/attrengine/core/internal/obs/logging"
)

// Entry is a memoised value together with the bookkeeping the cache needs to
// evict, invalidate, and report on it.
type Entry struct {
	Value        attribute.Value
	ComputedAt   time.Time
	ExpiresAt    time.Time
	Dependencies []string
	SizeBytes    int64
	AccessCount  int64
	LastAccessAt time.Time
	ComputeTime  time.Duration
}

func (e *Entry) expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Config controls capacity, TTL, eviction, and cleanup cadence.
type Config struct {
	DefaultTTL      time.Duration
	MaxEntries      int
	MaxBytes        int64
	CleanupInterval time.Duration
	Policy          EvictionPolicy
	Logger          *logging.Logger
	OnEvent         EventHandler
}

func (c Config) withDefaults() Config {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 5 * time.Minute
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 100_000
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 256 << 20
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Minute
	}
	if c.Policy == "" {
		c.Policy = PolicyLRU
	}
	if c.Logger == nil {
		c.Logger = logging.Noop()
	}
	return c
}

// Cache is the computed-attribute value store.
type Cache struct {
	cfg Config

	mu      sync.RWMutex
	lru     *lru.Cache[string, *Entry]
	onEvent EventHandler

	bytesUsed int64

	hits                 int64
	misses               int64
	evictions            int64
	invalidations        int64
	hitTimeTotalNanos    int64
	missTimeTotalNanos   int64
	invalidateTimeTotal  int64

	cron    *cron.Cron
	metrics *Metrics
}

// New creates a Cache and starts its cron-scheduled cleanup loop.
func New(cfg Config) (*Cache, error) {
	cfg = cfg.withDefaults()
	// Only LRU is implemented for the memory-cap sweep; the field exists so
	// callers can express intent, but lfu/ttl/random are rejected rather
	// than silently downgraded to lru.
	if cfg.Policy != PolicyLRU {
		return nil, errors.ConfigurationError("unsupported cache eviction policy: " + string(cfg.Policy))
	}

	c := &Cache{cfg: cfg, onEvent: cfg.OnEvent}

	store, err := lru.NewWithEvict[string, *Entry](cfg.MaxEntries, c.handleCapacityEvict)
	if err != nil {
		return nil, errors.CacheErr("new", err)
	}
	c.lru = store
	c.metrics = newMetrics()

	c.cron = cron.New()
	spec := fmt.Sprintf("@every %s", cfg.CleanupInterval.String())
	if _, err := c.cron.AddFunc(spec, c.runCleanup); err != nil {
		return nil, errors.CacheErr("schedule-cleanup", err)
	}
	c.cron.Start()

	return c, nil
}

// Close stops the background cleanup loop. The cache remains usable for
// Get/Set after Close; only scheduled cleanup stops.
func (c *Cache) Close() {
	if c.cron != nil {
		ctx := c.cron.Stop()
		<-ctx.Done()
	}
}

// handleCapacityEvict is the underlying LRU store's eviction callback. The
// store invokes it when an insertion pushes it over MaxEntries, and also for
// every explicit Remove/Purge; only an over-capacity insertion leaves the
// store exactly full when the callback runs, so the other calls return
// early (their callers account for the removal themselves). This is the
// eager, O(1) entries-cap enforcement every eviction policy honours
// regardless of configuration.
func (c *Cache) handleCapacityEvict(key string, entry *Entry) {
	if c.lru.Len() < c.cfg.MaxEntries {
		return
	}
	atomic.AddInt64(&c.bytesUsed, -entry.SizeBytes)
	atomic.AddInt64(&c.evictions, 1)
	c.metrics.evictions.Inc()
	c.cfg.Logger.LogCacheEvent(context.Background(), "evicted_capacity", key)
	c.emit(Event{Type: EventInvalidated, Key: key, Reason: "capacity"})
}

// Get looks up key, returning the entry's value if present and unexpired.
func (c *Cache) Get(key cachekey.Key) (attribute.Value, bool) {
	start := time.Now()
	canonical := key.Canonical()

	c.mu.Lock()
	entry, ok := c.lru.Get(canonical)
	if ok && entry.expired(time.Now()) {
		c.lru.Remove(canonical)
		atomic.AddInt64(&c.bytesUsed, -entry.SizeBytes)
		ok = false
	}
	if ok {
		entry.AccessCount++
		entry.LastAccessAt = time.Now()
	}
	c.mu.Unlock()

	if !ok {
		atomic.AddInt64(&c.misses, 1)
		atomic.AddInt64(&c.missTimeTotalNanos, time.Since(start).Nanoseconds())
		c.metrics.misses.Inc()
		c.emit(Event{Type: EventMiss, Key: canonical})
		return nil, false
	}

	atomic.AddInt64(&c.hits, 1)
	atomic.AddInt64(&c.hitTimeTotalNanos, time.Since(start).Nanoseconds())
	c.metrics.hits.Inc()
	c.emit(Event{Type: EventHit, Key: canonical})
	return entry.Value, true
}

// Set stores value under key. A zero ttl uses the configured default TTL. A
// nil dependencies slice is treated as "no declared dependencies".
func (c *Cache) Set(key cachekey.Key, value attribute.Value, ttl time.Duration, dependencies []string, computeTime time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	canonical := key.Canonical()
	now := time.Now()
	entry := &Entry{
		Value:        value,
		ComputedAt:   now,
		ExpiresAt:    now.Add(ttl),
		Dependencies: dependencies,
		SizeBytes:    estimateSize(value),
		LastAccessAt: now,
		ComputeTime:  computeTime,
	}

	c.mu.Lock()
	if old, ok := c.lru.Peek(canonical); ok {
		atomic.AddInt64(&c.bytesUsed, -old.SizeBytes)
	}
	c.lru.Add(canonical, entry)
	atomic.AddInt64(&c.bytesUsed, entry.SizeBytes)
	used := atomic.LoadInt64(&c.bytesUsed)
	c.mu.Unlock()

	c.metrics.sets.Inc()
	c.metrics.bytesUsed.Set(float64(used))
	c.emit(Event{Type: EventSet, Key: canonical})

	if float64(used) >= 0.8*float64(c.cfg.MaxBytes) {
		c.emit(Event{Type: EventMemoryWarning, Key: canonical, Reason: "memory pressure above 80%"})
		c.cfg.Logger.LogCacheEvent(context.Background(), "memory_warning", canonical)
	}
}

// Inspect returns the entry for key without perturbing LRU recency.
func (c *Cache) Inspect(key cachekey.Key) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.lru.Peek(key.Canonical())
	return entry, ok
}

// Size returns the number of entries currently stored.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}

// BytesUsed returns the estimated in-memory footprint of all entries.
func (c *Cache) BytesUsed() int64 {
	return atomic.LoadInt64(&c.bytesUsed)
}

// invalidateWhere removes every entry matching predicate and returns the
// count removed, emitting one invalidated event per key.
func (c *Cache) invalidateWhere(predicate func(key string, entry *Entry) bool) int {
	start := time.Now()

	c.mu.Lock()
	var victims []string
	for _, key := range c.lru.Keys() {
		entry, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if predicate(key, entry) {
			victims = append(victims, key)
		}
	}
	for _, key := range victims {
		if entry, ok := c.lru.Peek(key); ok {
			atomic.AddInt64(&c.bytesUsed, -entry.SizeBytes)
		}
		c.lru.Remove(key)
	}
	c.mu.Unlock()

	atomic.AddInt64(&c.invalidations, int64(len(victims)))
	atomic.AddInt64(&c.invalidateTimeTotal, time.Since(start).Nanoseconds())
	c.metrics.invalidations.Add(float64(len(victims)))

	for _, key := range victims {
		c.emit(Event{Type: EventInvalidated, Key: key})
	}
	return len(victims)
}

// InvalidateByAttribute removes every entry for attributeID, optionally
// narrowed to a single targetID.
func (c *Cache) InvalidateByAttribute(attributeID, targetID string) int {
	return c.invalidateWhere(func(key string, _ *Entry) bool {
		return cachekey.HasAttributeAndTarget(key, attributeID, targetID)
	})
}

// InvalidateByDependency removes every entry whose Dependencies list
// contains tag.
func (c *Cache) InvalidateByDependency(tag string) int {
	return c.invalidateWhere(func(_ string, entry *Entry) bool {
		for _, dep := range entry.Dependencies {
			if dep == tag {
				return true
			}
		}
		return false
	})
}

// InvalidateByTarget removes every entry computed for the given target.
func (c *Cache) InvalidateByTarget(targetKind attribute.TargetKind, targetID string) int {
	return c.invalidateWhere(func(key string, _ *Entry) bool {
		return cachekey.HasTarget(key, targetKind, targetID)
	})
}

// InvalidateByCollectionSubstring removes every entry whose canonical key
// contains collectionName, the fallback path used when attributes have not
// declared an explicit collection dependency tag.
func (c *Cache) InvalidateByCollectionSubstring(collectionName string) int {
	return c.invalidateWhere(func(key string, _ *Entry) bool {
		return containsSubstring(key, collectionName)
	})
}

// Clear empties the cache, implementing the database invalidation axis.
func (c *Cache) Clear() int {
	c.mu.Lock()
	keys := c.lru.Keys()
	c.lru.Purge()
	atomic.StoreInt64(&c.bytesUsed, 0)
	c.mu.Unlock()

	n := len(keys)
	atomic.AddInt64(&c.invalidations, int64(n))
	c.metrics.invalidations.Add(float64(n))
	for _, key := range keys {
		c.emit(Event{Type: EventInvalidated, Key: key, Reason: "clear"})
	}
	return n
}

// runCleanup is the cron-scheduled sweep: remove expired entries first, then
// if still over the memory cap, evict by the configured policy until under
// budget.
func (c *Cache) runCleanup() {
	now := time.Now()

	c.mu.Lock()
	var expired []string
	for _, key := range c.lru.Keys() {
		entry, ok := c.lru.Peek(key)
		if ok && entry.expired(now) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		if entry, ok := c.lru.Peek(key); ok {
			atomic.AddInt64(&c.bytesUsed, -entry.SizeBytes)
		}
		c.lru.Remove(key)
	}

	evictedByPolicy := 0
	for atomic.LoadInt64(&c.bytesUsed) > c.cfg.MaxBytes && c.lru.Len() > 0 {
		victim, ok := c.selectVictim()
		if !ok {
			break
		}
		if entry, ok := c.lru.Peek(victim); ok {
			atomic.AddInt64(&c.bytesUsed, -entry.SizeBytes)
		}
		c.lru.Remove(victim)
		evictedByPolicy++
	}
	c.mu.Unlock()

	total := len(expired) + evictedByPolicy
	if total > 0 {
		atomic.AddInt64(&c.evictions, int64(total))
		c.metrics.evictions.Add(float64(total))
		c.cfg.Logger.WithFields(nil).WithField("expired", len(expired)).
			WithField("evicted_over_budget", evictedByPolicy).Info("cache cleanup swept entries")
	}
}

// selectVictim picks the key to evict during a memory-cap sweep: the entry
// with the oldest LastAccessAt, breaking ties by the oldest ComputedAt.
// Caller must hold c.mu.
func (c *Cache) selectVictim() (string, bool) {
	keys := c.lru.Keys()
	if len(keys) == 0 {
		return "", false
	}

	var victim string
	var oldestAccess time.Time
	var oldestComputed time.Time
	for _, key := range keys {
		entry, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if victim == "" || entry.LastAccessAt.Before(oldestAccess) ||
			(entry.LastAccessAt.Equal(oldestAccess) && entry.ComputedAt.Before(oldestComputed)) {
			oldestAccess = entry.LastAccessAt
			oldestComputed = entry.ComputedAt
			victim = key
		}
	}
	return victim, victim != ""
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Entries          int
	BytesUsed        int64
	Hits             int64
	Misses           int64
	Evictions        int64
	Invalidations    int64
	HitRate          float64
	AvgHitTime       time.Duration
	AvgMissTime      time.Duration
	AvgInvalidateTime time.Duration
	MemoryPressure   float64
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	invalidations := atomic.LoadInt64(&c.invalidations)
	total := hits + misses

	s := Stats{
		Entries:       c.Size(),
		BytesUsed:     c.BytesUsed(),
		Hits:          hits,
		Misses:        misses,
		Evictions:     atomic.LoadInt64(&c.evictions),
		Invalidations: invalidations,
	}
	if total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	if hits > 0 {
		s.AvgHitTime = time.Duration(atomic.LoadInt64(&c.hitTimeTotalNanos) / hits)
	}
	if misses > 0 {
		s.AvgMissTime = time.Duration(atomic.LoadInt64(&c.missTimeTotalNanos) / misses)
	}
	if invalidations > 0 {
		s.AvgInvalidateTime = time.Duration(atomic.LoadInt64(&c.invalidateTimeTotal) / invalidations)
	}
	s.MemoryPressure = float64(s.BytesUsed) / float64(c.cfg.MaxBytes)
	return s
}

// Healthy reports whether the cache is within its documented health bounds:
// memory pressure at or below 0.8 and hit rate at or above 0.5 (once enough
// traffic has been observed to measure a hit rate).
func (s Stats) Healthy() bool {
	if s.MemoryPressure > 0.8 {
		return false
	}
	if s.Hits+s.Misses > 0 && s.HitRate < 0.5 {
		return false
	}
	return true
}

func estimateSize(v attribute.Value) int64 {
	return int64(len(fmt.Sprintf("%v", v)))
}

func containsSubstring(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(haystack, needle)
}
