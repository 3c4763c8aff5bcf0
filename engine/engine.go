// Package engine is the computed-attribute engine's orchestrator: the
// registry of attribute definitions, the compute pipeline that ties
// together caching, single-flight coalescing, timeout enforcement, and the
// dependency graph, and the lifecycle surface (New/Shutdown) wiring
// its collaborators together.
package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/attrengine/core/cache"
	"github.com/attrengine/core/contextbuilder"
	"github.com/attrengine/core/dependencytracker"
	"github.com/attrengine/core/domain/attribute"
	"github.com/attrengine/core/internal/obs/errors"
	"github.com/attrengine/core/internal/obs/logging"
	"github.com/attrengine/core/invalidator"
)

// Config composes the Engine's own tunables with its collaborators'
// configuration. The Engine owns and constructs the cache, dependency
// tracker, invalidator, and context builder from these sub-configs; callers
// never construct those collaborators directly.
type Config struct {
	MaxConcurrentComputations int
	DefaultTimeout            time.Duration
	NodeID                    string
	Logger                    *logging.Logger

	Cache          cache.Config
	Dependency     dependencytracker.Config
	Invalidator    invalidator.Config
	ContextBuilder contextbuilder.Config
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentComputations <= 0 {
		c.MaxConcurrentComputations = 64
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = attribute.DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = logging.Noop()
	}
	return c
}

// Engine registers attribute definitions and computes their values, backed
// by a cache, a dependency tracker, and an invalidator.
type Engine struct {
	cfg Config

	cache       *cache.Cache
	tracker     *dependencytracker.Tracker
	invalidator *invalidator.Invalidator
	ctxBuilder  *contextbuilder.Builder

	mu          sync.RWMutex
	definitions map[string]attribute.Definition

	sf  singleflight.Group
	sem chan struct{}

	metrics *Metrics

	listenersMu sync.RWMutex
	listeners   map[EventType][]registeredHandler
	nextToken   int

	initialised bool
	startedAt   time.Time

	totalComputations      int64
	successfulComputations int64
	failedComputations     int64
	computeTimeTotalNanos  int64
}

// New constructs an Engine and its collaborators (cache, dependency
// tracker, invalidator, context builder) from cfg, and starts their
// background loops. The returned Engine is immediately ready to serve
// traffic: there is no separate Initialise step, matching the constructor
// conventions the rest of this module follows.
func New(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()

	c, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, err
	}

	tracker := dependencytracker.New(cfg.Dependency)
	inv := invalidator.New(cfg.Invalidator, c, tracker)
	builder := contextbuilder.New(cfg.ContextBuilder)

	e := &Engine{
		cfg:         cfg,
		cache:       c,
		tracker:     tracker,
		invalidator: inv,
		ctxBuilder:  builder,
		definitions: make(map[string]attribute.Definition),
		sem:         make(chan struct{}, cfg.MaxConcurrentComputations),
		metrics:     newMetrics(),
		listeners:   make(map[EventType][]registeredHandler),
		initialised: true,
		startedAt:   time.Now(),
	}

	e.emit(Event{Type: EventInitialised})
	return e, nil
}

// Cache exposes the Engine's backing cache, for callers (e.g. the demo HTTP
// surface) that need direct access for warmup or snapshot export/import.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Tracker exposes the Engine's dependency graph, read-only use only.
func (e *Engine) Tracker() *dependencytracker.Tracker { return e.tracker }

// ContextBuilder exposes the Engine's context builder so callers can build
// ComputationContexts to pass to Compute.
func (e *Engine) ContextBuilder() *contextbuilder.Builder { return e.ctxBuilder }

// Shutdown drains the invalidator's pending batch, stops the cache's
// cleanup loop, and marks the Engine uninitialised. A shut-down Engine
// rejects further Compute calls.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.initialised = false
	e.mu.Unlock()

	err := e.invalidator.Shutdown(ctx)
	e.cache.Close()
	e.emit(Event{Type: EventShutdown})
	return err
}

// Register validates def, adds it to the registry, and wires its declared
// dependencies into the dependency graph. On any dependency-wiring failure
// (cycle, depth, cap) the definition is not registered and any
// partially-added edges are rolled back.
func (e *Engine) Register(def attribute.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialised {
		return errors.New(errors.KindConfigurationError, errors.CodeConfigurationError, "engine is not initialised")
	}
	if _, exists := e.definitions[def.ID]; exists {
		return errors.DuplicateAttribute(def.ID)
	}

	var added []string
	for _, dep := range def.DeclaredDependencies {
		if err := e.tracker.AddEdge(def.ID, dep); err != nil {
			for _, to := range added {
				e.tracker.RemoveEdge(def.ID, to)
			}
			return err
		}
		if dep.TargetsAttribute() {
			added = append(added, dep.ToAttributeID)
		} else {
			added = append(added, dep.ExternalSource)
		}
	}

	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now()
	}
	def.Active = true
	e.definitions[def.ID] = def

	e.emit(Event{Type: EventAttributeRegistered, AttributeID: def.ID})
	return nil
}

// Unregister removes attributeID from the registry, its edges from the
// dependency graph, and any cached values computed for it.
func (e *Engine) Unregister(attributeID string) error {
	e.mu.Lock()
	if _, exists := e.definitions[attributeID]; !exists {
		e.mu.Unlock()
		return errors.AttributeNotFound(attributeID)
	}
	delete(e.definitions, attributeID)
	e.mu.Unlock()

	e.tracker.RemoveAttribute(attributeID)
	e.cache.InvalidateByAttribute(attributeID, "")
	e.emit(Event{Type: EventAttributeUnregistered, AttributeID: attributeID})
	return nil
}

// Validate checks a definition's structural invariants without registering
// it, so a caller can surface validation errors before committing to
// register.
func (e *Engine) Validate(def attribute.Definition) error {
	return def.Validate()
}

// Get returns the definition registered under attributeID.
func (e *Engine) Get(attributeID string) (attribute.Definition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	def, ok := e.definitions[attributeID]
	return def, ok
}

// List returns every registered definition, optionally narrowed to a single
// target kind (an empty targetKind returns all).
func (e *Engine) List(targetKind attribute.TargetKind) []attribute.Definition {
	e.mu.RLock()
	defer e.mu.RUnlock()

	defs := make([]attribute.Definition, 0, len(e.definitions))
	for _, def := range e.definitions {
		if targetKind != "" && def.TargetKind != targetKind {
			continue
		}
		defs = append(defs, def)
	}
	return defs
}
