// Package dependencytracker maintains the directed graph of declared
// attribute dependencies: cycle detection, depth bounds, topological
// resolution, and the transitive "affected set" used to fan out
// invalidation cascades.
package dependencytracker

import (
	"sync"

	"github.com/attrengine/core/domain/dependency"
	"github.com/attrengine/core/internal/obs/errors"
	"github.com/attrengine/core/internal/obs/logging"
)

// Config bounds the size and shape of the graph.
type Config struct {
	MaxDepth             int
	MaxEdgesPerAttribute int
	Logger               *logging.Logger
	OnChange             func(dependency.ChangeEvent)
}

func (c Config) withDefaults() Config {
	if c.MaxDepth <= 0 {
		c.MaxDepth = 32
	}
	if c.MaxEdgesPerAttribute <= 0 {
		c.MaxEdgesPerAttribute = 256
	}
	if c.Logger == nil {
		c.Logger = logging.Noop()
	}
	return c
}

// Tracker owns the dependency graph. Forward and reverse indexes are
// maintained in lockstep; the Dependency records themselves carry metadata
// that does not affect graph shape.
type Tracker struct {
	cfg Config

	mu      sync.RWMutex
	forward map[string]map[string]dependency.Dependency // attributeID -> toAttributeID -> edge
	reverse map[string]map[string]struct{}               // attributeID -> set of attributeIDs depending on it
}

// New creates an empty Tracker.
func New(cfg Config) *Tracker {
	return &Tracker{
		cfg:     cfg.withDefaults(),
		forward: make(map[string]map[string]dependency.Dependency),
		reverse: make(map[string]map[string]struct{}),
	}
}

func (t *Tracker) emit(evt dependency.ChangeEvent) {
	if t.cfg.OnChange != nil {
		t.cfg.OnChange(evt)
	}
}

// AddEdge adds a dependency from -> dep.ToAttributeID (or an external
// source, which never participates in cycle/depth checks since it has no
// outgoing edges of its own). Fails on self-loop, per-attribute edge cap,
// cycle, or exceeding the configured maximum depth.
func (t *Tracker) AddEdge(from string, dep dependency.Dependency) error {
	if from == "" {
		return errors.Empty("from")
	}
	dep.FromAttributeID = from
	if err := dep.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.forward[from]) >= t.cfg.MaxEdgesPerAttribute {
		return errors.New(errors.KindValidation, errors.CodeValidation, "attribute has reached its maximum number of declared dependencies").
			WithAttribute(from).WithDetails("max", t.cfg.MaxEdgesPerAttribute)
	}

	if !dep.TargetsAttribute() {
		// External-source edges carry no graph-shape implications: they have
		// no outgoing edges, so they cannot participate in a cycle or extend
		// any path's depth.
		if t.forward[from] == nil {
			t.forward[from] = make(map[string]dependency.Dependency)
		}
		t.forward[from][dep.ExternalSource] = dep
		t.emit(dependency.ChangeEvent{Kind: dependency.ChangeAdded, AttributeID: from, Edge: dep, Affected: t.affectedLocked(from)})
		return nil
	}

	to := dep.ToAttributeID
	if to == from {
		return errors.CircularDependency(from, to)
	}

	if t.reachableLocked(to, from) {
		return errors.CircularDependency(from, to)
	}

	if depth := t.depthFromLocked(from, to); depth > t.cfg.MaxDepth {
		return errors.MaxDepthExceeded(from, t.cfg.MaxDepth)
	}

	if t.forward[from] == nil {
		t.forward[from] = make(map[string]dependency.Dependency)
	}
	t.forward[from][to] = dep
	if t.reverse[to] == nil {
		t.reverse[to] = make(map[string]struct{})
	}
	t.reverse[to][from] = struct{}{}

	t.emit(dependency.ChangeEvent{Kind: dependency.ChangeAdded, AttributeID: from, Edge: dep, Affected: t.affectedLocked(from)})
	return nil
}

// reachableLocked reports whether target is reachable from start by
// following forward edges (BFS). Caller must hold t.mu.
func (t *Tracker) reachableLocked(start, target string) bool {
	if start == target {
		return true
	}
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for next := range t.forward[node] {
			if next == target {
				return true
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// depthFromLocked estimates the depth of the longest path that would exist
// starting at from if the edge from->to were added, via DFS with a visited
// set that treats a revisited node as depth 0 to terminate on repeats.
func (t *Tracker) depthFromLocked(from, to string) int {
	visited := make(map[string]bool)
	var walk func(node string) int
	walk = func(node string) int {
		if visited[node] {
			return 0
		}
		visited[node] = true
		best := 0
		for next := range t.forward[node] {
			if d := walk(next); d+1 > best {
				best = d + 1
			}
		}
		return best
	}
	// Edges on the longest path below `to`, plus the new edge from->to.
	return 1 + walk(to)
}

// RemoveEdge removes the edge from -> to, if present.
func (t *Tracker) RemoveEdge(from, to string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	edge, ok := t.forward[from][to]
	if !ok {
		return
	}
	delete(t.forward[from], to)
	if len(t.forward[from]) == 0 {
		delete(t.forward, from)
	}
	if set, ok := t.reverse[to]; ok {
		delete(set, from)
		if len(set) == 0 {
			delete(t.reverse, to)
		}
	}
	t.emit(dependency.ChangeEvent{Kind: dependency.ChangeRemoved, AttributeID: from, Edge: edge, Affected: t.affectedLocked(from)})
}

// RemoveAttribute removes every edge touching attributeID, in either
// direction, as part of unregistering it.
func (t *Tracker) RemoveAttribute(attributeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	affected := t.affectedLocked(attributeID)

	for to := range t.forward[attributeID] {
		if set, ok := t.reverse[to]; ok {
			delete(set, attributeID)
			if len(set) == 0 {
				delete(t.reverse, to)
			}
		}
	}
	delete(t.forward, attributeID)

	for from := range t.reverse[attributeID] {
		delete(t.forward[from], attributeID)
		if len(t.forward[from]) == 0 {
			delete(t.forward, from)
		}
	}
	delete(t.reverse, attributeID)

	t.emit(dependency.ChangeEvent{Kind: dependency.ChangeRemoved, AttributeID: attributeID, Affected: affected})
}

// Clear removes every edge from the graph.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.forward = make(map[string]map[string]dependency.Dependency)
	t.reverse = make(map[string]map[string]struct{})
	t.mu.Unlock()

	t.emit(dependency.ChangeEvent{Kind: dependency.ChangeCleared})
}

// Resolve returns an order over ids in which every dependency appears before
// its dependent, via DFS with a "visiting" colour for cycle detection.
// Repeated inputs are deduplicated.
func (t *Tracker) Resolve(ids []string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int)
	var order []string

	var visit func(node string) error
	visit = func(node string) error {
		switch color[node] {
		case black:
			return nil
		case grey:
			return errors.CircularDependency(node, node)
		}
		color[node] = grey
		for to := range t.forward[node] {
			if err := visit(to); err != nil {
				return err
			}
		}
		color[node] = black
		order = append(order, node)
		return nil
	}

	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Affected performs a BFS over the reverse graph from rootID, returning
// every transitive dependent (excluding the root itself), with no bound on
// how many hops the BFS walks. Used internally and by callers that want the
// full affected set regardless of cascade depth.
func (t *Tracker) Affected(rootID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.affectedWithinDepthLocked(rootID, 0)
}

// AffectedWithinDepth behaves like Affected but stops expanding the BFS
// frontier once maxDepth hops from rootID have been walked. maxDepth <= 0
// means unbounded. Used by the Invalidator to enforce CascadeMaxDepth.
func (t *Tracker) AffectedWithinDepth(rootID string, maxDepth int) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.affectedWithinDepthLocked(rootID, maxDepth)
}

// affectedLocked is Affected's body for callers that already hold t.mu.
func (t *Tracker) affectedLocked(rootID string) []string {
	return t.affectedWithinDepthLocked(rootID, 0)
}

func (t *Tracker) affectedWithinDepthLocked(rootID string, maxDepth int) []string {
	type node struct {
		id    string
		depth int
	}

	visited := map[string]bool{rootID: true}
	queue := []node{{id: rootID, depth: 0}}
	var affected []string

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if maxDepth > 0 && cur.depth >= maxDepth {
			continue
		}
		for dependent := range t.reverse[cur.id] {
			if visited[dependent] {
				continue
			}
			visited[dependent] = true
			affected = append(affected, dependent)
			queue = append(queue, node{id: dependent, depth: cur.depth + 1})
		}
	}
	return affected
}

// Dependencies returns the declared edges from attributeID.
func (t *Tracker) Dependencies(attributeID string) []dependency.Dependency {
	t.mu.RLock()
	defer t.mu.RUnlock()

	edges := make([]dependency.Dependency, 0, len(t.forward[attributeID]))
	for _, edge := range t.forward[attributeID] {
		edges = append(edges, edge)
	}
	return edges
}

// EdgeCount returns the total number of edges currently in the graph, for
// health reporting.
func (t *Tracker) EdgeCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, edges := range t.forward {
		n += len(edges)
	}
	return n
}
