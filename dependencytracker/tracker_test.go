package dependencytracker

import (
	"testing"

	"github.com/attrengine/core/domain/dependency"
	"github.com/attrengine/core/internal/obs/errors"
)

func edge(to string) dependency.Dependency {
	return dependency.Dependency{ToAttributeID: to, Kind: dependency.KindComputedAttribute}
}

func TestTracker_AddEdge_RejectsSelfLoop(t *testing.T) {
	tr := New(Config{})
	err := tr.AddEdge("a", edge("a"))
	if !errors.Is(err, errors.KindCircularDependency) {
		t.Errorf("expected CircularDependency, got %v", err)
	}
}

func TestTracker_AddEdge_RejectsCycle(t *testing.T) {
	tr := New(Config{})
	if err := tr.AddEdge("a", edge("b")); err != nil {
		t.Fatalf("AddEdge(a->b) error = %v", err)
	}
	if err := tr.AddEdge("b", edge("c")); err != nil {
		t.Fatalf("AddEdge(b->c) error = %v", err)
	}
	err := tr.AddEdge("c", edge("a"))
	if !errors.Is(err, errors.KindCircularDependency) {
		t.Errorf("expected CircularDependency closing a->b->c->a, got %v", err)
	}
}

func TestTracker_AddEdge_RejectsDepthExceeded(t *testing.T) {
	tr := New(Config{MaxDepth: 2})
	// Build a chain c -> d, then b -> c (depth from b is 2, still within
	// bounds), then attempt a -> b: depth from a would be 3, over MaxDepth.
	if err := tr.AddEdge("c", edge("d")); err != nil {
		t.Fatalf("AddEdge(c->d) error = %v", err)
	}
	if err := tr.AddEdge("b", edge("c")); err != nil {
		t.Fatalf("AddEdge(b->c) error = %v", err)
	}
	err := tr.AddEdge("a", edge("b"))
	if !errors.Is(err, errors.KindMaxDepthExceeded) {
		t.Errorf("expected MaxDepthExceeded, got %v", err)
	}
}

func TestTracker_AddEdge_RejectsOverCap(t *testing.T) {
	tr := New(Config{MaxEdgesPerAttribute: 1})
	if err := tr.AddEdge("a", edge("b")); err != nil {
		t.Fatalf("AddEdge(a->b) error = %v", err)
	}
	err := tr.AddEdge("a", edge("c"))
	if err == nil {
		t.Error("expected error when exceeding per-attribute edge cap")
	}
}

func TestTracker_AddEdge_ExternalSourceNeverCycles(t *testing.T) {
	tr := New(Config{})
	dep := dependency.Dependency{ExternalSource: "weather-api", Kind: dependency.KindExternalAPI}
	if err := tr.AddEdge("a", dep); err != nil {
		t.Fatalf("AddEdge external source error = %v", err)
	}
	deps := tr.Dependencies("a")
	if len(deps) != 1 || deps[0].ExternalSource != "weather-api" {
		t.Errorf("Dependencies(a) = %+v, want one external-source edge", deps)
	}
}

func TestTracker_Resolve_OrdersDependenciesBeforeDependents(t *testing.T) {
	tr := New(Config{})
	_ = tr.AddEdge("a", edge("b"))
	_ = tr.AddEdge("b", edge("c"))

	order, err := tr.Resolve([]string{"a"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	pos := make(map[string]int)
	for i, id := range order {
		pos[id] = i
	}
	if pos["c"] > pos["b"] || pos["b"] > pos["a"] {
		t.Errorf("Resolve() order = %v, want c before b before a", order)
	}
}

func TestTracker_Resolve_DeduplicatesRepeatedInputs(t *testing.T) {
	tr := New(Config{})
	_ = tr.AddEdge("a", edge("b"))

	order, err := tr.Resolve([]string{"a", "a", "b"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(order) != 2 {
		t.Errorf("Resolve() length = %d, want 2 (deduplicated)", len(order))
	}
}

func TestTracker_Affected_ReturnsTransitiveDependents(t *testing.T) {
	tr := New(Config{})
	// c depends on b, b depends on a: a change to a affects b and c.
	_ = tr.AddEdge("b", edge("a"))
	_ = tr.AddEdge("c", edge("b"))

	affected := tr.Affected("a")
	set := map[string]bool{}
	for _, id := range affected {
		set[id] = true
	}
	if !set["b"] || !set["c"] {
		t.Errorf("Affected(a) = %v, want b and c", affected)
	}
	if set["a"] {
		t.Error("Affected() should exclude the root")
	}
}

func TestTracker_AffectedWithinDepth_StopsAtBoundary(t *testing.T) {
	tr := New(Config{})
	// c depends on b, b depends on a, d depends on c: a -> b -> c -> d.
	_ = tr.AddEdge("b", edge("a"))
	_ = tr.AddEdge("c", edge("b"))
	_ = tr.AddEdge("d", edge("c"))

	within1 := tr.AffectedWithinDepth("a", 1)
	set1 := map[string]bool{}
	for _, id := range within1 {
		set1[id] = true
	}
	if !set1["b"] || set1["c"] || set1["d"] {
		t.Errorf("AffectedWithinDepth(a, 1) = %v, want only b", within1)
	}

	within2 := tr.AffectedWithinDepth("a", 2)
	set2 := map[string]bool{}
	for _, id := range within2 {
		set2[id] = true
	}
	if !set2["b"] || !set2["c"] || set2["d"] {
		t.Errorf("AffectedWithinDepth(a, 2) = %v, want b and c but not d", within2)
	}

	unbounded := tr.AffectedWithinDepth("a", 0)
	if len(unbounded) != 3 {
		t.Errorf("AffectedWithinDepth(a, 0) = %v, want all 3 transitive dependents", unbounded)
	}
}

func TestTracker_AddEdge_EmitsEventNamingFromAttribute(t *testing.T) {
	tr := New(Config{})
	var events []dependency.ChangeEvent
	tr.cfg.OnChange = func(evt dependency.ChangeEvent) { events = append(events, evt) }

	_ = tr.AddEdge("b", edge("a"))
	_ = tr.AddEdge("c", edge("b"))

	if len(events) != 2 {
		t.Fatalf("expected 2 change events, got %d", len(events))
	}
	first := events[0]
	if first.AttributeID != "b" {
		t.Fatalf("expected first event's AttributeID == b, got %q", first.AttributeID)
	}
	last := events[len(events)-1]
	if last.AttributeID != "c" {
		t.Fatalf("expected last event's AttributeID == c, got %q", last.AttributeID)
	}
}

func TestTracker_RemoveAttribute_EmitsPrecomputedAffected(t *testing.T) {
	tr := New(Config{})
	_ = tr.AddEdge("b", edge("a"))
	_ = tr.AddEdge("c", edge("b"))

	var events []dependency.ChangeEvent
	tr.cfg.OnChange = func(evt dependency.ChangeEvent) { events = append(events, evt) }

	tr.RemoveAttribute("a")

	if len(events) != 1 {
		t.Fatalf("expected 1 change event, got %d", len(events))
	}
	set := map[string]bool{}
	for _, id := range events[0].Affected {
		set[id] = true
	}
	if !set["b"] || !set["c"] {
		t.Errorf("RemoveAttribute(a) change event Affected = %v, want b and c", events[0].Affected)
	}
}

func TestTracker_RemoveAttribute_ClearsBothDirections(t *testing.T) {
	tr := New(Config{})
	_ = tr.AddEdge("a", edge("b"))

	tr.RemoveAttribute("a")

	if n := tr.EdgeCount(); n != 0 {
		t.Errorf("EdgeCount() after RemoveAttribute = %d, want 0", n)
	}
	if affected := tr.Affected("b"); len(affected) != 0 {
		t.Errorf("Affected(b) after removing a = %v, want empty", affected)
	}
}

func TestTracker_Clear(t *testing.T) {
	tr := New(Config{})
	_ = tr.AddEdge("a", edge("b"))
	tr.Clear()
	if n := tr.EdgeCount(); n != 0 {
		t.Errorf("EdgeCount() after Clear = %d, want 0", n)
	}
}

func TestTracker_EmitsChangeEvents(t *testing.T) {
	var events []dependency.ChangeEvent
	tr := New(Config{OnChange: func(e dependency.ChangeEvent) {
		events = append(events, e)
	}})

	_ = tr.AddEdge("a", edge("b"))
	tr.RemoveEdge("a", "b")

	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Kind != dependency.ChangeAdded {
		t.Errorf("events[0].Kind = %v, want added", events[0].Kind)
	}
	if events[1].Kind != dependency.ChangeRemoved {
		t.Errorf("events[1].Kind = %v, want removed", events[1].Kind)
	}
}
