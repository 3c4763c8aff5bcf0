// Package dependency describes the edges of the attribute dependency graph:
// what an attribute depends on, and how strongly.
package dependency

import "github.com/attrengine/core/internal/obs/errors"

// Kind classifies what a Dependency's target represents.
type Kind string

const (
	KindField              Kind = "field"
	KindCollection         Kind = "collection"
	KindExternalAPI        Kind = "externalApi"
	KindSystem             Kind = "system"
	KindComputedAttribute  Kind = "computedAttribute"
)

// Valid reports whether k is a recognised dependency kind.
func (k Kind) Valid() bool {
	switch k {
	case KindField, KindCollection, KindExternalAPI, KindSystem, KindComputedAttribute:
		return true
	default:
		return false
	}
}

// Priority orders dependency resolution and cascade fan-out.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Dependency is an edge from one attribute to another attribute, or to an
// external source, as declared on an AttributeDefinition or added directly
// to the DependencyTracker's graph.
type Dependency struct {
	FromAttributeID string
	ToAttributeID   string
	// ExternalSource names whatever ToAttributeID does not: an external API,
	// a system resource, or — for Kind == KindField — the dotted JSON path
	// into the target that the ComputationContextBuilder should project.
	ExternalSource     string
	Kind               Kind
	Priority           Priority
	InvalidateOnChange bool
}

// TargetsAttribute reports whether the dependency points at another
// attribute (as opposed to an external source).
func (d Dependency) TargetsAttribute() bool {
	return d.ToAttributeID != ""
}

// Validate checks the structural invariants a Dependency must satisfy before
// it can be added to the graph: a non-empty source, exactly one of
// ToAttributeID/ExternalSource set, and a recognised kind when Kind is set
// (an empty Kind is accepted).
func (d Dependency) Validate() error {
	if d.FromAttributeID == "" {
		return errors.Empty("fromAttributeId")
	}
	if d.ToAttributeID == "" && d.ExternalSource == "" {
		return errors.Empty("toAttributeId or externalSource")
	}
	if d.ToAttributeID != "" && d.ExternalSource != "" {
		return errors.New(errors.KindValidation, errors.CodeValidation,
			"dependency cannot set both toAttributeId and externalSource")
	}
	if d.Kind != "" && !d.Kind.Valid() {
		return errors.New(errors.KindValidation, errors.CodeValidation, "invalid dependency kind").
			WithDetails("kind", d.Kind)
	}
	if d.ToAttributeID != "" && d.ToAttributeID == d.FromAttributeID {
		return errors.CircularDependency(d.FromAttributeID, d.ToAttributeID)
	}
	return nil
}

// ChangeEventKind identifies the kind of mutation the DependencyTracker just
// applied to its graph.
type ChangeEventKind string

const (
	ChangeAdded   ChangeEventKind = "added"
	ChangeRemoved ChangeEventKind = "removed"
	ChangeCleared ChangeEventKind = "cleared"
)

// ChangeEvent is emitted by the DependencyTracker whenever the graph
// mutates.
type ChangeEvent struct {
	Kind        ChangeEventKind
	AttributeID string
	Edge        Dependency
	Affected    []string
}
