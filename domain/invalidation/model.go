// Package invalidation describes a unit of invalidation work: which axis of
// the cache it targets, why, and how urgently.
package invalidation

import (
	"time"

	"github.com/attrengine/core/domain/attribute"
	"github.com/attrengine/core/internal/obs/errors"
)

// Axis identifies which dimension of the cache an InvalidationRequest
// targets.
type Axis string

const (
	AxisAttribute  Axis = "attribute"
	AxisDependency Axis = "dependency"
	AxisTarget     Axis = "target"
	AxisCollection Axis = "collection"
	AxisDatabase   Axis = "database"
)

// Valid reports whether a is a recognised invalidation axis.
func (a Axis) Valid() bool {
	switch a {
	case AxisAttribute, AxisDependency, AxisTarget, AxisCollection, AxisDatabase:
		return true
	default:
		return false
	}
}

// Priority orders a request within the Invalidator's queue.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// rank returns a comparable ordinal for priority, higher is more urgent.
func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Less reports whether p is strictly less urgent than other.
func (p Priority) Less(other Priority) bool {
	return p.rank() < other.rank()
}

// Request is a single unit of invalidation work, selecting entries along one
// axis of the cache.
type Request struct {
	ID         string
	Axis       Axis
	AttributeID    string
	TargetID       string
	TargetKind     attribute.TargetKind
	Dependency     string
	CollectionName string

	Reason     string
	Priority   Priority
	Cascading  bool
	EnqueuedAt time.Time
}

// Validate checks the structural invariants a Request must satisfy before it
// can be queued or executed: a recognised axis and the selector fields that
// axis requires.
func (r Request) Validate() error {
	if !r.Axis.Valid() {
		return errors.New(errors.KindValidation, errors.CodeValidation, "invalid invalidation axis").
			WithDetails("axis", r.Axis)
	}
	switch r.Axis {
	case AxisAttribute:
		if r.AttributeID == "" {
			return errors.Empty("attributeId")
		}
	case AxisDependency:
		if r.Dependency == "" {
			return errors.Empty("dependency")
		}
	case AxisTarget:
		if r.TargetID == "" {
			return errors.Empty("targetId")
		}
		if !r.TargetKind.Valid() {
			return errors.InvalidTargetKind(r.TargetKind)
		}
	case AxisCollection:
		if r.CollectionName == "" {
			return errors.Empty("collectionName")
		}
	case AxisDatabase:
		// no selector fields required.
	}
	return nil
}

// Result is the outcome of executing a Request, whether immediately or as
// part of a batch.
type Result struct {
	Success                bool
	InvalidatedCount       int
	AffectedAttributes     []string
	CascadingInvalidations int
	ExecutionTime          time.Duration
	Err                    error
}
