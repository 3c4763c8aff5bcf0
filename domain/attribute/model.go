// Package attribute describes the declarative shape of a computed attribute:
// what it is called, what kind of target it applies to, and the policies
// that govern how the engine caches and secures its computation.
package attribute

import (
	"context"
	"time"

	"github.com/attrengine/core/domain/dependency"
	"github.com/attrengine/core/internal/obs/errors"
)

// TargetKind identifies the category of entity an attribute is computed for.
type TargetKind string

const (
	TargetUser       TargetKind = "user"
	TargetDocument   TargetKind = "document"
	TargetCollection TargetKind = "collection"
	TargetDatabase   TargetKind = "database"
)

// Valid reports whether k is one of the known target kinds.
func (k TargetKind) Valid() bool {
	switch k {
	case TargetUser, TargetDocument, TargetCollection, TargetDatabase:
		return true
	default:
		return false
	}
}

// Value is the opaque result of a computation. The engine never inspects it.
type Value = interface{}

// ComputeFunc is the opaque, capability-restricted body of an attribute.
// Implementations receive a cancellable context.Context (honoured for
// timeout enforcement) and a ComputationContext built for the specific
// target being computed.
type ComputeFunc func(ctx context.Context, cc interface{}) (Value, error)

// CachePolicy controls whether and how long a computed value is memoised.
type CachePolicy struct {
	Enabled             bool
	TTL                 time.Duration
	InvalidationTriggers []string
}

// SecurityPolicy bounds what a compute body is permitted to do and how long
// it is permitted to run.
type SecurityPolicy struct {
	AllowExternal  bool
	Timeout        time.Duration
	MaxMemoryBytes int64
}

// DefaultTimeout is used when a definition's SecurityPolicy.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Definition is the declarative specification of a computed attribute,
// registered once with the engine and invoked by (attributeID, target)
// thereafter.
type Definition struct {
	ID          string
	Name        string
	TargetKind  TargetKind
	// TargetCollection is required when TargetKind == TargetDocument.
	TargetCollection string

	Compute ComputeFunc

	DeclaredDependencies []dependency.Dependency

	Caching  CachePolicy
	Security SecurityPolicy

	CreatedBy string
	CreatedAt time.Time
	Active    bool
}

// Timeout returns the effective compute timeout for the definition, applying
// DefaultTimeout when unset.
func (d Definition) Timeout() time.Duration {
	if d.Security.Timeout <= 0 {
		return DefaultTimeout
	}
	return d.Security.Timeout
}

// Validate checks the structural invariants a Definition must satisfy before
// it can be registered: a non-empty ID, a compute body, a recognised target
// kind, and a target collection when the target kind requires one.
func (d Definition) Validate() error {
	if d.ID == "" {
		return errors.Empty("id")
	}
	if d.Compute == nil {
		return errors.Empty("compute")
	}
	if !d.TargetKind.Valid() {
		return errors.InvalidTargetKind(d.TargetKind)
	}
	if d.TargetKind == TargetDocument && d.TargetCollection == "" {
		return errors.Empty("targetCollection")
	}
	return nil
}
