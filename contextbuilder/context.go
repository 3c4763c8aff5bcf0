// Package contextbuilder produces the capability-bounded ComputationContext
// passed to a compute body: the target, its identity, and whatever
// capabilities (database, collection, HTTP, user identity) the definition's
// security policy permits.
package contextbuilder

import (
	"net/http"
	"time"

	"github.com/attrengine/core/domain/attribute"
)

// DatabaseHandle is an opaque capability a compute body uses to read
// database-scoped data. The engine never inspects it.
type DatabaseHandle interface{}

// CollectionHandle is an opaque capability scoping access to one collection.
type CollectionHandle interface{}

// Context is the capability bundle passed to a compute body. It is built
// fresh per computation and never retained past the call.
type Context struct {
	Target     interface{}
	TargetID   string
	TargetKind attribute.TargetKind

	Database   DatabaseHandle
	Collection CollectionHandle

	CurrentUser interface{}
	AuthContext interface{}

	Timestamp time.Time
	NodeID    string

	HTTPClient *http.Client

	// CustomData holds projected fields and other small, structured
	// auxiliary data. Bounded by Builder.Config.MaxCustomDataBytes.
	CustomData map[string]interface{}
}
