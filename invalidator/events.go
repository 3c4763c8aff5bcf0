package invalidator

import "github.com/attrengine/core/domain/invalidation"

// EventType identifies the kind of lifecycle event an Invalidator emits.
type EventType string

const (
	EventInvalidated        EventType = "invalidated"
	EventBatchInvalidated   EventType = "batchInvalidated"
	EventInvalidationError  EventType = "invalidationError"
	EventCascadingError     EventType = "cascadingError"
	EventConfigUpdated      EventType = "configUpdated"
)

// Event is published to an Invalidator's EventHandler on every observable
// state change. Handlers must not block.
type Event struct {
	Type      EventType
	Request   invalidation.Request
	Result    invalidation.Result
	BatchSize int
	Err       error
}

// EventHandler receives Invalidator lifecycle events. A nil handler is a
// valid, no-op default.
type EventHandler func(Event)
