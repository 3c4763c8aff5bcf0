package engine

import "github.com/attrengine/core/domain/attribute"

// EventType identifies the kind of lifecycle event the Engine emits.
type EventType string

const (
	EventInitialised           EventType = "initialised"
	EventShutdown              EventType = "shutdown"
	EventAttributeRegistered   EventType = "attributeRegistered"
	EventAttributeUnregistered EventType = "attributeUnregistered"
	EventComputed              EventType = "computed"
	EventCacheHit              EventType = "cache-hit"
	EventCacheMiss             EventType = "cache-miss"
	EventInvalidated           EventType = "invalidated"
	EventError                 EventType = "error"
)

// Event is published to every registered listener on an observable Engine
// state change.
type Event struct {
	Type        EventType
	AttributeID string
	TargetID    string
	TargetKind  attribute.TargetKind
	Err         error
	Details     map[string]interface{}
}

// Handler receives Engine events.
type Handler func(Event)

// On registers handler under eventType and returns a token that Off accepts
// to remove it.
func (e *Engine) On(eventType EventType, handler Handler) int {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()

	token := e.nextToken
	e.nextToken++
	e.listeners[eventType] = append(e.listeners[eventType], registeredHandler{token: token, fn: handler})
	return token
}

// Off removes the handler registered under token for eventType.
func (e *Engine) Off(eventType EventType, token int) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()

	handlers := e.listeners[eventType]
	for i, h := range handlers {
		if h.token == token {
			e.listeners[eventType] = append(handlers[:i], handlers[i+1:]...)
			return
		}
	}
}

type registeredHandler struct {
	token int
	fn    Handler
}

// emit invokes every handler registered for evt.Type under a snapshot of
// the listener slice, so a handler may itself call On/Off without
// deadlocking.
func (e *Engine) emit(evt Event) {
	e.listenersMu.RLock()
	handlers := make([]registeredHandler, len(e.listeners[evt.Type]))
	copy(handlers, e.listeners[evt.Type])
	e.listenersMu.RUnlock()

	for _, h := range handlers {
		h.fn(evt)
	}
}
