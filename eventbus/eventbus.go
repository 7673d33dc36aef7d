// Package eventbus provides the advisory event-notification contract used
// by the broadcast core, plus an in-process implementation.
//
// Events are fire-and-forget from the emitter's perspective: failures are
// logged by the caller, never retried, and never part of a state
// mutation's transactional contract.
package eventbus

import (
	"sync"
	"time"
)

// Event types emitted by the broadcast core.
const (
	EventChannelCreated      = "channel.created"
	EventChannelSubscribed   = "channel.subscribed"
	EventChannelUnsubscribed = "channel.unsubscribed"
	EventChannelDeleted      = "channel.deleted"
	EventMessageBroadcast    = "message.broadcast"
	EventMessageReceived     = "message.received"
)

// Event is an advisory lifecycle notification.
type Event struct {
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Bus delivers events to side-observers.
type Bus interface {
	Emit(event Event) error
}

// HandlerFunc consumes emitted events.
type HandlerFunc func(event Event)

// Local is an in-process Bus that fans events out to registered
// handlers. Handlers subscribed to an empty type receive every event.
type Local struct {
	mu       sync.RWMutex
	handlers map[string][]HandlerFunc
}

// NewLocal creates an empty in-process bus.
func NewLocal() *Local {
	return &Local{handlers: make(map[string][]HandlerFunc)}
}

// Subscribe registers a handler for one event type, or for all events
// when eventType is empty.
func (l *Local) Subscribe(eventType string, handler HandlerFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[eventType] = append(l.handlers[eventType], handler)
}

// Emit dispatches the event to matching handlers. Never fails.
func (l *Local) Emit(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	l.mu.RLock()
	handlers := make([]HandlerFunc, 0, len(l.handlers[event.Type])+len(l.handlers[""]))
	handlers = append(handlers, l.handlers[event.Type]...)
	handlers = append(handlers, l.handlers[""]...)
	l.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}
