package coordinator

import (
	"log/slog"
	"sync"
)

// Event types
const (
	EventStackStatus     = "stack_status"
	EventDeviceJoined    = "device_joined"
	EventDeviceLeft      = "device_left"
	EventMessageSent     = "message_sent"
	EventIncomingMessage = "incoming_message"
	EventNetworkState    = "network_state"
	EventPermitJoin      = "permit_join"
	EventLinkDown        = "link_down"
)

// EventTypes lists every event the coordinator emits.
var EventTypes = []string{
	EventStackStatus,
	EventDeviceJoined,
	EventDeviceLeft,
	EventMessageSent,
	EventIncomingMessage,
	EventNetworkState,
	EventPermitJoin,
	EventLinkDown,
}

// Event is something the coordinator observed on the network or the link.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EventHandler is a callback for events.
type EventHandler func(Event)

// EventBus is a small pub/sub for coordinator events.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[string]map[uint64]EventHandler
	allHandlers map[uint64]EventHandler
	nextID      uint64
	logger      *slog.Logger
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		handlers:    make(map[string]map[uint64]EventHandler),
		allHandlers: make(map[uint64]EventHandler),
		logger:      logger,
	}
}

// On registers a handler for one event type and returns its unsubscribe
// function.
func (eb *EventBus) On(eventType string, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	if eb.handlers[eventType] == nil {
		eb.handlers[eventType] = make(map[uint64]EventHandler)
	}
	eb.handlers[eventType][id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.handlers[eventType], id)
	}
}

// OnAll registers a handler for every event and returns its unsubscribe
// function.
func (eb *EventBus) OnAll(handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	eb.allHandlers[id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.allHandlers, id)
	}
}

// Emit calls the matching handlers synchronously. A panicking handler is
// recovered and logged.
func (eb *EventBus) Emit(event Event) {
	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.handlers[event.Type])+len(eb.allHandlers))
	for _, h := range eb.handlers[event.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range eb.allHandlers {
		handlers = append(handlers, h)
	}
	eb.mu.RUnlock()

	for _, h := range handlers {
		eb.call(event, h)
	}
}

func (eb *EventBus) call(event Event, h EventHandler) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("event handler panic", "type", event.Type, "panic", r)
		}
	}()
	h(event)
}
