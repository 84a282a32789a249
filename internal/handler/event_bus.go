// internal/handler/event_bus.go
package handler

import (
	"sync"

	"go.uber.org/zap"

	"gnss-service/internal/conn"
	"gnss-service/internal/model"
)

// EventBus distributes stream events to subscribers. Publishers never
// block: a full bus or a slow subscriber drops events rather than
// stalling the stream pipeline.
type EventBus struct {
	subscribers map[model.EventType][]chan *model.StreamEvent
	all         []chan *model.StreamEvent
	events      chan *model.StreamEvent
	mutex       sync.RWMutex
	logger      *zap.Logger
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[model.EventType][]chan *model.StreamEvent),
		events:      make(chan *model.StreamEvent, 1000),
		logger:      logger.With(zap.String("component", "event_bus")),
	}
}

// Start runs the distribution loop until the bus channel is closed
func (eb *EventBus) Start() {
	for event := range eb.events {
		eb.distributeEvent(event)
	}
}

// Publish publishes an event
func (eb *EventBus) Publish(event *model.StreamEvent) {
	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.EventType)),
		)
	}
}

// Subscribe subscribes to events of the given types
func (eb *EventBus) Subscribe(eventTypes ...model.EventType) <-chan *model.StreamEvent {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subscriber := make(chan *model.StreamEvent, 100)
	for _, eventType := range eventTypes {
		eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
	}
	return subscriber
}

// SubscribeAll subscribes to every event published on the bus
func (eb *EventBus) SubscribeAll() <-chan *model.StreamEvent {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subscriber := make(chan *model.StreamEvent, 100)
	eb.all = append(eb.all, subscriber)
	return subscriber
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event *model.StreamEvent) {
	eb.mutex.RLock()
	subscribers := append(eb.subscribers[event.EventType], eb.all...)
	eb.mutex.RUnlock()

	for _, subscriber := range subscribers {
		select {
		case subscriber <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}

// StreamEventHandler turns connection lifecycle notifications into
// published stream events. Its callbacks never call back into the
// connection manager.
type StreamEventHandler struct {
	bus    *EventBus
	logger *zap.Logger
}

// NewStreamEventHandler creates a new stream event handler
func NewStreamEventHandler(bus *EventBus, logger *zap.Logger) *StreamEventHandler {
	return &StreamEventHandler{
		bus:    bus,
		logger: logger,
	}
}

// OnStateChange handles connection state transitions
func (seh *StreamEventHandler) OnStateChange(state conn.State) {
	eventType := model.EventStateChange
	switch state {
	case conn.StateConnected:
		eventType = model.EventStreamConnected
	case conn.StateDisconnected:
		eventType = model.EventStreamDisconnected
	}

	seh.bus.Publish(model.NewStreamEvent(eventType, string(conn.SeverityInfo), "connection", model.JSONObject{
		"state": string(state),
	}))

	seh.logger.Info("Connection state change published", zap.String("state", string(state)))
}

// OnStatus handles severity-tagged status notifications
func (seh *StreamEventHandler) OnStatus(severity conn.Severity, message string) {
	eventType := model.EventStateChange
	if severity == conn.SeverityError {
		eventType = model.EventStreamError
	}

	seh.bus.Publish(model.NewStreamEvent(eventType, string(severity), "connection", model.JSONObject{
		"message": message,
	}))

	switch severity {
	case conn.SeverityError:
		seh.logger.Error("Stream status", zap.String("message", message))
	case conn.SeverityWarning:
		seh.logger.Warn("Stream status", zap.String("message", message))
	default:
		seh.logger.Info("Stream status", zap.String("message", message))
	}
}

// OnWriteError handles failed writes to the receiver
func (seh *StreamEventHandler) OnWriteError(err error) {
	seh.bus.Publish(model.NewStreamEvent(model.EventWriteError, string(conn.SeverityError), "connection", model.JSONObject{
		"error": err.Error(),
	}))

	seh.logger.Error("Receiver write error published", zap.Error(err))
}
