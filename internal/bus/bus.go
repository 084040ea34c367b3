// Package bus provides an internal event bus connecting the frame driver
// with its collaborators.
package bus

import (
	"sync"
)

// EventType identifies different event types
type EventType string

const (
	// Model lifecycle
	EventTypeModelLoaded     EventType = "model.loaded"
	EventTypeModelLoadFailed EventType = "model.load_failed"
	EventTypeBoundsReady     EventType = "scene.bounds_ready"

	// Avatar state
	EventTypeEmotionChanged    EventType = "avatar.emotion_changed"
	EventTypeTransformsChanged EventType = "avatar.transforms_changed"
	EventTypeBoneSelected      EventType = "avatar.bone_selected"

	// Tracking
	EventTypeTrackingAcquired EventType = "pose.tracking_acquired"
	EventTypeTrackingLost     EventType = "pose.tracking_lost"

	// Rendering context
	EventTypeContextLost     EventType = "render.context_lost"
	EventTypeContextRestored EventType = "render.context_restored"

	// Landmark stream
	EventTypeLandmarksConnected    EventType = "landmarks.connected"
	EventTypeLandmarksDisconnected EventType = "landmarks.disconnected"
)

// Event represents a bus event
type Event struct {
	Type EventType
	Data map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for an event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) {
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

func (b *EventBus) snapshot(t EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handlers := make([]Handler, len(b.handlers[t]))
	copy(handlers, b.handlers[t])
	return handlers
}

// Publish hands the event to every handler on its own goroutine. The
// frame loop publishes with this so a slow subscriber never stalls a tick.
func (b *EventBus) Publish(event Event) {
	for _, handler := range b.snapshot(event.Type) {
		go handler(event)
	}
}

// PublishSync sends an event and waits for all handlers to complete
func (b *EventBus) PublishSync(event Event) {
	var wg sync.WaitGroup
	for _, handler := range b.snapshot(event.Type) {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]Handler)
}
