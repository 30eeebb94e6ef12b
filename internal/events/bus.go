// Package events is the in-process pub/sub used to fan lamp frames, mode
// changes and potentiometer values out to the web UI and MQTT.
package events

import (
	"log/slog"
	"sync"
)

// Event types
const (
	EventMode          = "mode"
	EventFrame         = "frame"
	EventPotentiometer = "potentiometer"
	EventLayer         = "layer"
)

// Event represents a device event.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ModeData is the payload of EventMode.
type ModeData struct {
	Autonomous bool `json:"autonomous"`
}

// FrameData is the payload of EventFrame: committed lamp colors as
// 0xRRGGBB values indexed by lamp id.
type FrameData struct {
	Seq    uint64   `json:"seq"`
	Colors []uint32 `json:"colors"`
}

// PotentiometerData is the payload of EventPotentiometer.
type PotentiometerData struct {
	Index uint8  `json:"index"`
	Value uint16 `json:"value"`
}

// LayerData is the payload of EventLayer.
type LayerData struct {
	DefaultLayer uint8 `json:"default_layer"`
}

// Handler is a callback for events.
type Handler func(Event)

// Bus provides pub/sub for device events.
type Bus struct {
	mu          sync.RWMutex
	handlers    map[string]map[uint64]Handler
	allHandlers map[uint64]Handler
	nextID      uint64
	logger      *slog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		handlers:    make(map[string]map[uint64]Handler),
		allHandlers: make(map[uint64]Handler),
		logger:      logger,
	}
}

// On registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) On(eventType string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[uint64]Handler)
	}
	b.handlers[eventType][id] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[eventType], id)
	}
}

// OnAll registers a handler that receives all events.
// Returns an unsubscribe function.
func (b *Bus) OnAll(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.allHandlers[id] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.allHandlers, id)
	}
}

// Emit sends an event to all matching handlers.
// Handlers run synchronously on the caller's goroutine and must not block;
// a panicking handler is recovered.
func (b *Bus) Emit(event Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[event.Type])+len(b.allHandlers))
	for _, h := range b.handlers[event.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range b.allHandlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panic", "type", event.Type, "panic", r)
				}
			}()
			h(event)
		}()
	}
}
