package events

import "nftmarket/core/types"

// Event represents a structured state change emitted by the marketplace.
type Event interface {
	EventType() string
}

// Payload is implemented by events that can be rendered in wire form.
type Payload interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. archive, streams).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Fanout delivers every event to each of the wrapped emitters in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter == nil {
			continue
		}
		emitter.Emit(evt)
	}
}

// Wire converts an event to its wire form when it supports one.
func Wire(evt Event) *types.Event {
	payload, ok := evt.(Payload)
	if !ok {
		return nil
	}
	return payload.Event()
}
