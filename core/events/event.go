package events

import "hourbank/core/types"

// Event represents a structured state change emitted by a native module.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Payload is implemented by events that render a canonical types.Event.
type Payload interface {
	Event
	Event() *types.Event
}

type wrapped struct {
	evt *types.Event
}

func (w wrapped) EventType() string {
	if w.evt == nil {
		return ""
	}
	return w.evt.Type
}

func (w wrapped) Event() *types.Event { return w.evt }

// Wrap adapts a rendered payload to the Event interface.
func Wrap(evt *types.Event) Payload { return wrapped{evt: evt} }

// Buffer collects events emitted during a single transaction. The host
// publishes the buffered events only when the transaction commits.
type Buffer struct {
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.events = append(b.events, evt)
}

// Events returns the buffered events in emission order.
func (b *Buffer) Events() []Event {
	if b == nil {
		return nil
	}
	return append([]Event(nil), b.events...)
}

// Payloads renders the buffered events that expose a canonical payload.
func (b *Buffer) Payloads() []types.Event {
	if b == nil {
		return nil
	}
	out := make([]types.Event, 0, len(b.events))
	for _, evt := range b.events {
		p, ok := evt.(Payload)
		if !ok || p.Event() == nil {
			continue
		}
		out = append(out, *p.Event().Clone())
	}
	return out
}

// Reset drops all buffered events.
func (b *Buffer) Reset() {
	if b == nil {
		return
	}
	b.events = nil
}
