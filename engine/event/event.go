// Package event defines the value types that flow through a behavioral
// program: the Event itself and the Set predicates used to request,
// wait for, block, and interrupt on events.
package event

import "reflect"

// Event is an immutable name plus an optional opaque payload. Two events
// are equal when their names match and their payloads are deeply equal
// (or both absent). The payload is never interpreted by the engine.
type Event struct {
	Name    string
	Payload any
}

// New constructs an Event. A nil payload means "no payload".
func New(name string, payload any) Event {
	return Event{Name: name, Payload: payload}
}

// Named constructs a payload-less Event.
func Named(name string) Event {
	return Event{Name: name}
}

// Equal reports whether e and other identify the same event.
func (e Event) Equal(other Event) bool {
	if e.Name != other.Name {
		return false
	}
	if e.Payload == nil || other.Payload == nil {
		return e.Payload == other.Payload
	}
	return reflect.DeepEqual(e.Payload, other.Payload)
}

// String renders the event for logging and trace output.
func (e Event) String() string {
	if e.Payload == nil {
		return e.Name
	}
	return e.Name + "(" + toString(e.Payload) + ")"
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return reflect.TypeOf(v).String()
}

// Contains reports whether any event in the slice equals e.
func Contains(events []Event, e Event) bool {
	for _, candidate := range events {
		if candidate.Equal(e) {
			return true
		}
	}
	return false
}
