package eventbus

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Event is the abstract form of a domain occurrence. Typed events are turned
// into this form before any handler or waiter lookup.
type Event struct {
	ID   string         `json:"id,omitempty"`
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// IntentEvent is embedded by typed events whose handler must answer with an
// intent.Response.
type IntentEvent struct{}

func (IntentEvent) isIntent() {}

type intentMarker interface {
	isIntent()
}

// Identified is implemented by entities that can be matched by identifier
// instead of by identity.
type Identified interface {
	EntityID() int64
}

// TypeName returns the event type name for T.
func TypeName[T any]() string {
	return typeName(reflect.TypeFor[T]())
}

func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// Abstract converts a typed event into its abstract form. Events that are
// already abstract are returned unchanged.
func Abstract(evt any) (Event, error) {
	switch e := evt.(type) {
	case Event:
		return e, nil
	case *Event:
		return *e, nil
	case nil:
		return Event{}, fmt.Errorf("nil event")
	}

	name := typeName(reflect.TypeOf(evt))
	if name == "" {
		return Event{}, fmt.Errorf("event %T has no type name", evt)
	}

	raw, err := json.Marshal(evt)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode %s: %w", name, err)
	}
	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return Event{}, fmt.Errorf("failed to flatten %s: %w", name, err)
	}
	return Event{Type: name, Data: data}, nil
}

// Decode parses an abstract payload into the typed event T.
func Decode[T any](data map[string]any) (T, error) {
	var evt T
	raw, err := json.Marshal(data)
	if err != nil {
		return evt, fmt.Errorf("failed to encode payload: %w", err)
	}
	if err := json.Unmarshal(raw, &evt); err != nil {
		return evt, fmt.Errorf("failed to decode %s: %w", TypeName[T](), err)
	}
	return evt, nil
}

func isIntent[T any]() bool {
	var zero T
	_, ok := any(zero).(intentMarker)
	return ok
}
