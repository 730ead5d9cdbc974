package relay

import "encoding/json"

// EventKind discriminates event types. Applications define their own
// closed set of kinds; KindTerminate is the only kind the core reserves.
type EventKind string

// KindTerminate signals the dispatcher to drain remaining work and stop.
const KindTerminate EventKind = "terminate"

// Event is the unit of work flowing through the dispatcher. Events are
// immutable once dispatched; derived events carry the correlation id of
// the event they were produced from.
type Event struct {
	// Kind identifies the event type for routing.
	Kind EventKind `json:"kind"`
	// Source identifies the emitting component (informational).
	Source string `json:"source,omitempty"`
	// CorrelationID groups a causal chain of events. If empty at dispatch
	// time the dispatcher assigns a fresh one; once set it is preserved
	// verbatim through all derived events.
	CorrelationID string `json:"correlation_id,omitempty"`
	// Payload carries kind-specific fields as raw JSON.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent creates an event with the given kind and source, marshaling
// payload to JSON. A nil payload produces an event with no payload.
// Marshal failures surface as *ErrSerialization.
func NewEvent(kind EventKind, source string, payload any) (Event, error) {
	ev := Event{Kind: kind, Source: source}
	if payload == nil {
		return ev, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, &ErrSerialization{Message: "marshal event payload: " + err.Error()}
	}
	ev.Payload = data
	return ev, nil
}

// Terminate returns a Terminate event from the given source.
func Terminate(source string) Event {
	return Event{Kind: KindTerminate, Source: source}
}

// DecodePayload unmarshals the event payload into v.
func (e Event) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return &ErrSerialization{Message: "event has no payload"}
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return &ErrSerialization{Message: "unmarshal event payload: " + err.Error()}
	}
	return nil
}
