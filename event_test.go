package relay

import (
	"errors"
	"testing"
	"time"
)

func TestNewEventPayloadRoundTrip(t *testing.T) {
	type payload struct {
		N int    `json:"n"`
		S string `json:"s"`
	}
	ev, err := NewEvent("task", "test", payload{N: 7, S: "x"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}

	var got payload
	if err := ev.DecodePayload(&got); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if got.N != 7 || got.S != "x" {
		t.Fatalf("payload mismatch: %+v", got)
	}
}

func TestNewEventNilPayload(t *testing.T) {
	ev, err := NewEvent("task", "test", nil)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if len(ev.Payload) != 0 {
		t.Fatalf("expected empty payload, got %q", ev.Payload)
	}

	var v struct{}
	var serr *ErrSerialization
	if err := ev.DecodePayload(&v); !errors.As(err, &serr) {
		t.Fatalf("expected ErrSerialization decoding empty payload, got %v", err)
	}
}

func TestNewEventUnmarshalablePayload(t *testing.T) {
	_, err := NewEvent("task", "test", make(chan int))
	var serr *ErrSerialization
	if !errors.As(err, &serr) {
		t.Fatalf("expected ErrSerialization, got %v", err)
	}
}

func TestTerminateEvent(t *testing.T) {
	ev := Terminate("test")
	if ev.Kind != KindTerminate {
		t.Fatalf("kind = %q", ev.Kind)
	}
	if ev.Source != "test" {
		t.Fatalf("source = %q", ev.Source)
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if id == "" {
			t.Fatal("empty id")
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d := ParseRetryAfter(""); d != 0 {
		t.Fatalf("empty: %v", d)
	}
	if d := ParseRetryAfter("120"); d != 120*time.Second {
		t.Fatalf("seconds: %v", d)
	}
	if d := ParseRetryAfter("-5"); d != 0 {
		t.Fatalf("negative: %v", d)
	}
	if d := ParseRetryAfter("garbage"); d != 0 {
		t.Fatalf("garbage: %v", d)
	}
	future := time.Now().Add(30 * time.Second).UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")
	if d := ParseRetryAfter(future); d <= 0 || d > 31*time.Second {
		t.Fatalf("http date: %v", d)
	}
}
