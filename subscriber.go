package relay

import "context"

// Subscriber receives an event and returns zero or more follow-up events.
// Long-lived stateful components (aggregators, solver wrappers) implement
// the interface directly; stateless handlers use SubscriberFunc.
//
// ReceiveEvent blocks for the duration of the subscriber's own work; the
// dispatcher invokes each subscriber on its own goroutine so a slow
// subscriber cannot head-of-line-block a batch.
type Subscriber interface {
	ReceiveEvent(ctx context.Context, ev Event) ([]Event, error)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, ev Event) ([]Event, error)

func (f SubscriberFunc) ReceiveEvent(ctx context.Context, ev Event) ([]Event, error) {
	return f(ctx, ev)
}
