package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Reducer combines the accumulated events for one correlation id into
// output events once the aggregator's needed set is complete. It receives
// the events in arrival order and the aggregator's running state, and
// returns the output events and the new state. On error the state does
// not advance and no result is cached.
//
// A reducer fires at most once per correlation id: after a successful
// fire the result is cached and later events return it directly.
type Reducer func(events []Event, state any) ([]Event, any, error)

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithAggregatorState sets the initial reducer state (default nil).
func WithAggregatorState(state any) AggregatorOption {
	return func(a *Aggregator) { a.state = state }
}

// WithAggregatorLogger sets a structured logger. If not set, no output.
func WithAggregatorLogger(l *slog.Logger) AggregatorOption {
	return func(a *Aggregator) { a.logger = l }
}

// WithAggregatorTracer sets the tracer (default NopTracer).
func WithAggregatorTracer(t Tracer) AggregatorOption {
	return func(a *Aggregator) { a.tracer = t }
}

// Aggregator collects events keyed by correlation id until a required set
// of kinds has all been seen, then fires its reducer once, caches the
// output, and unblocks any waiters. It implements Subscriber so it can be
// registered in a Router directly.
//
// All state access is serialized under one mutex, so ReceiveEvent blocks
// only for its own state update plus the reducer invocation on the call
// that completes the set.
type Aggregator struct {
	needed map[EventKind]struct{}
	reduce Reducer
	logger *slog.Logger
	tracer Tracer

	mu      sync.Mutex
	state   any
	events  map[string][]Event          // per-correlation accumulation, arrival order
	results map[string][]Event          // cached reducer output after fire
	waiters map[string][]chan waitReply // blocked WaitForEvents callers
}

// waitReply is delivered to each waiter exactly once.
type waitReply struct {
	events []Event
	err    error
}

// NewAggregator creates an aggregator that fires reduce once events of
// all needed kinds have arrived for a correlation id.
func NewAggregator(needed []EventKind, reduce Reducer, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		needed:  make(map[EventKind]struct{}, len(needed)),
		reduce:  reduce,
		logger:  nopLogger,
		tracer:  NopTracer{},
		events:  make(map[string][]Event),
		results: make(map[string][]Event),
		waiters: make(map[string][]chan waitReply),
	}
	for _, k := range needed {
		a.needed[k] = struct{}{}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ReceiveEvent stores the event under its correlation id. The returned
// slice is empty while the needed set is incomplete, the reducer's output
// if this event completed the set, or the cached result if the reducer
// already fired for this correlation id.
//
// On reducer error, pending waiters for the correlation id are failed
// with the error and the accumulated events are kept, so a later event
// may complete the set again.
func (a *Aggregator) ReceiveEvent(ctx context.Context, ev Event) ([]Event, error) {
	_, span := a.tracer.Start(ctx, "aggregator.receive",
		StringAttr("kind", string(ev.Kind)),
		StringAttr("correlation_id", ev.CorrelationID))
	defer span.End()

	a.mu.Lock()
	defer a.mu.Unlock()

	c := ev.CorrelationID
	if cached, ok := a.results[c]; ok {
		return cached, nil
	}

	a.events[c] = append(a.events[c], ev)
	if !a.completeLocked(c) {
		return nil, nil
	}

	out, err := a.fireLocked(c)
	if err != nil {
		span.Error(err)
		return nil, err
	}
	return out, nil
}

// WaitForEvents blocks until the reducer has fired for the correlation id
// or the timeout elapses (ErrTimeout). If the result is already cached it
// returns immediately. Multiple waiters per correlation id are allowed;
// all are unblocked when the reducer fires.
func (a *Aggregator) WaitForEvents(ctx context.Context, correlationID string, timeout time.Duration) ([]Event, error) {
	a.mu.Lock()
	if cached, ok := a.results[correlationID]; ok {
		a.mu.Unlock()
		return cached, nil
	}
	// The set may already be complete if a prior fire attempt failed;
	// retry the reducer from here rather than blocking forever.
	if a.completeLocked(correlationID) {
		out, err := a.fireLocked(correlationID)
		a.mu.Unlock()
		return out, err
	}
	ch := make(chan waitReply, 1)
	a.waiters[correlationID] = append(a.waiters[correlationID], ch)
	a.mu.Unlock()

	select {
	case reply := <-ch:
		return reply.events, reply.err
	case <-ctx.Done():
		a.removeWaiter(correlationID, ch)
		return nil, ctx.Err()
	case <-time.After(timeout):
		a.removeWaiter(correlationID, ch)
		return nil, ErrTimeout
	}
}

// completeLocked reports whether the stored events for c cover the needed
// kind set.
func (a *Aggregator) completeLocked(c string) bool {
	seen := make(map[EventKind]struct{}, len(a.needed))
	for _, ev := range a.events[c] {
		seen[ev.Kind] = struct{}{}
	}
	for k := range a.needed {
		if _, ok := seen[k]; !ok {
			return false
		}
	}
	return true
}

// fireLocked invokes the reducer for c, caches the output, reaps the
// per-correlation state, and unblocks waiters. Caller holds a.mu.
func (a *Aggregator) fireLocked(c string) ([]Event, error) {
	out, newState, err := a.reduce(a.events[c], a.state)
	if err != nil {
		a.logger.Warn("relay: aggregator reducer failed",
			"correlation_id", c,
			"error", err)
		a.failWaitersLocked(c, err)
		return nil, err
	}

	// Stamp the correlation id on outputs that carry none so the causal
	// chain survives the fan-in.
	for i := range out {
		if out[i].CorrelationID == "" {
			out[i].CorrelationID = c
		}
	}

	a.state = newState
	a.results[c] = out
	delete(a.events, c)
	for _, ch := range a.waiters[c] {
		ch <- waitReply{events: out}
	}
	delete(a.waiters, c)
	return out, nil
}

// failWaitersLocked delivers a reducer error to all pending waiters.
// Accumulated events are kept so a later arrival can retry the fire.
func (a *Aggregator) failWaitersLocked(c string, err error) {
	for _, ch := range a.waiters[c] {
		ch <- waitReply{err: err}
	}
	delete(a.waiters, c)
}

// removeWaiter unregisters a waiter that gave up (timeout/cancellation).
// A result that fires after the caller timed out is still cached; it is
// just no longer delivered to this waiter.
func (a *Aggregator) removeWaiter(c string, ch chan waitReply) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ws := a.waiters[c]
	for i, w := range ws {
		if w == ch {
			a.waiters[c] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(a.waiters[c]) == 0 {
		delete(a.waiters, c)
	}
}

var _ Subscriber = (*Aggregator)(nil)
