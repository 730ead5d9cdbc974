package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultBatchSize    = 5
	defaultTickInterval = 100 * time.Millisecond
	// waitPollInterval is the polling granularity of WaitForEmpty.
	waitPollInterval = 20 * time.Millisecond
)

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithBatchSize sets the maximum number of events drained per pass (default 5).
func WithBatchSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// WithTickInterval sets the drain tick interval (default 100ms).
func WithTickInterval(interval time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.tick = interval
		}
	}
}

// WithDispatcherLogger sets a structured logger. If not set, no output.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// WithDispatcherTracer sets the tracer (default NopTracer).
func WithDispatcherTracer(t Tracer) DispatcherOption {
	return func(d *Dispatcher) { d.tracer = t }
}

// Dispatcher owns a FIFO event queue. It repeatedly drains up to batchSize
// events, routes each through its Router, invokes every subscriber on its
// own goroutine, waits for the batch to finish, and merges the events the
// subscribers return back into the queue. Batches are sequential, so with
// batch size 1 a single subscriber sees events in enqueue order; within a
// batch, result order across subscribers is unspecified. A Terminate
// event (or Stop) drains in-flight work and shuts the dispatcher down.
//
// All queue and counter mutations happen inside the dispatcher's run
// goroutine or under its mutex; external callers interact only through
// Dispatch, QueueSize, WaitForEmpty, and Stop.
type Dispatcher struct {
	router    *Router
	batchSize int
	tick      time.Duration
	logger    *slog.Logger
	tracer    Tracer

	mu       sync.Mutex
	queue    []Event
	pending  int  // in-flight subscriber invocations
	stopping bool // Terminate observed or Stop requested
	stopped  bool // run loop exited

	notify   chan struct{}
	results  chan taskResult
	stopReq  chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// taskResult is what a subscriber invocation posts back to the run loop.
type taskResult struct {
	parent Event
	events []Event
	err    error
}

// NewDispatcher creates a dispatcher over the given router and starts its
// run loop. The router should be fully configured before events flow;
// see Router for the concurrency contract.
func NewDispatcher(router *Router, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		router:    router,
		batchSize: defaultBatchSize,
		tick:      defaultTickInterval,
		logger:    nopLogger,
		tracer:    NopTracer{},
		notify:    make(chan struct{}, 1),
		results:   make(chan taskResult),
		stopReq:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.run()
	return d
}

// Dispatch enqueues an event without blocking. If the event has no
// correlation id, a fresh one is assigned before enqueueing. FIFO order
// is preserved. Returns ErrStopped if the dispatcher has shut down.
func (d *Dispatcher) Dispatch(ev Event) error {
	if ev.CorrelationID == "" {
		ev.CorrelationID = NewID()
	}
	d.mu.Lock()
	if d.stopped || d.stopping {
		d.mu.Unlock()
		return ErrStopped
	}
	d.queue = append(d.queue, ev)
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
	return nil
}

// QueueSize returns the number of queued events plus in-flight subscriber
// invocations. The dispatcher is quiet when this reaches zero.
func (d *Dispatcher) QueueSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue) + d.pending
}

// WaitForEmpty polls until the dispatcher is quiet (queue empty and no
// in-flight work) or the timeout expires, in which case it returns
// ErrTimeout. The poll interval is well under the 100ms contract.
func (d *Dispatcher) WaitForEmpty(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if d.QueueSize() == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitPollInterval):
		}
	}
}

// Stop requests a graceful shutdown and waits up to timeout for in-flight
// subscriber invocations to complete. Queued events that have not been
// dequeued are dropped. Returns ErrTimeout if shutdown does not complete
// in time; the run loop still exits once the last task replies.
func (d *Dispatcher) Stop(timeout time.Duration) error {
	d.stopOnce.Do(func() { d.stopReq <- struct{}{} })
	select {
	case <-d.done:
		return nil
	case <-time.After(timeout):
		return ErrTimeout
	}
}

// Done returns a channel closed when the dispatcher has fully stopped.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// run is the dispatcher's actor loop. All scheduling decisions happen here.
func (d *Dispatcher) run() {
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	for {
		select {
		case <-d.notify:
			d.processBatch()
		case <-ticker.C:
			d.processBatch()
		case <-d.stopReq:
			d.beginShutdown("stop requested")
		}

		d.mu.Lock()
		quiet := d.stopping && d.pending == 0 && len(d.queue) == 0
		if quiet {
			d.stopped = true
		}
		d.mu.Unlock()
		if quiet {
			close(d.done)
			return
		}
	}
}

// fanoutTask pairs one dequeued event with one of its subscribers.
type fanoutTask struct {
	ev  Event
	sub Subscriber
}

// processBatch pops up to batchSize events, fans each out to its
// subscribers on one goroutine per (event, subscriber) pair, and blocks
// until every invocation of this batch has reported back. Observing a
// Terminate stops the pass; events behind it are never dispatched.
func (d *Dispatcher) processBatch() {
	d.mu.Lock()
	if d.stopping || len(d.queue) == 0 {
		d.mu.Unlock()
		return
	}
	n := min(d.batchSize, len(d.queue))
	batch := make([]Event, n)
	copy(batch, d.queue[:n])
	d.queue = d.queue[n:]

	var tasks []fanoutTask
	terminated := false
	for _, ev := range batch {
		if ev.Kind == KindTerminate {
			terminated = true
			break
		}
		subs := d.router.Subscribers(ev)
		if len(subs) == 0 {
			continue
		}
		d.pending += len(subs)
		for _, sub := range subs {
			tasks = append(tasks, fanoutTask{ev: ev, sub: sub})
		}
	}
	if terminated {
		d.beginShutdownLocked(fmt.Sprintf("terminate event observed, dropping %d queued events", len(d.queue)))
	}
	d.mu.Unlock()

	_, span := d.tracer.Start(context.Background(), "dispatcher.batch",
		IntAttr("events", n),
		IntAttr("tasks", len(tasks)))
	defer span.End()

	for _, t := range tasks {
		go d.invoke(t.ev, t.sub)
	}
	for remaining := len(tasks); remaining > 0; remaining-- {
		d.handleResult(<-d.results)
	}

	// More work may already be queued (leftover beyond batchSize, or
	// events merged from this batch's results).
	d.mu.Lock()
	more := !d.stopping && len(d.queue) > 0
	d.mu.Unlock()
	if more {
		select {
		case d.notify <- struct{}{}:
		default:
		}
	}
}

// invoke runs one subscriber against one event and posts the result back
// to the run loop. Panics are converted to error results so a misbehaving
// subscriber cannot take the dispatcher down.
func (d *Dispatcher) invoke(ev Event, sub Subscriber) {
	var res taskResult
	res.parent = ev
	func() {
		defer func() {
			if p := recover(); p != nil {
				res.err = fmt.Errorf("subscriber panic: %v", p)
			}
		}()
		res.events, res.err = sub.ReceiveEvent(context.Background(), ev)
	}()
	d.results <- res
}

// handleResult merges a subscriber result back into the queue. Derived
// events inherit the parent's correlation id when they carry none.
// Failures are logged and the result dropped; after shutdown has begun,
// derived events are dropped as well.
func (d *Dispatcher) handleResult(res taskResult) {
	d.mu.Lock()
	d.pending--
	stopping := d.stopping
	if res.err == nil && !stopping {
		for _, ev := range res.events {
			if ev.CorrelationID == "" {
				ev.CorrelationID = res.parent.CorrelationID
			}
			d.queue = append(d.queue, ev)
		}
	}
	d.mu.Unlock()

	switch {
	case res.err != nil:
		d.logger.Warn("relay: subscriber failed, event dropped",
			"kind", res.parent.Kind,
			"correlation_id", res.parent.CorrelationID,
			"error", res.err)
	case stopping && len(res.events) > 0:
		d.logger.Debug("relay: dropping derived events after shutdown",
			"count", len(res.events),
			"correlation_id", res.parent.CorrelationID)
	}
}

// beginShutdown marks the dispatcher as stopping and clears the queue.
func (d *Dispatcher) beginShutdown(reason string) {
	d.mu.Lock()
	d.beginShutdownLocked(reason)
	d.mu.Unlock()
}

func (d *Dispatcher) beginShutdownLocked(reason string) {
	if d.stopping {
		return
	}
	d.stopping = true
	d.queue = nil
	d.logger.Info("relay: dispatcher shutting down", "reason", reason)
}
