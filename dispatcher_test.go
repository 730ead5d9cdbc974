package relay

import (
	"context"
	"errors"
	"testing"
	"time"
)

func waitQuiet(t *testing.T, d *Dispatcher) {
	t.Helper()
	if err := d.WaitForEmpty(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("dispatcher never went quiet: %v", err)
	}
}

func TestDispatcherFanOut(t *testing.T) {
	a := &recordSubscriber{}
	b := &recordSubscriber{}
	router := NewRouter()
	router.AddRoute("task", a)
	router.AddRoute("task", b)

	d := NewDispatcher(router)
	defer d.Stop(time.Second)

	if err := d.Dispatch(Event{Kind: "task", CorrelationID: "c1"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	waitQuiet(t, d)

	if len(a.received()) != 1 || len(b.received()) != 1 {
		t.Fatalf("fan-out miss: a=%d b=%d", len(a.received()), len(b.received()))
	}
}

func TestDispatchAssignsFreshCorrelationID(t *testing.T) {
	a := &recordSubscriber{}
	router := NewRouter()
	router.AddRoute("task", a)

	d := NewDispatcher(router)
	defer d.Stop(time.Second)

	if err := d.Dispatch(Event{Kind: "task"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	waitQuiet(t, d)

	got := a.received()
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].CorrelationID == "" {
		t.Fatal("correlation id not assigned")
	}
}

func TestDerivedEventsInheritCorrelationID(t *testing.T) {
	sink := &recordSubscriber{}
	producer := &recordSubscriber{derived: []Event{{Kind: "derived"}}}
	router := NewRouter()
	router.AddRoute("task", producer)
	router.AddRoute("derived", sink)

	d := NewDispatcher(router)
	defer d.Stop(time.Second)

	if err := d.Dispatch(Event{Kind: "task", CorrelationID: "c42"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	waitQuiet(t, d)

	got := sink.received()
	if len(got) != 1 {
		t.Fatalf("derived event not delivered: %d", len(got))
	}
	if got[0].CorrelationID != "c42" {
		t.Fatalf("correlation id not inherited: %q", got[0].CorrelationID)
	}
}

func TestDispatcherFIFOWithBatchSizeOne(t *testing.T) {
	a := &recordSubscriber{}
	router := NewRouter()
	router.AddRoute("task", a)

	d := NewDispatcher(router, WithBatchSize(1), WithTickInterval(5*time.Millisecond))
	defer d.Stop(time.Second)

	for _, c := range []string{"c1", "c2", "c3"} {
		if err := d.Dispatch(Event{Kind: "task", CorrelationID: c}); err != nil {
			t.Fatalf("Dispatch %s: %v", c, err)
		}
	}
	waitQuiet(t, d)

	got := a.received()
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	for i, want := range []string{"c1", "c2", "c3"} {
		if got[i].CorrelationID != want {
			t.Fatalf("order violated at %d: got %q want %q", i, got[i].CorrelationID, want)
		}
	}
}

func TestWaitForEmptyTimeout(t *testing.T) {
	release := make(chan struct{})
	router := NewRouter()
	router.AddRoute("task", &blockSubscriber{release: release})

	d := NewDispatcher(router)
	defer func() {
		close(release)
		d.Stop(time.Second)
	}()

	if err := d.Dispatch(Event{Kind: "task"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if err := d.WaitForEmpty(context.Background(), 150*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if d.QueueSize() == 0 {
		t.Fatal("queue_size should count the in-flight task")
	}
}

func TestTerminateStopsAndDropsLaterEvents(t *testing.T) {
	a := &recordSubscriber{}
	router := NewRouter()
	router.AddRoute("task", a)

	// Batch size 1 so the terminate is observed strictly after c1 and
	// strictly before c2.
	d := NewDispatcher(router, WithBatchSize(1), WithTickInterval(5*time.Millisecond))

	if err := d.Dispatch(Event{Kind: "task", CorrelationID: "c1"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if err := d.Dispatch(Terminate("test")); err != nil {
		t.Fatalf("Dispatch terminate: %v", err)
	}
	// Enqueued behind the terminate; must never be processed. The
	// dispatcher may already be stopping, in which case Dispatch refuses.
	_ = d.Dispatch(Event{Kind: "task", CorrelationID: "c2"})

	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop within bounded time after terminate")
	}

	for _, ev := range a.received() {
		if ev.CorrelationID == "c2" {
			t.Fatal("event enqueued after terminate was processed")
		}
	}
	if err := d.Dispatch(Event{Kind: "task"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped after terminate, got %v", err)
	}
}

func TestStopDrainsInFlightWork(t *testing.T) {
	release := make(chan struct{})
	router := NewRouter()
	router.AddRoute("task", &blockSubscriber{release: release})

	d := NewDispatcher(router)
	if err := d.Dispatch(Event{Kind: "task"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	// Give the batch a moment to start.
	time.Sleep(50 * time.Millisecond)

	if err := d.Stop(100 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout while task is blocked, got %v", err)
	}

	close(release)
	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not finish after task completed")
	}
}

func TestSubscriberPanicIsContained(t *testing.T) {
	a := &recordSubscriber{}
	router := NewRouter()
	router.AddRoute("boom", panicSubscriber{})
	router.AddRoute("task", a)

	d := NewDispatcher(router)
	defer d.Stop(time.Second)

	if err := d.Dispatch(Event{Kind: "boom"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if err := d.Dispatch(Event{Kind: "task"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	waitQuiet(t, d)

	if len(a.received()) != 1 {
		t.Fatal("dispatcher died after a subscriber panic")
	}
}

func TestSubscriberErrorDropsResult(t *testing.T) {
	failing := &recordSubscriber{
		derived: []Event{{Kind: "derived"}},
		err:     errors.New("boom"),
	}
	sink := &recordSubscriber{}
	router := NewRouter()
	router.AddRoute("task", failing)
	router.AddRoute("derived", sink)

	d := NewDispatcher(router)
	defer d.Stop(time.Second)

	if err := d.Dispatch(Event{Kind: "task"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	waitQuiet(t, d)

	if len(sink.received()) != 0 {
		t.Fatal("derived events from a failed subscriber were enqueued")
	}
}

func TestQueueSizeQuietIsZero(t *testing.T) {
	router := NewRouter()
	router.AddRoute("task", &recordSubscriber{})

	d := NewDispatcher(router)
	defer d.Stop(time.Second)

	if err := d.Dispatch(Event{Kind: "task"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	waitQuiet(t, d)

	if got := d.QueueSize(); got != 0 {
		t.Fatalf("queue size after quiet = %d", got)
	}
}
