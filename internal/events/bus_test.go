package events

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus()

	got := make(chan Event, 2)
	bus.Subscribe(func(e Event) { got <- e })
	bus.Subscribe(func(e Event) { got <- e })

	bus.Publish(PostGenerated, map[string]any{"postId": "p1"})

	for i := 0; i < 2; i++ {
		select {
		case e := <-got:
			if e.Name != PostGenerated {
				t.Fatalf("unexpected event name %q", e.Name)
			}
			if e.Data["postId"] != "p1" {
				t.Fatalf("unexpected event data %v", e.Data)
			}
			if e.Timestamp.IsZero() {
				t.Fatalf("event not timestamped")
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive event", i)
		}
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()

	var count int32
	unsubscribe := bus.Subscribe(func(Event) { atomic.AddInt32(&count, 1) })

	bus.Publish(ReminderFired, nil)
	waitFor(t, func() bool { return atomic.LoadInt32(&count) == 1 })

	unsubscribe()
	unsubscribe() // second call is a no-op

	bus.Publish(ReminderFired, nil)
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&count); got != 1 {
		t.Fatalf("unsubscribed handler still invoked, count=%d", got)
	}
}

func TestBusPublishWithNoSubscribers(t *testing.T) {
	bus := NewBus()
	// Must not panic or block.
	bus.Publish(PostFailed, map[string]any{"postId": "p1"})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}
