package events

import (
	"sync"
	"time"
)

// Event names emitted by the scheduler, generator, and publish coordinator.
const (
	AutoGenStarted  = "autogen.started"
	AutoGenFinished = "autogen.finished"
	PostGenerated   = "post.generated"
	PostPublished   = "post.published"
	PostFailed      = "post.failed"
	ReminderFired   = "reminder.fired"
)

// Event is a single notification fanned out to subscribers.
type Event struct {
	Name      string         `json:"name"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Bus is an in-process publish/subscribe fan-out. Publish never blocks on a
// subscriber; each handler runs on its own goroutine.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers a handler and returns its unsubscribe func.
// Unsubscribing twice is harmless.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish stamps the event and delivers it to every current subscriber.
func (b *Bus) Publish(name string, data map[string]any) {
	event := Event{
		Name:      name,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		go fn(event)
	}
}
