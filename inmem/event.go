package inmem

import (
	"context"
	"sync"

	"github.com/codebingo/routecheck"
)

// Ensure type implements interface.
var _ routecheck.EventService = (*EventRecorder)(nil)

// EventRecorder represents an event service that keeps every published
// event in memory. It is safe for concurrent use.
type EventRecorder struct {
	mu     sync.Mutex
	events []routecheck.Event
}

// NewEventRecorder returns a new instance of EventRecorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

// PublishEvent appends event to the recorded list.
func (r *EventRecorder) PublishEvent(ctx context.Context, event routecheck.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *EventRecorder) Events() []routecheck.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]routecheck.Event(nil), r.events...)
}

// EventsByType returns recorded events of the given type, in order.
func (r *EventRecorder) EventsByType(typ string) []routecheck.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var a []routecheck.Event
	for _, e := range r.events {
		if e.Type == typ {
			a = append(a, e)
		}
	}
	return a
}

// Reset clears all recorded events.
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
