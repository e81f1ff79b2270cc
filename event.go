package routecheck

import (
	"context"
	"time"
)

// Event type constants.
const (
	EventTypeRoleChanged    = "role:changed"
	EventTypeScenarioPassed = "scenario:passed"
	EventTypeScenarioFailed = "scenario:failed"
)

// Event represents progress during a verification run. Events are published
// in order by the runner and consumed by reporters such as the console
// transcript.
type Event struct {
	// Specifies the type of event that is occurring.
	Type string `json:"type"`

	// The actual data from the event. See related payload types below.
	Payload interface{} `json:"payload"`
}

// RoleChangedPayload represents the payload for an Event object with a type
// of EventTypeRoleChanged. It is published after storage has been seeded.
type RoleChangedPayload struct {
	From Role `json:"from"`
	To   Role `json:"to"`
}

// ScenarioPassedPayload represents the payload for an Event object with a
// type of EventTypeScenarioPassed.
type ScenarioPassedPayload struct {
	Index    int           `json:"index"`
	Scenario Scenario      `json:"scenario"`
	Elapsed  time.Duration `json:"elapsed"`
}

// ScenarioFailedPayload represents the payload for an Event object with a
// type of EventTypeScenarioFailed.
type ScenarioFailedPayload struct {
	Index    int      `json:"index"`
	Scenario Scenario `json:"scenario"`
	Err      error    `json:"-"`
}

// EventService represents a sink for run events. Events are published
// synchronously so the transcript stays in step with the run.
type EventService interface {
	PublishEvent(ctx context.Context, event Event)
}

// NopEventService returns an event service that does nothing.
func NopEventService() EventService { return &nopEventService{} }

type nopEventService struct{}

func (*nopEventService) PublishEvent(ctx context.Context, event Event) {}

// MultiEventService returns an event service that publishes to each of a in order.
func MultiEventService(a ...EventService) EventService {
	return multiEventService(a)
}

type multiEventService []EventService

func (a multiEventService) PublishEvent(ctx context.Context, event Event) {
	for _, s := range a {
		s.PublishEvent(ctx, event)
	}
}
