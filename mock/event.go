package mock

import (
	"context"

	"github.com/codebingo/routecheck"
)

var _ routecheck.EventService = (*EventService)(nil)

type EventService struct {
	PublishEventFn func(ctx context.Context, event routecheck.Event)
}

func (s *EventService) PublishEvent(ctx context.Context, event routecheck.Event) {
	s.PublishEventFn(ctx, event)
}
