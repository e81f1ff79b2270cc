package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/codebingo/routecheck"
	"github.com/rs/zerolog"
)

// Ensure type implements interface.
var _ routecheck.EventService = (*EventLogger)(nil)

// NewLogger returns a logger writing to w at the given level. Format is
// either "console" for human-readable output or "json".
func NewLogger(level, format string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}

	switch strings.ToLower(format) {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", format)
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// EventLogger writes run progress events to a diagnostic logger.
type EventLogger struct {
	Logger zerolog.Logger
}

// NewEventLogger returns a new instance of EventLogger.
func NewEventLogger(logger zerolog.Logger) *EventLogger {
	return &EventLogger{Logger: logger}
}

// PublishEvent logs event. Failures are logged at error level, progress at debug.
func (l *EventLogger) PublishEvent(ctx context.Context, event routecheck.Event) {
	switch payload := event.Payload.(type) {
	case *routecheck.RoleChangedPayload:
		l.Logger.Debug().Stringer("from", payload.From).Stringer("to", payload.To).Msg("role changed")
	case *routecheck.ScenarioPassedPayload:
		l.Logger.Debug().Int("index", payload.Index).Str("scenario", payload.Scenario.Name()).Dur("elapsed", payload.Elapsed).Msg("scenario passed")
	case *routecheck.ScenarioFailedPayload:
		l.Logger.Error().Int("index", payload.Index).Str("scenario", payload.Scenario.Name()).Err(payload.Err).Msg("scenario failed")
	}
}
