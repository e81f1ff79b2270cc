package routecheck

import "context"

// contextKey represents an internal key for adding context fields.
// This is considered best practice as it prevents other packages from
// interfering with our context keys.
type contextKey int

// List of context keys.
const (
	// Stores the scenario currently being verified.
	scenarioContextKey = contextKey(iota + 1)
)

// NewContextWithScenario returns a new context with the given scenario.
func NewContextWithScenario(ctx context.Context, s *Scenario) context.Context {
	return context.WithValue(ctx, scenarioContextKey, s)
}

// ScenarioFromContext returns the scenario being verified, if any.
func ScenarioFromContext(ctx context.Context) *Scenario {
	s, _ := ctx.Value(scenarioContextKey).(*Scenario)
	return s
}
