package routecheck

import (
	"fmt"
	"strings"
)

// Scenario represents a single navigation assertion. The verifier navigates
// to From while presenting Role and expects the application to end up at
// ExpectedTo. When From equals ExpectedTo the scenario asserts that the path
// is reachable without a redirect.
type Scenario struct {
	// Identity the session must present before navigating.
	Role Role `json:"role"`

	// Path (with optional query string) to navigate to & the path the
	// browser is expected to settle on. Both are relative to the base URL.
	From       string `json:"from"`
	ExpectedTo string `json:"expectedTo"`

	// Human-readable label printed when the scenario passes or fails.
	Description string `json:"description"`
}

// Redirects returns true if the scenario expects a redirect.
func (s *Scenario) Redirects() bool {
	return s.From != s.ExpectedTo
}

// Name returns the description, falling back to a generated one.
func (s *Scenario) Name() string {
	if s.Description != "" {
		return s.Description
	}
	return s.DefaultDescription()
}

// DefaultDescription returns a description generated from the paths.
func (s *Scenario) DefaultDescription() string {
	if s.Redirects() {
		return fmt.Sprintf("%s redirects to %s", s.From, s.ExpectedTo)
	}
	path := s.From
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return fmt.Sprintf("%s is accessible", path)
}

// Validate returns an error if the scenario has invalid fields.
func (s *Scenario) Validate() error {
	if !s.Role.Valid() {
		return Errorf(EINVALID, "Scenario role invalid.")
	} else if !strings.HasPrefix(s.From, "/") {
		return Errorf(EINVALID, "Scenario source path must begin with a slash: %q", s.From)
	} else if !strings.HasPrefix(s.ExpectedTo, "/") {
		return Errorf(EINVALID, "Scenario destination path must begin with a slash: %q", s.ExpectedTo)
	}
	return nil
}

// DefaultScenarios returns the standard route guard suite for the bingo
// application. Scenarios are grouped by role in transition order.
func DefaultScenarios() []Scenario {
	return []Scenario{
		// Guarded routes send anonymous visitors home.
		{Role: RoleUnauthenticated, From: "/admin", ExpectedTo: "/"},
		{Role: RoleUnauthenticated, From: "/game", ExpectedTo: "/"},
		{Role: RoleUnauthenticated, From: "/congratulations", ExpectedTo: "/"},
		{Role: RoleUnauthenticated, From: "/leaderboard?room=TEST", ExpectedTo: "/leaderboard?room=TEST", Description: "/leaderboard is accessible"},

		// Logged in teams are sent to the game.
		{Role: RoleTeam, From: "/", ExpectedTo: "/game"},
		{Role: RoleTeam, From: "/admin", ExpectedTo: "/game"},
		{Role: RoleTeam, From: "/leaderboard", ExpectedTo: "/leaderboard"},

		// Admins are sent to the admin console.
		{Role: RoleAdmin, From: "/", ExpectedTo: "/admin"},
		{Role: RoleAdmin, From: "/game", ExpectedTo: "/admin"},
		{Role: RoleAdmin, From: "/leaderboard", ExpectedTo: "/leaderboard"},
	}
}

// ValidateScenarios returns an error if any scenario is invalid or if the
// scenarios are not ordered by role. Ordering matters because role state is
// cumulative within a browser session.
func ValidateScenarios(a []Scenario) error {
	if len(a) == 0 {
		return Errorf(EINVALID, "At least one scenario required.")
	}
	for i := range a {
		if err := a[i].Validate(); err != nil {
			return err
		} else if i > 0 && a[i].Role < a[i-1].Role {
			return Errorf(EINVALID, "Scenario %q (%s) cannot follow a %s scenario.", a[i].Name(), a[i].Role, a[i-1].Role)
		}
	}
	return nil
}

// ScenarioFilter represents a filter passed to FilterScenarios().
type ScenarioFilter struct {
	// Only include scenarios for this role.
	Role *Role

	// Only include scenarios whose name contains this substring.
	Description string
}

// FilterScenarios returns the scenarios matching filter in their original order.
func FilterScenarios(a []Scenario, filter ScenarioFilter) []Scenario {
	other := make([]Scenario, 0, len(a))
	for _, s := range a {
		if filter.Role != nil && s.Role != *filter.Role {
			continue
		} else if filter.Description != "" && !strings.Contains(s.Name(), filter.Description) {
			continue
		}
		other = append(other, s)
	}
	return other
}
