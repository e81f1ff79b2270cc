// Package verify runs route guard scenarios against a browser.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codebingo/routecheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Scenario metrics.
var (
	scenarioCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "routecheck_scenario_count",
		Help: "Total number of verified scenarios by role & result",
	}, []string{"role", "result"})

	scenarioSeconds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "routecheck_scenario_seconds",
		Help: "Total time spent verifying scenarios by role, in seconds",
	}, []string{"role"})
)

// Runner executes an ordered list of scenarios in a single browser page.
//
// The session role is threaded through the run explicitly. Before the first
// scenario of each role the runner seeds client-side storage to move the
// session to that role. Roles only move up so scenarios must be ordered.
//
// Runs are fail-fast: the first failing step stops the run.
type Runner struct {
	// Browser used to open the page. The runner does not close the browser.
	Browser routecheck.Browser

	// Base URL of the application under test, without a trailing slash.
	BaseURL string

	// Time allowed for each scenario to settle on its expected URL.
	Timeout time.Duration

	// Records written to storage when logging in as a team.
	Identity routecheck.Identity

	// Receives progress events in order.
	Events routecheck.EventService

	Logger zerolog.Logger
}

// NewRunner returns a new instance of Runner with default settings.
func NewRunner(browser routecheck.Browser, baseURL string) *Runner {
	return &Runner{
		Browser:  browser,
		BaseURL:  baseURL,
		Timeout:  routecheck.DefaultTimeout,
		Identity: routecheck.DefaultIdentity(),
		Events:   routecheck.NopEventService(),
		Logger:   zerolog.Nop(),
	}
}

// Run verifies scenarios in order. Returns the first failure, wrapped with
// the name of the failing scenario. The page is always closed on return.
func (r *Runner) Run(ctx context.Context, scenarios []routecheck.Scenario) (err error) {
	if err := routecheck.ValidateScenarios(scenarios); err != nil {
		return err
	}

	base := strings.TrimSuffix(r.BaseURL, "/")
	if base == "" {
		return routecheck.Errorf(routecheck.EINVALID, "Base URL required.")
	}

	page, err := r.Browser.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("cannot open page: %w", err)
	}
	defer func() {
		if e := page.Close(); e != nil && err == nil {
			err = fmt.Errorf("cannot close page: %w", e)
		}
	}()

	role := routecheck.RoleUnauthenticated
	for i := range scenarios {
		s := &scenarios[i]
		ctx := routecheck.NewContextWithScenario(ctx, s)

		// Move the session to the scenario's role at the start of each phase.
		if i == 0 || s.Role != role {
			if err := r.transition(ctx, page, base, role, s.Role); err != nil {
				return r.fail(ctx, i, s, fmt.Errorf("transition to %s: %w", s.Role, err))
			}
			role = s.Role
		}

		t := time.Now()
		if err := r.verify(ctx, page, base, s); err != nil {
			return r.fail(ctx, i, s, err)
		}
		elapsed := time.Since(t)

		scenarioCount.WithLabelValues(s.Role.String(), "pass").Inc()
		scenarioSeconds.WithLabelValues(s.Role.String()).Add(elapsed.Seconds())

		r.publish(ctx, routecheck.Event{
			Type:    routecheck.EventTypeScenarioPassed,
			Payload: &routecheck.ScenarioPassedPayload{Index: i, Scenario: *s, Elapsed: elapsed},
		})
	}

	return nil
}

// transition seeds storage to move the session from one role to another and
// publishes a role change event. Storage is per-origin so the page is first
// moved onto the application's origin.
func (r *Runner) transition(ctx context.Context, page routecheck.Page, base string, from, to routecheck.Role) error {
	items, err := routecheck.Transition(from, to, r.Identity)
	if err != nil {
		return err
	}

	if len(items) > 0 {
		r.Logger.Debug().Stringer("from", from).Stringer("to", to).Int("items", len(items)).Msg("seeding storage")

		if err := r.navigate(ctx, page, base+"/"); err != nil {
			return err
		}

		scriptCtx, cancel := context.WithTimeout(ctx, r.timeout())
		defer cancel()
		if err := page.SetStorageItems(scriptCtx, items); err != nil {
			if timedOut(ctx, scriptCtx) {
				return routecheck.Errorf(routecheck.ETIMEOUT, "Timed out after %s seeding storage.", r.timeout())
			}
			return err
		}
	}

	r.publish(ctx, routecheck.Event{
		Type:    routecheck.EventTypeRoleChanged,
		Payload: &routecheck.RoleChangedPayload{From: from, To: to},
	})
	return nil
}

// verify navigates to the scenario's source path and waits for the page to
// settle on the expected destination.
func (r *Runner) verify(ctx context.Context, page routecheck.Page, base string, s *routecheck.Scenario) error {
	from, to := base+s.From, base+s.ExpectedTo
	r.Logger.Debug().Str("from", from).Str("to", to).Msg("navigating")

	if err := r.navigate(ctx, page, from); err != nil {
		return err
	}
	return page.WaitForURL(ctx, to, r.timeout())
}

// navigate loads u in page. A load that does not complete within the
// timeout fails with ETIMEOUT instead of blocking the run.
func (r *Runner) navigate(ctx context.Context, page routecheck.Page, u string) error {
	navCtx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	if err := page.Navigate(navCtx, u); err != nil {
		if timedOut(ctx, navCtx) {
			return routecheck.Errorf(routecheck.ETIMEOUT, "Timed out after %s navigating to %s.", r.timeout(), u)
		}
		return err
	}
	return nil
}

// timedOut returns true if stepCtx hit its own deadline while ctx is still live.
func timedOut(ctx, stepCtx context.Context) bool {
	return ctx.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded)
}

// fail records a failed scenario and returns err annotated with its name.
func (r *Runner) fail(ctx context.Context, i int, s *routecheck.Scenario, err error) error {
	scenarioCount.WithLabelValues(s.Role.String(), "fail").Inc()

	r.publish(ctx, routecheck.Event{
		Type:    routecheck.EventTypeScenarioFailed,
		Payload: &routecheck.ScenarioFailedPayload{Index: i, Scenario: *s, Err: err},
	})
	routecheck.ReportError(ctx, err)

	return fmt.Errorf("%s: %w", s.Name(), err)
}

// publish sends event to the runner's event service, if set.
func (r *Runner) publish(ctx context.Context, event routecheck.Event) {
	if r.Events != nil {
		r.Events.PublishEvent(ctx, event)
	}
}

func (r *Runner) timeout() time.Duration {
	if r.Timeout <= 0 {
		return routecheck.DefaultTimeout
	}
	return r.Timeout
}
