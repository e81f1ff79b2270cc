package verify_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/codebingo/routecheck"
	"github.com/codebingo/routecheck/inmem"
	"github.com/codebingo/routecheck/mock"
	"github.com/codebingo/routecheck/verify"
	"github.com/google/go-cmp/cmp"
)

const testBaseURL = "http://localhost:8080"

// NewInmemRunner returns a runner backed by the in-memory browser.
func NewInmemRunner(tb testing.TB) (*verify.Runner, *inmem.Browser, *inmem.EventRecorder) {
	tb.Helper()
	b := inmem.NewBrowser(inmem.NewRouter())
	events := inmem.NewEventRecorder()

	r := verify.NewRunner(b, testBaseURL)
	r.Timeout = 10 * time.Millisecond
	r.Events = events
	return r, b, events
}

func TestRunner_Run(t *testing.T) {
	t.Run("DefaultScenarios", func(t *testing.T) {
		r, b, events := NewInmemRunner(t)
		if err := r.Run(context.Background(), routecheck.DefaultScenarios()); err != nil {
			t.Fatal(err)
		}

		if got, want := len(events.EventsByType(routecheck.EventTypeScenarioPassed)), 10; got != want {
			t.Fatalf("passed=%d, want %d", got, want)
		} else if got := len(events.EventsByType(routecheck.EventTypeScenarioFailed)); got != 0 {
			t.Fatalf("failed=%d, want 0", got)
		}

		// One role change is published per phase, in order.
		var roles []routecheck.RoleChangedPayload
		for _, e := range events.EventsByType(routecheck.EventTypeRoleChanged) {
			roles = append(roles, *e.Payload.(*routecheck.RoleChangedPayload))
		}
		if diff := cmp.Diff([]routecheck.RoleChangedPayload{
			{From: routecheck.RoleUnauthenticated, To: routecheck.RoleUnauthenticated},
			{From: routecheck.RoleUnauthenticated, To: routecheck.RoleTeam},
			{From: routecheck.RoleTeam, To: routecheck.RoleAdmin},
		}, roles); diff != "" {
			t.Fatal(diff)
		}

		// Admin state is additive over team state.
		if _, ok := b.StorageItem(testBaseURL, routecheck.TeamStorageKey); !ok {
			t.Fatal("expected team record")
		} else if v, _ := b.StorageItem(testBaseURL, routecheck.AdminStorageKey); v != "true" {
			t.Fatalf("admin=%q", v)
		}

		if pages := b.Pages(); len(pages) != 1 {
			t.Fatalf("pages=%d, want 1", len(pages))
		} else if !pages[0].Closed() {
			t.Fatal("expected page closed")
		}
	})

	t.Run("EndToEnd", func(t *testing.T) {
		r, b, _ := NewInmemRunner(t)
		if err := r.Run(context.Background(), []routecheck.Scenario{
			{Role: routecheck.RoleUnauthenticated, From: "/game", ExpectedTo: "/"},
			{Role: routecheck.RoleTeam, From: "/", ExpectedTo: "/game"},
			{Role: routecheck.RoleAdmin, From: "/game", ExpectedTo: "/admin"},
		}); err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff([]string{
			testBaseURL + "/",      // /game as anonymous
			testBaseURL + "/",      // origin visit before seeding team
			testBaseURL + "/game",  // / as team
			testBaseURL + "/game",  // origin visit before seeding admin
			testBaseURL + "/admin", // /game as admin
		}, b.Pages()[0].History()); diff != "" {
			t.Fatal(diff)
		}
	})

	// Filtering down to admin scenarios seeds team & admin in one step.
	t.Run("AdminOnly", func(t *testing.T) {
		r, _, events := NewInmemRunner(t)
		role := routecheck.RoleAdmin
		if err := r.Run(context.Background(), routecheck.FilterScenarios(routecheck.DefaultScenarios(), routecheck.ScenarioFilter{Role: &role})); err != nil {
			t.Fatal(err)
		} else if got, want := len(events.EventsByType(routecheck.EventTypeScenarioPassed)), 3; got != want {
			t.Fatalf("passed=%d, want %d", got, want)
		}
	})

	t.Run("ErrTimeout", func(t *testing.T) {
		r, b, events := NewInmemRunner(t)
		err := r.Run(context.Background(), []routecheck.Scenario{
			{Role: routecheck.RoleUnauthenticated, From: "/game", ExpectedTo: "/"},
			{Role: routecheck.RoleUnauthenticated, From: "/admin", ExpectedTo: "/admin", Description: "admin console is public"},
			{Role: routecheck.RoleUnauthenticated, From: "/leaderboard", ExpectedTo: "/leaderboard"},
		})
		if routecheck.ErrorCode(err) != routecheck.ETIMEOUT {
			t.Fatalf("unexpected error: %#v", err)
		} else if !strings.HasPrefix(err.Error(), "admin console is public: ") {
			t.Fatalf("unexpected error message: %s", err)
		}

		// Run stops at the failing scenario.
		if got, want := len(b.Pages()[0].History()), 2; got != want {
			t.Fatalf("history=%d, want %d", got, want)
		} else if !b.Pages()[0].Closed() {
			t.Fatal("expected page closed")
		}

		failed := events.EventsByType(routecheck.EventTypeScenarioFailed)
		if len(failed) != 1 {
			t.Fatalf("failed=%d, want 1", len(failed))
		} else if got, want := failed[0].Payload.(*routecheck.ScenarioFailedPayload).Index, 1; got != want {
			t.Fatalf("Index=%d, want %d", got, want)
		}
	})

	t.Run("ErrOutOfOrder", func(t *testing.T) {
		r := verify.NewRunner(&mock.Browser{}, testBaseURL)
		if err := r.Run(context.Background(), []routecheck.Scenario{
			{Role: routecheck.RoleAdmin, From: "/", ExpectedTo: "/admin"},
			{Role: routecheck.RoleUnauthenticated, From: "/game", ExpectedTo: "/"},
		}); routecheck.ErrorCode(err) != routecheck.EINVALID {
			t.Fatalf("unexpected error: %#v", err)
		}
	})

	t.Run("ErrBaseURLRequired", func(t *testing.T) {
		r := verify.NewRunner(&mock.Browser{}, "")
		if err := r.Run(context.Background(), routecheck.DefaultScenarios()); routecheck.ErrorCode(err) != routecheck.EINVALID {
			t.Fatalf("unexpected error: %#v", err)
		}
	})
}

// NewMockPage returns a page that accepts every call and tracks close.
func NewMockPage(closed *bool) *mock.Page {
	return &mock.Page{
		NavigateFn: func(ctx context.Context, url string) error { return nil },
		LocationFn: func(ctx context.Context) (string, error) { return testBaseURL + "/", nil },
		WaitForURLFn: func(ctx context.Context, url string, timeout time.Duration) error {
			return nil
		},
		SetStorageItemsFn: func(ctx context.Context, items []routecheck.StorageItem) error { return nil },
		CloseFn: func() error {
			*closed = true
			return nil
		},
	}
}

func TestRunner_Run_Mock(t *testing.T) {
	t.Run("ErrNavigate", func(t *testing.T) {
		var closed bool
		page := NewMockPage(&closed)
		page.NavigateFn = func(ctx context.Context, url string) error {
			return routecheck.Errorf(routecheck.ENAVIGATE, "net::ERR_CONNECTION_REFUSED")
		}

		r := verify.NewRunner(&mock.Browser{
			NewPageFn: func(ctx context.Context) (routecheck.Page, error) { return page, nil },
		}, testBaseURL)

		err := r.Run(context.Background(), routecheck.DefaultScenarios())
		if routecheck.ErrorCode(err) != routecheck.ENAVIGATE {
			t.Fatalf("unexpected error: %#v", err)
		} else if got, want := err.Error(), "/admin redirects to /: routecheck error: code=navigate message=net::ERR_CONNECTION_REFUSED"; got != want {
			t.Fatalf("error=%q, want %q", got, want)
		} else if !closed {
			t.Fatal("expected page closed")
		}
	})

	t.Run("ErrScript", func(t *testing.T) {
		var closed bool
		var waits []string
		page := NewMockPage(&closed)
		page.WaitForURLFn = func(ctx context.Context, url string, timeout time.Duration) error {
			waits = append(waits, url)
			return nil
		}
		page.SetStorageItemsFn = func(ctx context.Context, items []routecheck.StorageItem) error {
			if s := routecheck.ScenarioFromContext(ctx); s == nil || s.Role != routecheck.RoleTeam {
				t.Fatalf("unexpected scenario in context: %#v", s)
			}
			return routecheck.Errorf(routecheck.ESCRIPT, "ReferenceError: localStorage is not defined")
		}

		r := verify.NewRunner(&mock.Browser{
			NewPageFn: func(ctx context.Context) (routecheck.Page, error) { return page, nil },
		}, testBaseURL+"/")

		err := r.Run(context.Background(), routecheck.DefaultScenarios())
		if routecheck.ErrorCode(err) != routecheck.ESCRIPT {
			t.Fatalf("unexpected error: %#v", err)
		} else if !strings.HasPrefix(err.Error(), "/ redirects to /game: transition to team: ") {
			t.Fatalf("unexpected error message: %s", err)
		} else if got, want := len(waits), 4; got != want {
			t.Fatalf("waits=%d, want %d", got, want)
		} else if got, want := waits[3], testBaseURL+"/leaderboard?room=TEST"; got != want {
			t.Fatalf("wait=%q, want %q", got, want)
		} else if !closed {
			t.Fatal("expected page closed")
		}
	})

	t.Run("PassesTimeout", func(t *testing.T) {
		var closed bool
		page := NewMockPage(&closed)
		page.WaitForURLFn = func(ctx context.Context, url string, timeout time.Duration) error {
			if timeout != 3*time.Second {
				t.Fatalf("unexpected timeout: %s", timeout)
			}
			return nil
		}

		r := verify.NewRunner(&mock.Browser{
			NewPageFn: func(ctx context.Context) (routecheck.Page, error) { return page, nil },
		}, testBaseURL)
		r.Timeout = 3 * time.Second

		if err := r.Run(context.Background(), routecheck.DefaultScenarios()); err != nil {
			t.Fatal(err)
		}
	})

	// A page load that never completes fails the scenario instead of hanging.
	t.Run("ErrNavigateTimeout", func(t *testing.T) {
		var closed bool
		page := NewMockPage(&closed)
		page.NavigateFn = func(ctx context.Context, url string) error {
			<-ctx.Done()
			return ctx.Err()
		}

		r := verify.NewRunner(&mock.Browser{
			NewPageFn: func(ctx context.Context) (routecheck.Page, error) { return page, nil },
		}, testBaseURL)
		r.Timeout = 50 * time.Millisecond

		errc := make(chan error, 1)
		go func() { errc <- r.Run(context.Background(), routecheck.DefaultScenarios()) }()

		select {
		case err := <-errc:
			if routecheck.ErrorCode(err) != routecheck.ETIMEOUT {
				t.Fatalf("unexpected error: %#v", err)
			} else if got, want := err.Error(), "/admin redirects to /: routecheck error: code=timeout message=Timed out after 50ms navigating to http://localhost:8080/admin."; got != want {
				t.Fatalf("error=%q, want %q", got, want)
			} else if !closed {
				t.Fatal("expected page closed")
			}
		case <-time.After(5 * time.Second):
			t.Fatal("run did not return after navigation timeout")
		}
	})

	// The origin visit before seeding storage is bounded too.
	t.Run("ErrSeedNavigateTimeout", func(t *testing.T) {
		var closed bool
		page := NewMockPage(&closed)
		page.NavigateFn = func(ctx context.Context, url string) error {
			<-ctx.Done()
			return ctx.Err()
		}

		r := verify.NewRunner(&mock.Browser{
			NewPageFn: func(ctx context.Context) (routecheck.Page, error) { return page, nil },
		}, testBaseURL)
		r.Timeout = 20 * time.Millisecond

		err := r.Run(context.Background(), []routecheck.Scenario{
			{Role: routecheck.RoleTeam, From: "/", ExpectedTo: "/game"},
		})
		if routecheck.ErrorCode(err) != routecheck.ETIMEOUT {
			t.Fatalf("unexpected error: %#v", err)
		} else if !strings.HasPrefix(err.Error(), "/ redirects to /game: transition to team: ") {
			t.Fatalf("unexpected error message: %s", err)
		}
	})

	// A canceled run reports the cancellation, not a timeout.
	t.Run("ErrCanceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		var closed bool
		page := NewMockPage(&closed)
		page.NavigateFn = func(ctx context.Context, url string) error {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		}

		r := verify.NewRunner(&mock.Browser{
			NewPageFn: func(ctx context.Context) (routecheck.Page, error) { return page, nil },
		}, testBaseURL)

		if err := r.Run(ctx, routecheck.DefaultScenarios()); !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected error: %#v", err)
		}
	})

	t.Run("EventOrder", func(t *testing.T) {
		var closed bool
		var types []string
		r := verify.NewRunner(&mock.Browser{
			NewPageFn: func(ctx context.Context) (routecheck.Page, error) { return NewMockPage(&closed), nil },
		}, testBaseURL)
		r.Events = &mock.EventService{
			PublishEventFn: func(ctx context.Context, event routecheck.Event) {
				types = append(types, event.Type)
			},
		}

		if err := r.Run(context.Background(), []routecheck.Scenario{
			{Role: routecheck.RoleUnauthenticated, From: "/game", ExpectedTo: "/"},
			{Role: routecheck.RoleTeam, From: "/", ExpectedTo: "/game"},
			{Role: routecheck.RoleTeam, From: "/admin", ExpectedTo: "/game"},
		}); err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff([]string{
			routecheck.EventTypeRoleChanged,
			routecheck.EventTypeScenarioPassed,
			routecheck.EventTypeRoleChanged,
			routecheck.EventTypeScenarioPassed,
			routecheck.EventTypeScenarioPassed,
		}, types); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("ErrClosePage", func(t *testing.T) {
		var closed bool
		page := NewMockPage(&closed)
		page.CloseFn = func() error { return routecheck.Errorf(routecheck.EINTERNAL, "target crashed") }

		r := verify.NewRunner(&mock.Browser{
			NewPageFn: func(ctx context.Context) (routecheck.Page, error) { return page, nil },
		}, testBaseURL)

		if err := r.Run(context.Background(), routecheck.DefaultScenarios()); err == nil || !strings.HasPrefix(err.Error(), "cannot close page: ") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
