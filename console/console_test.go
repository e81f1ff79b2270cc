package console_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codebingo/routecheck"
	"github.com/codebingo/routecheck/console"
	"github.com/codebingo/routecheck/inmem"
	"github.com/codebingo/routecheck/verify"
)

func TestReporter(t *testing.T) {
	var buf bytes.Buffer
	r := verify.NewRunner(inmem.NewBrowser(inmem.NewRouter()), "http://localhost:8080")
	reporter := console.NewReporter(&buf)
	r.Events = reporter

	scenarios := routecheck.DefaultScenarios()
	if err := r.Run(context.Background(), scenarios); err != nil {
		t.Fatal(err)
	}
	reporter.Summary(len(scenarios))

	if got, want := buf.String(), `--- Testing as Unauthenticated User ---
OK: /admin redirects to /
OK: /game redirects to /
OK: /congratulations redirects to /
OK: /leaderboard is accessible

--- Testing as Authenticated User ---
OK: / redirects to /game
OK: /admin redirects to /game
OK: /leaderboard is accessible

--- Testing as Admin User ---
OK: / redirects to /admin
OK: /game redirects to /admin
OK: /leaderboard is accessible

10 passed, 0 failed, 0 skipped
`; got != want {
		t.Fatalf("transcript:\n%s\nwant:\n%s", got, want)
	} else if reporter.Failed() {
		t.Fatal("expected no failures")
	}
}

func TestReporter_Failure(t *testing.T) {
	var buf bytes.Buffer
	r := verify.NewRunner(inmem.NewBrowser(inmem.NewRouter()), "http://localhost:8080")
	r.Timeout = time.Millisecond
	reporter := console.NewReporter(&buf)
	r.Events = reporter

	scenarios := []routecheck.Scenario{
		{Role: routecheck.RoleUnauthenticated, From: "/game", ExpectedTo: "/"},
		{Role: routecheck.RoleUnauthenticated, From: "/game", ExpectedTo: "/game"},
		{Role: routecheck.RoleUnauthenticated, From: "/admin", ExpectedTo: "/"},
	}
	if err := r.Run(context.Background(), scenarios); err == nil {
		t.Fatal("expected error")
	}
	reporter.Summary(len(scenarios))

	if got, want := buf.String(), `--- Testing as Unauthenticated User ---
OK: /game redirects to /
FAIL: /game is accessible (2nd scenario): Timed out after 1ms waiting for http://localhost:8080/game; page is at http://localhost:8080/.

1 passed, 1 failed, 1 skipped
`; got != want {
		t.Fatalf("transcript:\n%s\nwant:\n%s", got, want)
	} else if !reporter.Failed() {
		t.Fatal("expected failure")
	}
}

func TestReporter_InternalError(t *testing.T) {
	var buf bytes.Buffer
	reporter := console.NewReporter(&buf)
	reporter.PublishEvent(context.Background(), routecheck.Event{
		Type: routecheck.EventTypeScenarioFailed,
		Payload: &routecheck.ScenarioFailedPayload{
			Scenario: routecheck.Scenario{From: "/", ExpectedTo: "/game"},
			Err:      errors.New("websocket: close 1006"),
		},
	})

	if got, want := buf.String(), "FAIL: / redirects to /game (1st scenario): websocket: close 1006\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
