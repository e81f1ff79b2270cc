// Package console writes a human-readable transcript of a verification run.
package console

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/codebingo/routecheck"
	"github.com/dustin/go-humanize"
)

// Ensure type implements interface.
var _ routecheck.EventService = (*Reporter)(nil)

// Reporter prints run events to a writer. Each role phase gets a section
// header and each scenario gets one line.
type Reporter struct {
	mu       sync.Mutex
	w        io.Writer
	sections int
	passed   int
	failed   int
}

// NewReporter returns a new instance of Reporter that writes to w.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// PublishEvent writes the transcript line for event.
func (r *Reporter) PublishEvent(ctx context.Context, event routecheck.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch payload := event.Payload.(type) {
	case *routecheck.RoleChangedPayload:
		if r.sections > 0 {
			fmt.Fprintln(r.w)
		}
		r.sections++
		fmt.Fprintf(r.w, "--- Testing as %s ---\n", payload.To.Title())

	case *routecheck.ScenarioPassedPayload:
		r.passed++
		fmt.Fprintf(r.w, "OK: %s\n", payload.Scenario.Name())

	case *routecheck.ScenarioFailedPayload:
		r.failed++
		fmt.Fprintf(r.w, "FAIL: %s (%s scenario): %s\n", payload.Scenario.Name(), humanize.Ordinal(payload.Index+1), message(payload.Err))
	}
}

// Summary writes a final line with the pass & fail counts.
func (r *Reporter) Summary(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	skipped := total - r.passed - r.failed
	fmt.Fprintf(r.w, "\n%d passed, %d failed, %d skipped\n", r.passed, r.failed, skipped)
}

// Failed returns true if any scenario failure has been reported.
func (r *Reporter) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed > 0
}

// message returns the user-facing message for err. Internal errors are shown
// in full since the transcript is read by the operator.
func message(err error) string {
	if routecheck.ErrorCode(err) == routecheck.EINTERNAL {
		return err.Error()
	}
	return routecheck.ErrorMessage(err)
}
