package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/codebingo/routecheck"
	"github.com/codebingo/routecheck/chrome"
	"github.com/codebingo/routecheck/console"
	"github.com/codebingo/routecheck/http"
	"github.com/codebingo/routecheck/verify"
	"github.com/joho/godotenv"
	"github.com/rollbar/rollbar-go"
	"github.com/rs/zerolog"
)

// Build version, injected during build.
var (
	version string
	commit  string
)

// main is the entry point to our application binary. However, it has some poor
// usability so we mainly use it to delegate out to our Main type.
func main() {
	// Propagate build information to root package to share globally.
	routecheck.Version, routecheck.Commit = version, commit

	// Setup signal handlers.
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() { <-c; cancel() }()

	// Instantiate a new type to represent our application.
	// This type lets us shared setup code with our end-to-end tests.
	m := NewMain()

	// Parse command line flags & load configuration.
	if err := m.ParseFlags(ctx, os.Args[1:]); err == flag.ErrHelp {
		os.Exit(1)
	} else if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Execute program. The run is fail-fast so any error means a failed run.
	err := m.Run(ctx)
	if e := m.Close(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, errorText(err))
		os.Exit(1)
	}
}

// errorText returns the message printed for a failed run. Invalid input is
// shown as its bare message. Wrapped errors keep the step that failed.
func errorText(err error) string {
	if e, ok := err.(*routecheck.Error); ok && e.Code == routecheck.EINVALID {
		return e.Message
	}
	return err.Error()
}

// Main represents the program.
type Main struct {
	// Configuration path and parsed config data.
	Config     Config
	ConfigPath string

	// Scenarios to verify. Defaults to the full route guard suite and is
	// narrowed by the role & run filters.
	Scenarios []routecheck.Scenario

	// Browser used for the run. If nil, Run() launches Chrome using the
	// configured settings and closes it before returning.
	Browser routecheck.Browser

	// Transcript output. Diagnostic logs are written to Stderr.
	Stdout io.Writer
	Stderr io.Writer

	Logger zerolog.Logger

	// Set when Run() launched its own browser.
	chrome *chrome.Browser
}

// NewMain returns a new instance of Main.
func NewMain() *Main {
	return &Main{
		Config:     DefaultConfig(),
		ConfigPath: DefaultConfigPath,
		Scenarios:  routecheck.DefaultScenarios(),
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Logger:     zerolog.Nop(),
	}
}

// Close releases the browser if it was launched by Run(). Safe to call
// multiple times.
func (m *Main) Close() error {
	if m.chrome != nil {
		if err := m.chrome.Close(); err != nil {
			return err
		}
		m.chrome = nil
	}
	return nil
}

// ParseFlags parses the command line arguments & loads the config.
//
// Settings are applied in order of precedence: defaults, config file,
// environment (including a .env file in the working directory), then flags.
//
// This exists separately from the Run() function so that we can skip it
// during end-to-end tests. Those tests will configure manually and call Run().
func (m *Main) ParseFlags(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("routecheck", flag.ContinueOnError)
	fs.StringVar(&m.ConfigPath, "config", DefaultConfigPath, "config path")
	url := fs.String("url", "", "base URL of the application under test")
	timeout := fs.Duration("timeout", 0, "time allowed for each scenario to reach its expected URL")
	startupDelay := fs.Duration("startup-delay", 0, "fixed delay before probing the application")
	readyTimeout := fs.Duration("ready-timeout", 0, "maximum time to wait for the application to respond")
	role := fs.String("role", "", "only verify scenarios for this role (unauthenticated, team, admin)")
	run := fs.String("run", "", "only verify scenarios whose description contains this string")
	headful := fs.Bool("headful", false, "show the browser window")
	noSandbox := fs.Bool("no-sandbox", false, "disable the Chrome sandbox")
	debugAddr := fs.String("debug-addr", "", "serve metrics on this address")
	verbose := fs.Bool("v", false, "enable debug logging")
	fs.Usage = usage
	if err := fs.Parse(args); err != nil {
		return err
	} else if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	// The default config file is optional. An explicit one must exist.
	explicit := false
	fs.Visit(func(f *flag.Flag) { explicit = explicit || f.Name == "config" })

	configPath, err := expand(m.ConfigPath)
	if err != nil {
		return err
	}
	config, err := ReadConfigFile(configPath)
	if os.IsNotExist(err) && !explicit {
		config = DefaultConfig()
	} else if os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", m.ConfigPath)
	} else if err != nil {
		return err
	}

	// Load a .env file if one exists. Existing environment variables win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cannot load .env: %w", err)
	}
	config.ApplyEnv(os.Getenv)

	// Only flags that were explicitly passed override other settings.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			config.URL = *url
		case "timeout":
			config.Timeout = timeout.String()
		case "startup-delay":
			config.StartupDelay = startupDelay.String()
		case "ready-timeout":
			config.ReadyTimeout = readyTimeout.String()
		case "role":
			config.Role = *role
		case "run":
			config.Run = *run
		case "headful":
			config.Chrome.Headless = !*headful
		case "no-sandbox":
			config.Chrome.NoSandbox = *noSandbox
		case "debug-addr":
			config.DebugAddr = *debugAddr
		case "v":
			if *verbose {
				config.Log.Level = "debug"
			}
		}
	})

	if err := config.Validate(); err != nil {
		return err
	}
	m.Config = config

	return nil
}

// Run executes the verification suite. The configuration should already be
// set up before calling this function. Returns an error if any scenario fails.
func (m *Main) Run(ctx context.Context) (err error) {
	if err := m.Config.Validate(); err != nil {
		return err
	}

	// Initialize diagnostic logging.
	if m.Logger, err = NewLogger(m.Config.Log.Level, m.Config.Log.Format, m.Stderr); err != nil {
		return err
	}

	// Report internal errors to Rollbar, if configured.
	if m.Config.Rollbar.Token != "" {
		rollbar.SetToken(m.Config.Rollbar.Token)
		rollbar.SetEnvironment(m.Config.Rollbar.Environment)
		rollbar.SetCodeVersion(version)
		rollbar.SetServerRoot("github.com/codebingo/routecheck")
		routecheck.ReportError = rollbarReportError
		routecheck.ReportPanic = rollbarReportPanic
		defer rollbar.Wait()
	}

	// Expose metrics for the duration of the run, if configured.
	if m.Config.DebugAddr != "" {
		go func() {
			if err := http.ListenAndServeDebug(m.Config.DebugAddr); err != nil {
				m.Logger.Error().Err(err).Msg("debug server stopped")
			}
		}()
	}

	// Narrow the suite before touching the network so a bad filter fails fast.
	scenarios, err := m.selectScenarios()
	if err != nil {
		return err
	}

	// Give the application a head start, then probe it until it responds.
	if d := m.Config.startupDelay(); d > 0 {
		m.Logger.Info().Dur("delay", d).Msg("waiting before probing application")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
	if d := m.Config.readyTimeout(); d > 0 {
		client := http.NewClient(m.Config.URL)
		client.Logger = m.Logger
		if err := client.WaitReady(ctx, d); err != nil {
			return err
		}
	}

	// Launch Chrome unless a browser was provided. The browser is released on
	// every return path, including failed scenarios.
	browser := m.Browser
	if browser == nil {
		b := chrome.NewBrowser()
		b.Headless = m.Config.Chrome.Headless
		b.NoSandbox = m.Config.Chrome.NoSandbox
		b.ExecPath = m.Config.Chrome.ExecPath
		b.Logger = m.Logger
		if err := b.Open(ctx); err != nil {
			return err
		}
		m.chrome = b
		defer func() {
			if e := m.Close(); e != nil && err == nil {
				err = e
			}
		}()
		browser = b
	}

	reporter := console.NewReporter(m.Stdout)
	runner := verify.NewRunner(browser, m.Config.URL)
	runner.Timeout = m.Config.timeout()
	runner.Events = routecheck.MultiEventService(reporter, NewEventLogger(m.Logger))
	runner.Logger = m.Logger

	m.Logger.Info().Str("url", m.Config.URL).Int("scenarios", len(scenarios)).Msg("running")

	err = runner.Run(ctx, scenarios)
	reporter.Summary(len(scenarios))
	return err
}

// selectScenarios returns the scenarios matching the role & run filters.
func (m *Main) selectScenarios() ([]routecheck.Scenario, error) {
	var filter routecheck.ScenarioFilter
	if m.Config.Role != "" {
		role, err := routecheck.ParseRole(m.Config.Role)
		if err != nil {
			return nil, err
		}
		filter.Role = &role
	}
	filter.Description = m.Config.Run

	scenarios := routecheck.FilterScenarios(m.Scenarios, filter)
	if len(scenarios) == 0 {
		return nil, routecheck.Errorf(routecheck.EINVALID, "No scenarios match the given filters.")
	}
	return scenarios, nil
}

// usage prints the command usage message to STDERR.
func usage() {
	fmt.Fprintln(os.Stderr, `
Verifies the route guards of the bingo application by driving headless Chrome
through a fixed list of navigation scenarios as an anonymous visitor, a logged
in team and an admin. Stops at the first failing scenario.

Usage:

	routecheck [arguments]

Arguments:

	-config PATH
	    Config file path. Defaults to ~/routecheck.conf if present.

	-url URL
	    Base URL of the application. Defaults to http://localhost:8080.

	-timeout DURATION
	    Time allowed for each scenario. Defaults to 30s.

	-startup-delay DURATION
	    Fixed delay before probing the application.

	-ready-timeout DURATION
	    Maximum time to wait for the application to respond. Zero disables
	    the readiness probe. Defaults to 30s.

	-role ROLE
	    Only verify scenarios for unauthenticated, team or admin.

	-run TEXT
	    Only verify scenarios whose description contains TEXT.

	-headful
	    Show the browser window.

	-no-sandbox
	    Disable the Chrome sandbox. Required when running as root.

	-debug-addr ADDR
	    Serve Prometheus metrics on ADDR during the run.

	-v
	    Enable debug logging.
`[1:])
}

// rollbarReportError reports internal errors to rollbar.
func rollbarReportError(ctx context.Context, err error, args ...interface{}) {
	if routecheck.ErrorCode(err) != routecheck.EINTERNAL {
		return
	}

	if s := routecheck.ScenarioFromContext(ctx); s != nil {
		rollbar.Error(append([]interface{}{err, map[string]interface{}{
			"scenario": s.Name(),
			"role":     s.Role.String(),
		}}, args...)...)
	} else {
		rollbar.Error(append([]interface{}{err}, args...)...)
	}
}

// rollbarReportPanic reports panics to rollbar.
func rollbarReportPanic(err interface{}) {
	rollbar.LogPanic(err, true)
}
