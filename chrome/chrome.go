// Package chrome implements routecheck.Browser on top of headless Chrome
// using the DevTools protocol.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/codebingo/routecheck"
	"github.com/rs/zerolog"
)

// DefaultPollInterval is the time between location checks in WaitForURL().
const DefaultPollInterval = 100 * time.Millisecond

// Ensure type implements interface.
var _ routecheck.Browser = (*Browser)(nil)

// Browser represents a Chrome process controlled over the DevTools protocol.
type Browser struct {
	ctx         context.Context // browser context, bound to the first tab
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	// Launch settings. Must be set before calling Open().
	Headless  bool
	NoSandbox bool
	ExecPath  string

	// Time between location checks while waiting for a URL.
	PollInterval time.Duration

	// Receives protocol logs from chromedp at debug level.
	Logger zerolog.Logger
}

// NewBrowser returns a new instance of Browser with default settings.
func NewBrowser() *Browser {
	return &Browser{
		Headless:     true,
		PollInterval: DefaultPollInterval,
		Logger:       zerolog.Nop(),
	}
}

// Open launches the Chrome process. The process is bound to ctx and is killed
// when ctx is canceled or Close() is called.
func (b *Browser) Open(ctx context.Context) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.Headless),
	)
	if b.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if b.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	b.ctx, b.cancel = chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			b.Logger.Debug().Msgf(format, args...)
		}),
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			b.Logger.Error().Msgf(format, args...)
		}),
	)
	b.allocCancel = allocCancel

	// Running with no actions starts the browser so launch errors are
	// reported here rather than on the first navigation.
	if err := chromedp.Run(b.ctx); err != nil {
		b.Close()
		return fmt.Errorf("cannot launch chrome: %w", err)
	}

	b.Logger.Debug().Bool("headless", b.Headless).Msg("chrome launched")
	return nil
}

// Close shuts down the browser & kills the Chrome process.
func (b *Browser) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	return nil
}

// NewPage opens a new tab in the browser.
func (b *Browser) NewPage(ctx context.Context) (routecheck.Page, error) {
	if b.ctx == nil {
		return nil, routecheck.Errorf(routecheck.EINTERNAL, "Browser not open.")
	}

	p := &Page{browser: b}
	p.ctx, p.cancel = chromedp.NewContext(b.ctx)

	// The first run attaches the tab and must use the tab context itself. A
	// derived context would detach the tab once it is canceled.
	if err := chromedp.Run(p.ctx); err != nil {
		p.cancel()
		return nil, fmt.Errorf("cannot open tab: %w", err)
	}
	return p, nil
}

// Ensure type implements interface.
var _ routecheck.Page = (*Page)(nil)

// Page represents a single Chrome tab.
type Page struct {
	browser *Browser
	ctx     context.Context
	cancel  context.CancelFunc
}

// Navigate loads u in the tab and waits for the load event.
func (p *Page) Navigate(ctx context.Context, u string) error {
	if err := p.run(ctx, chromedp.Navigate(u)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return routecheck.Errorf(routecheck.ENAVIGATE, "Cannot navigate to %s: %s", u, err)
	}
	return nil
}

// Location returns the current URL of the tab.
func (p *Page) Location(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// WaitForURL polls the tab's location until it equals u. Client-side routers
// change the URL after the load event so this is checked repeatedly rather
// than once after navigation.
func (p *Page) WaitForURL(ctx context.Context, u string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := p.browser.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last string
	for {
		// Location errors while a navigation is in flight are expected.
		if loc, err := p.Location(waitCtx); err == nil {
			if loc == u {
				return nil
			}
			if loc != last {
				p.browser.Logger.Debug().Str("url", loc).Msg("saw url")
			}
			last = loc
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return routecheck.Errorf(routecheck.ETIMEOUT, "Timed out after %s waiting for %s; page is at %s.", timeout, u, last)
		case <-ticker.C:
		}
	}
}

// SetStorageItems evaluates a localStorage script in the tab.
func (p *Page) SetStorageItems(ctx context.Context, items []routecheck.StorageItem) error {
	script, err := routecheck.StorageScript(items)
	if err != nil {
		return err
	}

	var ok bool
	if err := p.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		var exp *runtime.ExceptionDetails
		if errors.As(err, &exp) {
			return routecheck.Errorf(routecheck.ESCRIPT, "Storage script failed: %s", exp.Error())
		}
		return err
	} else if !ok {
		return routecheck.Errorf(routecheck.ESCRIPT, "Storage script did not complete.")
	}
	return nil
}

// Close closes the tab.
func (p *Page) Close() error {
	p.cancel()
	return nil
}

// run executes actions in the tab. Canceling ctx aborts the actions without
// closing the tab.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}
