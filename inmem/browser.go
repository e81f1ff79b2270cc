package inmem

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/codebingo/routecheck"
)

// BlankURL is the location of a newly opened page.
const BlankURL = "about:blank"

// Ensure type implements interface.
var _ routecheck.Browser = (*Browser)(nil)

// Browser is an in-memory browser that applies a Router to every navigation.
// localStorage is shared by all pages and partitioned by origin.
type Browser struct {
	mu      sync.Mutex
	router  *Router
	storage map[string]map[string]string // items by origin
	pages   []*Page
	closed  bool
}

// NewBrowser returns a new instance of Browser using router to resolve navigations.
func NewBrowser(router *Router) *Browser {
	return &Browser{
		router:  router,
		storage: make(map[string]map[string]string),
	}
}

// NewPage opens a new blank page.
func (b *Browser) NewPage(ctx context.Context) (routecheck.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, routecheck.Errorf(routecheck.EINTERNAL, "Browser closed.")
	}

	p := &Page{browser: b, location: BlankURL}
	b.pages = append(b.pages, p)
	return p, nil
}

// Close closes the browser and all of its pages.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, p := range b.pages {
		p.closed = true
	}
	return nil
}

// Closed returns true if the browser has been closed.
func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Pages returns all pages opened by the browser.
func (b *Browser) Pages() []*Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Page(nil), b.pages...)
}

// StorageItem returns a localStorage value for an origin.
func (b *Browser) StorageItem(origin, key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.storage[origin][key]
	return v, ok
}

// Ensure type implements interface.
var _ routecheck.Page = (*Page)(nil)

// Page represents a page in the in-memory browser.
type Page struct {
	browser  *Browser
	location string
	history  []string
	closed   bool
}

// Navigate resolves u through the browser's router and updates the location.
func (p *Page) Navigate(ctx context.Context, u string) error {
	p.browser.mu.Lock()
	defer p.browser.mu.Unlock()

	if p.closed {
		return routecheck.Errorf(routecheck.ENAVIGATE, "Page closed.")
	}

	parsed, err := url.Parse(u)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return routecheck.Errorf(routecheck.ENAVIGATE, "Cannot navigate to %q: invalid URL.", u)
	}

	origin := parsed.Scheme + "://" + parsed.Host
	target := parsed.RequestURI()
	p.location = origin + p.browser.router.Resolve(target, p.browser.storage[origin])
	p.history = append(p.history, p.location)
	return nil
}

// Location returns the current URL of the page.
func (p *Page) Location(ctx context.Context) (string, error) {
	p.browser.mu.Lock()
	defer p.browser.mu.Unlock()
	return p.location, nil
}

// WaitForURL returns immediately if the page is at u. Otherwise the location
// can never change on its own so it waits out the timeout and fails.
func (p *Page) WaitForURL(ctx context.Context, u string, timeout time.Duration) error {
	if loc, _ := p.Location(ctx); loc == u {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	loc, _ := p.Location(ctx)
	if loc == u {
		return nil
	}
	return routecheck.Errorf(routecheck.ETIMEOUT, "Timed out after %s waiting for %s; page is at %s.", timeout, u, loc)
}

// SetStorageItems writes items to the localStorage of the current origin.
// Returns ESCRIPT on a blank page since it has no origin to store against.
func (p *Page) SetStorageItems(ctx context.Context, items []routecheck.StorageItem) error {
	p.browser.mu.Lock()
	defer p.browser.mu.Unlock()

	if p.closed {
		return routecheck.Errorf(routecheck.ESCRIPT, "Page closed.")
	}

	u, err := url.Parse(p.location)
	if err != nil || u.Host == "" {
		return routecheck.Errorf(routecheck.ESCRIPT, "SecurityError: localStorage is not available on %s.", p.location)
	}
	origin := u.Scheme + "://" + u.Host

	m := p.browser.storage[origin]
	if m == nil {
		m = make(map[string]string)
		p.browser.storage[origin] = m
	}
	for _, item := range items {
		m[item.Key] = item.Value
	}
	return nil
}

// Close closes the page.
func (p *Page) Close() error {
	p.browser.mu.Lock()
	defer p.browser.mu.Unlock()
	p.closed = true
	return nil
}

// Closed returns true if the page has been closed.
func (p *Page) Closed() bool {
	p.browser.mu.Lock()
	defer p.browser.mu.Unlock()
	return p.closed
}

// History returns every location the page has settled on, in order.
func (p *Page) History() []string {
	p.browser.mu.Lock()
	defer p.browser.mu.Unlock()
	return append([]string(nil), p.history...)
}
