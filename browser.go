package routecheck

import (
	"context"
	"time"
)

// DefaultTimeout is the time given for a page to settle on an expected URL.
const DefaultTimeout = 30 * time.Second

// Browser represents a controllable browser instance.
type Browser interface {
	// Opens a new page (tab) in the browser. Caller must close the page.
	NewPage(ctx context.Context) (Page, error)

	// Shuts down the browser and releases the underlying process.
	Close() error
}

// Page represents a single browser page.
type Page interface {
	// Navigates the page to an absolute URL. Returns ENAVIGATE if the target
	// cannot be loaded.
	Navigate(ctx context.Context, url string) error

	// Returns the current URL of the page.
	Location(ctx context.Context) (string, error)

	// Blocks until the page's current URL exactly equals url. Returns
	// ETIMEOUT if the URL does not match before timeout elapses.
	WaitForURL(ctx context.Context, url string, timeout time.Duration) error

	// Writes items to the client-side storage of the page's current origin
	// by evaluating a script in page context. Returns ESCRIPT if the script
	// fails to evaluate.
	SetStorageItems(ctx context.Context, items []StorageItem) error

	// Closes the page.
	Close() error
}
