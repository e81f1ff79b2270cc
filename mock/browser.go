package mock

import (
	"context"
	"time"

	"github.com/codebingo/routecheck"
)

var _ routecheck.Browser = (*Browser)(nil)

// Browser represents a mock of routecheck.Browser.
type Browser struct {
	NewPageFn func(ctx context.Context) (routecheck.Page, error)
	CloseFn   func() error
}

func (b *Browser) NewPage(ctx context.Context) (routecheck.Page, error) {
	return b.NewPageFn(ctx)
}

func (b *Browser) Close() error {
	return b.CloseFn()
}

var _ routecheck.Page = (*Page)(nil)

// Page represents a mock of routecheck.Page.
type Page struct {
	NavigateFn        func(ctx context.Context, url string) error
	LocationFn        func(ctx context.Context) (string, error)
	WaitForURLFn      func(ctx context.Context, url string, timeout time.Duration) error
	SetStorageItemsFn func(ctx context.Context, items []routecheck.StorageItem) error
	CloseFn           func() error
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	return p.NavigateFn(ctx, url)
}

func (p *Page) Location(ctx context.Context) (string, error) {
	return p.LocationFn(ctx)
}

func (p *Page) WaitForURL(ctx context.Context, url string, timeout time.Duration) error {
	return p.WaitForURLFn(ctx, url, timeout)
}

func (p *Page) SetStorageItems(ctx context.Context, items []routecheck.StorageItem) error {
	return p.SetStorageItemsFn(ctx, items)
}

func (p *Page) Close() error {
	return p.CloseFn()
}
