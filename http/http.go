package http

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/codebingo/routecheck"
	"github.com/rs/zerolog"
)

// Readiness probe settings.
const (
	DefaultReadyTimeout  = 30 * time.Second
	DefaultProbeInterval = 250 * time.Millisecond
	MaxProbeInterval     = 2 * time.Second
)

// Client represents an HTTP client for the application under test.
type Client struct {
	URL string

	// Initial delay between readiness probes. Grows exponentially.
	ProbeInterval time.Duration

	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// NewClient returns a new instance of Client.
func NewClient(u string) *Client {
	return &Client{
		URL:           strings.TrimSuffix(u, "/"),
		ProbeInterval: DefaultProbeInterval,
		HTTPClient:    &http.Client{Timeout: 5 * time.Second},
		Logger:        zerolog.Nop(),
	}
}

// WaitReady polls the application's root page until it responds without a
// server error. Returns EUNAVAILABLE if the application is not ready within
// maxWait.
func (c *Client) WaitReady(ctx context.Context, maxWait time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.ProbeInterval
	b.MaxInterval = MaxProbeInterval
	b.MaxElapsedTime = maxWait

	var attempts int
	err := backoff.RetryNotify(func() error {
		attempts++
		return c.probe(ctx)
	}, backoff.WithContext(b, ctx), func(err error, d time.Duration) {
		c.Logger.Debug().Err(err).Dur("retry_in", d).Msg("application not ready")
	})

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return routecheck.Errorf(routecheck.EUNAVAILABLE, "Application at %s not ready after %s: %s", c.URL, maxWait, err)
	}

	c.Logger.Debug().Str("url", c.URL).Int("attempts", attempts).Msg("application ready")
	return nil
}

// probe issues a single GET request against the root path.
func (c *Client) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.URL+"/", nil)
	if err != nil {
		return backoff.Permanent(err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused by the next probe.
	_, _ = io.Copy(ioutil.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}
