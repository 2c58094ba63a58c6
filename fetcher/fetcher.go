// Package fetcher retrieves listing pages as parsed documents. Static pages
// come from a plain HTTP GET, dynamic pages are rendered in headless Chrome
// and feeds are parsed with gofeed. All variants return the same Page.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pevans/coursefed/scraper"
)

// DefaultUserAgent identifies requests as a desktop browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Default timeouts.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultRenderTimeout = 10 * time.Second
)

// ErrUnsupportedMode is returned by Mux for a mode with no fetcher.
var ErrUnsupportedMode = errors.New("unsupported fetch mode")

// Request describes one page to retrieve.
type Request struct {
	URL               string
	Mode              scraper.FetchMode
	ReadinessSelector string
}

// Page is a retrieved and parsed page.
type Page struct {
	URL       string
	Doc       *goquery.Document
	Mode      scraper.FetchMode
	FetchedAt time.Time
}

// Fetcher retrieves a page. Implementations do not retry.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Page, error)
}

// Options configure the fetchers built by New.
type Options struct {
	UserAgent     string
	Timeout       time.Duration
	RenderTimeout time.Duration
	// ChromePath overrides the Chrome binary used for dynamic pages.
	ChromePath string
}

func (o *Options) setDefaults() {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RenderTimeout <= 0 {
		o.RenderTimeout = DefaultRenderTimeout
	}
}

// FetchError reports a failed retrieval: a network error, a timeout or a
// non-2xx status.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure may succeed on retry: server
// errors, rate limiting, timeouts and network errors.
func (e *FetchError) Transient() bool {
	if e.StatusCode != 0 {
		return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
	}
	if errors.Is(e.Err, context.Canceled) {
		return false
	}
	var netErr net.Error
	return errors.Is(e.Err, context.DeadlineExceeded) || errors.As(e.Err, &netErr)
}

// RenderTimeoutError reports a readiness selector that never appeared.
type RenderTimeoutError struct {
	URL      string
	Selector string
	Timeout  time.Duration
}

func (e *RenderTimeoutError) Error() string {
	return fmt.Sprintf("render timeout: %q did not appear on %s within %s", e.Selector, e.URL, e.Timeout)
}

func (e *RenderTimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// Transient is always true; slow pages often render on a second attempt.
func (e *RenderTimeoutError) Transient() bool {
	return true
}

// Mux dispatches requests to the fetcher registered for their mode.
type Mux struct {
	fetchers map[scraper.FetchMode]Fetcher
}

// New builds a Mux with the static, dynamic and feed fetchers.
func New(opts Options) *Mux {
	opts.setDefaults()
	return NewMux(map[scraper.FetchMode]Fetcher{
		scraper.FetchStatic:  NewStatic(opts),
		scraper.FetchDynamic: NewDynamic(opts),
		scraper.FetchFeed:    NewFeed(opts),
	})
}

// NewMux creates a Mux from explicit fetchers.
func NewMux(fetchers map[scraper.FetchMode]Fetcher) *Mux {
	return &Mux{fetchers: fetchers}
}

// Fetch retrieves req with the fetcher for req.Mode. An empty mode is
// static.
func (m *Mux) Fetch(ctx context.Context, req Request) (*Page, error) {
	if req.Mode == "" {
		req.Mode = scraper.FetchStatic
	}
	f, ok := m.fetchers[req.Mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, req.Mode)
	}
	return f.Fetch(ctx, req)
}
