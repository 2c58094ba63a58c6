package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pevans/coursefed/scraper"
)

// Static fetches server-rendered pages with a single GET.
type Static struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

// NewStatic creates a Static fetcher.
func NewStatic(opts Options) *Static {
	opts.setDefaults()
	return &Static{
		client:    &http.Client{},
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
	}
}

// Fetch retrieves and parses req.URL.
func (s *Static) Fetch(ctx context.Context, req Request) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("User-Agent", s.userAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-GB,en;q=0.5")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: req.URL, StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: fmt.Errorf("failed to parse HTML: %w", err)}
	}

	return &Page{URL: req.URL, Doc: doc, Mode: scraper.FetchStatic, FetchedAt: time.Now()}, nil
}
