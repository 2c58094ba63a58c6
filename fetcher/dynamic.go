package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"github.com/pevans/coursefed/scraper"
)

// Dynamic renders pages in headless Chrome before parsing them. Every fetch
// gets its own browser, torn down when Fetch returns.
type Dynamic struct {
	allocOpts     []chromedp.ExecAllocatorOption
	timeout       time.Duration
	renderTimeout time.Duration
}

// NewDynamic creates a Dynamic fetcher.
func NewDynamic(opts Options) *Dynamic {
	opts.setDefaults()
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(opts.UserAgent),
		chromedp.DisableGPU,
	)
	if opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ChromePath))
	}
	return &Dynamic{
		allocOpts:     allocOpts,
		timeout:       opts.Timeout,
		renderTimeout: opts.RenderTimeout,
	}
}

// Fetch navigates to req.URL, waits for the document and the readiness
// selector, then parses the rendered markup.
func (d *Dynamic) Fetch(ctx context.Context, req Request) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, d.allocOpts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return nil, &FetchError{URL: req.URL, Err: fmt.Errorf("failed to load page: %w", err)}
	}

	if req.ReadinessSelector != "" {
		if err := d.waitFor(ctx, browserCtx, req); err != nil {
			return nil, err
		}
	}

	var html string
	if err := chromedp.Run(browserCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, &FetchError{URL: req.URL, Err: fmt.Errorf("failed to read rendered HTML: %w", err)}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: fmt.Errorf("failed to parse HTML: %w", err)}
	}

	return &Page{URL: req.URL, Doc: doc, Mode: scraper.FetchDynamic, FetchedAt: time.Now()}, nil
}

func (d *Dynamic) waitFor(parent, browserCtx context.Context, req Request) error {
	waitCtx, cancel := context.WithTimeout(browserCtx, d.renderTimeout)
	defer cancel()

	err := chromedp.Run(waitCtx, chromedp.WaitVisible(req.ReadinessSelector, chromedp.ByQuery))
	if err == nil {
		return nil
	}
	if parent.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		return &RenderTimeoutError{URL: req.URL, Selector: req.ReadinessSelector, Timeout: d.renderTimeout}
	}
	return &FetchError{URL: req.URL, Err: err}
}
