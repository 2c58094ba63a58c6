package fetcher

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/pevans/coursefed/scraper"
)

// Feed reads RSS or Atom course listings. Items are rendered into a small
// HTML document so the same selectors and extractor apply.
type Feed struct {
	parser  *gofeed.Parser
	timeout time.Duration
}

// NewFeed creates a Feed fetcher.
func NewFeed(opts Options) *Feed {
	opts.setDefaults()
	parser := gofeed.NewParser()
	parser.UserAgent = opts.UserAgent
	parser.Client = &http.Client{}
	return &Feed{parser: parser, timeout: opts.Timeout}
}

// Fetch parses the feed at req.URL.
func (f *Feed) Fetch(ctx context.Context, req Request) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	feed, err := f.parser.ParseURLWithContext(req.URL, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			return nil, &FetchError{URL: req.URL, StatusCode: httpErr.StatusCode}
		}
		return nil, &FetchError{URL: req.URL, Err: fmt.Errorf("failed to parse feed: %w", err)}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(RenderFeed(feed)))
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: fmt.Errorf("failed to parse rendered feed: %w", err)}
	}

	return &Page{URL: req.URL, Doc: doc, Mode: scraper.FetchFeed, FetchedAt: time.Now()}, nil
}

// RenderFeed renders feed items as article elements matching
// scraper.FeedSelectors.
func RenderFeed(feed *gofeed.Feed) string {
	var b strings.Builder
	b.WriteString("<html><head><title>")
	b.WriteString(html.EscapeString(feed.Title))
	b.WriteString("</title></head><body>\n")

	for _, item := range feed.Items {
		fmt.Fprintf(&b, `<article class="%s">`, scraper.FeedItemClass)
		fmt.Fprintf(&b, "<h2>%s</h2>", html.EscapeString(plainText(item.Title)))
		description := item.Description
		if description == "" {
			description = item.Content
		}
		if description != "" {
			fmt.Fprintf(&b, `<p class="%s">%s</p>`, scraper.FeedDescriptionClass, html.EscapeString(plainText(description)))
		}
		for _, category := range item.Categories {
			fmt.Fprintf(&b, `<span class="%s">%s</span>`, scraper.FeedCategoryClass, html.EscapeString(category))
		}
		if item.Link != "" {
			fmt.Fprintf(&b, `<a href="%s">%s</a>`, html.EscapeString(item.Link), html.EscapeString(item.Link))
		}
		b.WriteString("</article>\n")
	}

	b.WriteString("</body></html>")
	return b.String()
}

// plainText strips markup that feeds commonly embed in titles and
// descriptions.
func plainText(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return doc.Text()
}
