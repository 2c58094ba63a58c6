// Package extract resolves course fields from parsed listing pages using
// ordered selector cascades.
package extract

import (
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pevans/coursefed/course"
	"github.com/pevans/coursefed/scraper"
)

// ErrExtractionEmpty is returned when neither container selectors nor the
// heading fallback produced a single candidate, including when every
// heading was refused by the heading filter.
var ErrExtractionEmpty = errors.New("no course containers or headings found")

// headingSelector is scanned when no container selector matches.
const headingSelector = "h1, h2, h3"

// Extractor resolves fields for one target.
type Extractor struct {
	target      scraper.Target
	keepHeading func(title string) bool
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithHeadingFilter limits the heading fallback to headings whose text keep
// accepts.
func WithHeadingFilter(keep func(title string) bool) Option {
	return func(e *Extractor) {
		e.keepHeading = keep
	}
}

// New creates an Extractor for target.
func New(target scraper.Target, opts ...Option) *Extractor {
	e := &Extractor{target: target}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Text resolves field on node through its cascade.
func (e *Extractor) Text(node *goquery.Selection, field scraper.Field) string {
	return TextBySelectors(node, e.target.Cascade(field))
}

// TextBySelectors tries each selector in order against, in turn, the
// descendants of node, node itself and its siblings. The first non-empty
// cleaned text wins.
func TextBySelectors(node *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if text := CleanText(node.Find(sel).First().Text()); text != "" {
			return text
		}
		if node.Is(sel) {
			if text := CleanText(node.Text()); text != "" {
				return text
			}
		}
		if text := CleanText(node.SiblingsFiltered(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// List returns the distinct non-empty items of the first selector in the
// field's cascade that yields any.
func (e *Extractor) List(node *goquery.Selection, field scraper.Field) []string {
	for _, sel := range e.target.Cascade(field) {
		var items []string
		seen := map[string]bool{}
		node.Find(sel).Each(func(_ int, s *goquery.Selection) {
			text := CleanText(s.Text())
			if text == "" || seen[text] {
				return
			}
			seen[text] = true
			items = append(items, text)
		})
		if len(items) > 0 {
			return items
		}
	}
	return nil
}

// Link returns the absolute URL of the course page, falling back to the
// closest enclosing anchor.
func (e *Extractor) Link(node *goquery.Selection) string {
	for _, sel := range e.target.Cascade(scraper.FieldLink) {
		if link := ResolveURL(node.Find(sel).First().AttrOr("href", ""), e.target.BaseURL); link != "" {
			return link
		}
	}
	return ResolveURL(node.Closest("a").AttrOr("href", ""), e.target.BaseURL)
}

// Image returns the absolute URL of an illustration for node: first within
// node, then its parent, then its siblings, then any page image that looks
// course related. It returns "" when nothing fits.
func (e *Extractor) Image(doc *goquery.Document, node *goquery.Selection) string {
	for _, sel := range e.target.Cascade(scraper.FieldImage) {
		for _, scope := range []*goquery.Selection{node, node.Parent(), node.Siblings()} {
			if src := ResolveURL(scope.Find(sel).First().AttrOr("src", ""), e.target.BaseURL); src != "" {
				return src
			}
		}
	}

	var found string
	doc.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src := img.AttrOr("src", "")
		if src == "" {
			return true
		}
		alt := strings.ToLower(img.AttrOr("alt", ""))
		if strings.Contains(alt, "course") || strings.Contains(alt, "programme") ||
			strings.Contains(alt, "study") || strings.Contains(src, "course") ||
			strings.Contains(src, "programme") {
			found = ResolveURL(src, e.target.BaseURL)
			return found == ""
		}
		return true
	})
	return found
}

// Fees returns the tuition amount for node and the text it came from. When
// the fee field yields nothing plausible the node's and its parent's text
// are searched for a pound amount.
func (e *Extractor) Fees(node *goquery.Selection) (int, string) {
	text := e.Text(node, scraper.FieldFees)
	if text != "" {
		if fee := ParseFees(text); fee != course.FeeUnknown {
			return fee, text
		}
	}

	surrounding := node.Text() + " " + node.Parent().Text()
	if fee, ok := matchFee(feePatterns[0], surrounding); ok {
		return fee, text
	}
	return course.FeeUnknown, text
}

// Deadline returns the application deadline text for node.
func (e *Extractor) Deadline(node *goquery.Selection) string {
	text := e.Text(node, scraper.FieldDeadline)
	if text == "" {
		return ""
	}
	return ParseDeadline(text)
}

// StartDates returns the month or season mentions found in the node's start
// date items, or nil.
func (e *Extractor) StartDates(node *goquery.Selection) []string {
	text := strings.Join(e.List(node, scraper.FieldStartDates), " ")
	if text == "" {
		text = e.Text(node, scraper.FieldStartDates)
	}
	return ParseStartDates(text)
}

// Containers returns the nodes matched by the first container selector that
// matches anything, and that selector. It returns nil when none match.
func (e *Extractor) Containers(doc *goquery.Document) (*goquery.Selection, string) {
	for _, sel := range e.target.Cascade(scraper.FieldContainer) {
		if s := doc.Find(sel); s.Length() > 0 {
			return s, sel
		}
	}
	return nil, ""
}

// Fragment extracts every field of one container node.
func (e *Extractor) Fragment(doc *goquery.Document, node *goquery.Selection, pageURL string, at time.Time) course.Fragment {
	fees, feesText := e.Fees(node)
	f := course.Fragment{
		Title:        e.Text(node, scraper.FieldTitle),
		Description:  e.Text(node, scraper.FieldDescription),
		Duration:     e.Text(node, scraper.FieldDuration),
		FeesText:     feesText,
		Fees:         fees,
		Requirements: e.Text(node, scraper.FieldRequirements),
		Modules:      e.List(node, scraper.FieldModules),
		StartDates:   e.StartDates(node),
		Deadline:     e.Deadline(node),
		Link:         e.Link(node),
		Image:        e.Image(doc, node),
		Location:     e.Text(node, scraper.FieldLocation),
		SourceURL:    pageURL,
		ScrapedAt:    at,
	}
	if len(f.Modules) == 0 {
		f.ModulesText = e.Text(node, scraper.FieldModules)
	}
	return f
}

// Fragments extracts every titled candidate on the page. Container
// selectors are tried first; if they yield no titled fragment every h1-h3
// heading accepted by the heading filter becomes a candidate whose
// description is the paragraph that follows it.
func (e *Extractor) Fragments(doc *goquery.Document, pageURL string, at time.Time) ([]course.Fragment, error) {
	var fragments []course.Fragment

	if containers, _ := e.Containers(doc); containers != nil {
		containers.Each(func(_ int, node *goquery.Selection) {
			f := e.Fragment(doc, node, pageURL, at)
			if f.Title != "" {
				fragments = append(fragments, f)
			}
		})
	}
	if len(fragments) > 0 {
		return fragments, nil
	}

	doc.Find(headingSelector).Each(func(_ int, h *goquery.Selection) {
		title := CleanText(h.Text())
		if title == "" {
			return
		}
		if e.keepHeading != nil && !e.keepHeading(title) {
			return
		}
		fragments = append(fragments, course.Fragment{
			Title:       title,
			Description: headingDescription(h),
			SourceURL:   pageURL,
			ScrapedAt:   at,
		})
	})
	if len(fragments) == 0 {
		return nil, ErrExtractionEmpty
	}
	return fragments, nil
}

// headingDescription returns the first paragraph between h and the next
// heading, else the first paragraph inside h.
func headingDescription(h *goquery.Selection) string {
	if text := CleanText(h.NextUntil(headingSelector).Filter("p").First().Text()); text != "" {
		return text
	}
	return CleanText(h.Find("p").First().Text())
}
