// Package coursefed runs the course scraping pipeline: it fetches each
// source's listing pages, extracts and validates course fragments,
// normalizes them and stores the result, producing a Report for the run.
package coursefed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pevans/coursefed/course"
	"github.com/pevans/coursefed/extract"
	"github.com/pevans/coursefed/fetcher"
	"github.com/pevans/coursefed/heuristics"
	"github.com/pevans/coursefed/logger"
	"github.com/pevans/coursefed/normalize"
	"github.com/pevans/coursefed/persist"
	"github.com/pevans/coursefed/retry"
	"github.com/pevans/coursefed/scraper"
	"github.com/pevans/coursefed/validate"
)

// Persister stores a batch of normalized courses. *persist.Orchestrator
// implements it.
type Persister interface {
	Persist(ctx context.Context, courses []course.Course, src persist.Source) persist.Result
}

// Options configure a Coordinator.
type Options struct {
	// PageDelay separates successive page fetches within a source.
	PageDelay time.Duration
	// SourceDelay separates the start of successive sources.
	SourceDelay time.Duration
	// SourceTimeout bounds the wall-clock time spent on one source.
	SourceTimeout time.Duration
	// Concurrency is the number of sources run at once.
	Concurrency int
	// Retry governs page fetch retries.
	Retry retry.Config
	// Category names the degree type of every course. Empty uses the
	// tables' default.
	Category string
	Tables   *heuristics.Tables
	Clock    func() time.Time
}

// DefaultOptions returns sequential, polite settings.
func DefaultOptions() Options {
	return Options{
		PageDelay:     2 * time.Second,
		SourceDelay:   3 * time.Second,
		SourceTimeout: 5 * time.Minute,
		Concurrency:   1,
		Retry:         retry.DefaultConfig(),
	}
}

// Coordinator sequences sources through the pipeline.
type Coordinator struct {
	fetcher    fetcher.Fetcher
	persister  Persister
	validator  *validate.Validator
	normalizer *normalize.Normalizer
	log        logger.Logger
	opts       Options
	now        func() time.Time
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(f fetcher.Fetcher, p Persister, log logger.Logger, opts Options) *Coordinator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = DefaultOptions().SourceTimeout
	}
	if opts.Tables == nil {
		opts.Tables = heuristics.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Coordinator{
		fetcher:    f,
		persister:  p,
		validator:  validate.New(opts.Tables),
		normalizer: normalize.New(opts.Tables, normalize.WithClock(opts.Clock)),
		log:        log,
		opts:       opts,
		now:        opts.Clock,
	}
}

// Run processes every target and returns the run report. Failures are
// recorded in the report; Run itself never fails.
func (c *Coordinator) Run(ctx context.Context, targets []scraper.Target) Report {
	report := NewReport(c.now())
	c.log.Info("Starting run",
		logger.Int("sources", len(targets)),
		logger.Int("concurrency", c.opts.Concurrency),
	)

	// Each goroutine owns one slot, so outcomes need no locking and are
	// folded in target order afterwards.
	outcomes := make([]Outcome, len(targets))
	spacing := newLimiter(c.opts.SourceDelay)

	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for i, target := range targets {
		g.Go(func() error {
			if err := spacing.Wait(ctx); err != nil {
				outcomes[i] = abandoned(target, err)
				return nil
			}
			outcomes[i] = c.RunSource(ctx, target)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		report = report.With(o)
	}
	report = report.Finish(c.now())

	summary := report.Summary()
	c.log.Info("Run complete",
		logger.Int("attempted", summary.SourcesAttempted),
		logger.Int("succeeded", summary.Succeeded),
		logger.Int("failed", summary.Failed),
		logger.Int("records", summary.TotalRecords),
		logger.Int("errors", len(report.Errors())),
	)
	return report
}

// RunSource processes the pages of one target under the source timeout.
// Records from pages finished before a timeout stay stored.
func (c *Coordinator) RunSource(ctx context.Context, target scraper.Target) Outcome {
	start := c.now()
	log := c.log.With(logger.String("source", target.Key()))
	log.Info("Scraping source", logger.Int("pages", len(target.Pages)))

	ctx, cancel := context.WithTimeout(ctx, c.opts.SourceTimeout)
	defer cancel()

	result := SourceResult{
		Key:        target.Key(),
		Name:       target.SourceName,
		Department: target.DepartmentName,
		Pages:      len(target.Pages),
	}
	var runErrors []RunError

	ext := extract.New(target, extract.WithHeadingFilter(c.validator.IsCourseTitle))
	seen := course.NewSeen()
	pacing := newLimiter(c.opts.PageDelay)
	nctx := normalize.Context{
		InstitutionName: target.SourceName,
		DepartmentName:  target.DepartmentName,
		Category:        c.opts.Category,
	}
	psrc := persist.Source{
		InstitutionName: target.SourceName,
		DepartmentName:  target.DepartmentName,
		Category:        c.opts.Category,
		WebsiteURL:      target.BaseURL,
	}

	var abort error
	for _, url := range target.Pages {
		if err := pacing.Wait(ctx); err != nil {
			abort = c.sourceError(ctx, err)
			runErrors = append(runErrors, RunError{Source: target.Key(), URL: url, Message: abort.Error()})
			break
		}

		page, err := c.fetch(ctx, target, url, log)
		if err != nil {
			if ctx.Err() != nil {
				abort = c.sourceError(ctx, err)
				runErrors = append(runErrors, RunError{Source: target.Key(), URL: url, Message: abort.Error()})
				break
			}
			result.PagesFailed++
			runErrors = append(runErrors, RunError{Source: target.Key(), URL: url, Message: err.Error()})
			log.Error("Failed to fetch page", logger.String("url", url), logger.Error(err))
			continue
		}

		fragments, err := ext.Fragments(page.Doc, page.URL, page.FetchedAt)
		if err != nil {
			result.EmptyPages++
			log.Warn("No course candidates on page", logger.String("url", url), logger.Error(err))
			continue
		}
		result.Extracted += len(fragments)

		kept, rejected := c.validator.Filter(fragments)
		result.Rejected += rejected

		courses := make([]course.Course, 0, len(kept))
		for _, f := range kept {
			co, err := c.normalizer.Transform(f, nctx)
			if err != nil {
				result.Dropped++
				log.Warn("Dropped course", logger.String("url", url), logger.Error(err))
				continue
			}
			courses = append(courses, co)
		}

		unique := seen.Filter(courses)
		result.Duplicates += len(courses) - len(unique)

		stored := c.persister.Persist(ctx, unique, psrc)
		result.RecordCount += stored.Stored
		result.Inserted += stored.Inserted
		result.Updated += stored.Updated
		for _, perr := range stored.Errors {
			runErrors = append(runErrors, RunError{Source: target.Key(), URL: url, Message: perr.Error()})
		}

		log.Info("Scraped page",
			logger.String("url", url),
			logger.Int("candidates", len(fragments)),
			logger.Int("accepted", len(unique)),
			logger.Int("stored", stored.Stored),
		)
	}

	switch {
	case abort != nil:
		result.Error = abort.Error()
	case result.Pages > 0 && result.PagesFailed == result.Pages:
		result.Error = fmt.Sprintf("all %d pages failed", result.Pages)
	case result.Pages == 0:
		result.Error = "no pages configured"
	}
	result.Success = result.Error == ""
	result.DurationMs = c.now().Sub(start).Milliseconds()

	if result.Success {
		log.Info("Source complete", logger.Int("records", result.RecordCount))
	} else {
		log.Error("Source failed", logger.String("reason", result.Error), logger.Int("records", result.RecordCount))
	}

	return Outcome{Result: result, Errors: runErrors}
}

// fetch retrieves one page, retrying transient failures.
func (c *Coordinator) fetch(ctx context.Context, target scraper.Target, url string, log logger.Logger) (*fetcher.Page, error) {
	cfg := c.opts.Retry
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		log.Warn("Retrying page fetch",
			logger.String("url", url),
			logger.Int("attempt", attempt),
			logger.Duration("wait", wait),
			logger.Error(err),
		)
	}

	req := fetcher.Request{
		URL:               url,
		Mode:              target.FetchMode,
		ReadinessSelector: target.ReadinessSelector,
	}

	var page *fetcher.Page
	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		var err error
		page, err = c.fetcher.Fetch(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// sourceError explains why a source stopped early. A limiter refuses to
// wait past the deadline before the context itself expires, so a nil
// ctx.Err() also means the budget ran out.
func (c *Coordinator) sourceError(ctx context.Context, cause error) error {
	if ctx.Err() == nil || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("source timeout of %s exceeded: %w", c.opts.SourceTimeout, cause)
	}
	return fmt.Errorf("source abandoned: %w", cause)
}

// abandoned is the outcome of a source that never started.
func abandoned(target scraper.Target, err error) Outcome {
	msg := fmt.Sprintf("source abandoned: %v", err)
	return Outcome{
		Result: SourceResult{
			Key:        target.Key(),
			Name:       target.SourceName,
			Department: target.DepartmentName,
			Pages:      len(target.Pages),
			Error:      msg,
		},
		Errors: []RunError{{Source: target.Key(), Message: msg}},
	}
}

// newLimiter allows one event per interval. The first event is immediate.
func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
