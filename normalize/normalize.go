// Package normalize maps validated fragments onto the canonical course
// record.
package normalize

import (
	"fmt"
	"time"

	"github.com/pevans/coursefed/course"
	"github.com/pevans/coursefed/heuristics"
)

// Context carries what a fragment cannot know about itself.
type Context struct {
	InstitutionName string
	DepartmentName  string
	Category        string
}

// TransformError reports a normalized record that failed the post-transform
// sanity check. The record is dropped.
type TransformError struct {
	Title  string
	Reason string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("invalid course %q: %s", e.Title, e.Reason)
}

// Normalizer applies the field rules.
type Normalizer struct {
	tables *heuristics.Tables
	now    func() time.Time
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock replaces the wall clock used for timestamps and the deadline
// rule.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// New creates a Normalizer. A nil tables uses the embedded defaults.
func New(tables *heuristics.Tables, opts ...Option) *Normalizer {
	if tables == nil {
		tables = heuristics.Default()
	}
	n := &Normalizer{tables: tables, now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize builds the canonical record for f. It never fails; every rule
// has a defined fallback.
func (n *Normalizer) Normalize(f course.Fragment, ctx Context) course.Course {
	now := n.now()
	title := n.Title(f.Title)
	duration := n.Duration(f.Duration)
	fees := n.Fees(f.Fees, f.FeesText)
	subject, matched := n.tables.Subject(title)

	c := course.Course{
		Title:                title,
		Description:          n.Description(f.Description),
		Duration:             duration,
		DurationMonths:       n.DurationMonths(f.Duration, duration),
		Fees:                 fees,
		Currency:             course.Currency,
		Location:             n.Location(f.Location, ctx.InstitutionName),
		EntryRequirements:    n.EntryRequirements(f.Requirements),
		Modules:              Modules(f.Modules, f.ModulesText),
		AssessmentMethods:    n.tables.Defaults.AssessmentMethods,
		CareerProspects:      n.tables.Defaults.CareerProspects,
		StartDates:           StartDates(f.StartDates),
		ApplicationDeadline:  n.ApplicationDeadline(now),
		LanguageRequirements: n.tables.Defaults.LanguageRequirements,
		ScholarshipAvailable: n.ScholarshipAvailable(fees),
		ImageURL:             n.Image(f.Image, title),
		SourceURL:            firstNonEmpty(f.Link, f.SourceURL),
		IsActive:             true,
		LastScrapedAt:        f.ScrapedAt,
		InstitutionName:      ctx.InstitutionName,
		DepartmentName:       firstNonEmpty(ctx.DepartmentName, n.tables.Defaults.Department),
		Category:             firstNonEmpty(ctx.Category, n.tables.Defaults.Category),
	}
	if matched {
		c.CareerProspects = subject.CareerProspects
		if subject.Accreditation != "" {
			accreditation := subject.Accreditation
			c.Accreditation = &accreditation
		}
	}
	if c.LastScrapedAt.IsZero() {
		c.LastScrapedAt = now
	}
	return c
}

// Transform normalizes f and runs Check on the result.
func (n *Normalizer) Transform(f course.Fragment, ctx Context) (course.Course, error) {
	c := n.Normalize(f, ctx)
	if err := Check(c); err != nil {
		return course.Course{}, err
	}
	return c, nil
}

// Check rejects records whose bounded fields escaped their bounds.
func Check(c course.Course) error {
	switch {
	case c.Title == "":
		return &TransformError{Title: c.Title, Reason: "missing title"}
	case c.Fees != course.FeeUnknown && !course.ValidFee(c.Fees):
		return &TransformError{Title: c.Title, Reason: fmt.Sprintf("fees %d out of range", c.Fees)}
	case !course.ValidDuration(c.DurationMonths):
		return &TransformError{Title: c.Title, Reason: fmt.Sprintf("duration %d months out of range", c.DurationMonths)}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
