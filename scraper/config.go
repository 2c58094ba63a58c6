package scraper

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
)

// FetchMode selects how a page is retrieved before extraction.
type FetchMode string

const (
	// FetchStatic retrieves server-rendered markup with a single HTTP GET.
	FetchStatic FetchMode = "static"
	// FetchDynamic renders the page in a headless browser first.
	FetchDynamic FetchMode = "dynamic"
	// FetchFeed reads an RSS or Atom course listing.
	FetchFeed FetchMode = "feed"
)

// Valid reports whether m is one of the known fetch modes.
func (m FetchMode) Valid() bool {
	switch m {
	case FetchStatic, FetchDynamic, FetchFeed:
		return true
	}
	return false
}

// Field names a semantic value extracted from a course listing.
type Field string

const (
	FieldContainer    Field = "container"
	FieldTitle        Field = "title"
	FieldDescription  Field = "description"
	FieldDuration     Field = "duration"
	FieldFees         Field = "fees"
	FieldRequirements Field = "requirements"
	FieldModules      Field = "modules"
	FieldStartDates   Field = "startDates"
	FieldDeadline     Field = "deadline"
	FieldLink         Field = "link"
	FieldImage        Field = "image"
	FieldLocation     Field = "location"
)

// Fields lists every known field in extraction order.
var Fields = []Field{
	FieldContainer, FieldTitle, FieldDescription, FieldDuration, FieldFees,
	FieldRequirements, FieldModules, FieldStartDates, FieldDeadline,
	FieldLink, FieldImage, FieldLocation,
}

// FieldSelectors maps a field to the CSS selectors tried, in order, to
// resolve it.
type FieldSelectors map[Field][]string

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid source configuration")

// SourceConfig describes one institution and the department listings that
// are scraped from its website.
type SourceConfig struct {
	ID          string             `json:"id" yaml:"id"`
	Name        string             `json:"name" yaml:"name"`
	BaseURL     string             `json:"base_url" yaml:"base_url"`
	Departments []DepartmentConfig `json:"departments" yaml:"departments"`
}

// DepartmentConfig is a sub-source: the listing pages of one department
// together with the selectors that work on them.
type DepartmentConfig struct {
	ID                string         `json:"id" yaml:"id"`
	Name              string         `json:"name" yaml:"name"`
	Pages             []string       `json:"pages" yaml:"pages"`
	FetchMode         FetchMode      `json:"fetch_mode" yaml:"fetch_mode"`
	Selectors         FieldSelectors `json:"selectors" yaml:"selectors"`
	FallbackSelectors FieldSelectors `json:"fallback_selectors,omitempty" yaml:"fallback_selectors,omitempty"`
	ReadinessSelector string         `json:"readiness_selector,omitempty" yaml:"readiness_selector,omitempty"`
}

// Target is a flattened source descriptor: one institution plus one of its
// departments. It is what the fetcher and extractor work from.
type Target struct {
	SourceID          string
	SourceName        string
	BaseURL           string
	DepartmentID      string
	DepartmentName    string
	Pages             []string
	FetchMode         FetchMode
	Selectors         FieldSelectors
	FallbackSelectors FieldSelectors
	ReadinessSelector string
}

// Key identifies the target in run reports, e.g. "university-of-bristol/computer-science".
func (t Target) Key() string {
	return t.SourceID + "/" + t.DepartmentID
}

// Cascade returns the effective selector list for field: primary selectors,
// then fallback selectors, then the generic table, with duplicates removed.
// Feed targets also get FeedSelectors ahead of the generic table.
func (t Target) Cascade(field Field) []string {
	tiers := [][]string{t.Selectors[field], t.FallbackSelectors[field]}
	if t.FetchMode == FetchFeed {
		tiers = append(tiers, FeedSelectors[field])
	}
	tiers = append(tiers, GenericSelectors[field])

	var out []string
	seen := map[string]bool{}
	for _, list := range tiers {
		for _, sel := range list {
			sel = strings.TrimSpace(sel)
			if sel == "" || seen[sel] {
				continue
			}
			seen[sel] = true
			out = append(out, sel)
		}
	}
	return out
}

// Targets flattens the source into one target per department, in
// declaration order.
func (s SourceConfig) Targets() []Target {
	targets := make([]Target, 0, len(s.Departments))
	for _, d := range s.Departments {
		targets = append(targets, s.target(d))
	}
	return targets
}

// Target returns the target for the department with the given id.
func (s SourceConfig) Target(departmentID string) (Target, bool) {
	for _, d := range s.Departments {
		if d.ID == departmentID {
			return s.target(d), true
		}
	}
	return Target{}, false
}

func (s SourceConfig) target(d DepartmentConfig) Target {
	mode := d.FetchMode
	if mode == "" {
		mode = FetchStatic
	}
	return Target{
		SourceID:          s.ID,
		SourceName:        s.Name,
		BaseURL:           strings.TrimRight(s.BaseURL, "/"),
		DepartmentID:      d.ID,
		DepartmentName:    d.Name,
		Pages:             d.Pages,
		FetchMode:         mode,
		Selectors:         d.Selectors,
		FallbackSelectors: d.FallbackSelectors,
		ReadinessSelector: d.ReadinessSelector,
	}
}

// Validate checks that the source can be scraped: identifiers and base URL
// are present, every department has pages and a known fetch mode, and every
// selector parses.
func (s SourceConfig) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: id is empty", ErrInvalidConfig)
	}
	if s.Name == "" {
		return fmt.Errorf("%w: %s: name is empty", ErrInvalidConfig, s.ID)
	}
	if !strings.HasPrefix(s.BaseURL, "http://") && !strings.HasPrefix(s.BaseURL, "https://") {
		return fmt.Errorf("%w: %s: base_url must be an http(s) URL", ErrInvalidConfig, s.ID)
	}
	if len(s.Departments) == 0 {
		return fmt.Errorf("%w: %s: no departments", ErrInvalidConfig, s.ID)
	}

	seen := map[string]bool{}
	for _, d := range s.Departments {
		if d.ID == "" {
			return fmt.Errorf("%w: %s: department id is empty", ErrInvalidConfig, s.ID)
		}
		if seen[d.ID] {
			return fmt.Errorf("%w: %s: duplicate department %q", ErrInvalidConfig, s.ID, d.ID)
		}
		seen[d.ID] = true

		if len(d.Pages) == 0 {
			return fmt.Errorf("%w: %s/%s: no pages", ErrInvalidConfig, s.ID, d.ID)
		}
		if d.FetchMode != "" && !d.FetchMode.Valid() {
			return fmt.Errorf("%w: %s/%s: unknown fetch mode %q", ErrInvalidConfig, s.ID, d.ID, d.FetchMode)
		}
		if d.FetchMode != FetchFeed && len(d.Selectors[FieldContainer]) == 0 && len(d.Selectors[FieldTitle]) == 0 {
			return fmt.Errorf("%w: %s/%s: needs container or title selectors", ErrInvalidConfig, s.ID, d.ID)
		}
		for _, set := range []FieldSelectors{d.Selectors, d.FallbackSelectors} {
			if err := validateSelectors(set); err != nil {
				return fmt.Errorf("%w: %s/%s: %v", ErrInvalidConfig, s.ID, d.ID, err)
			}
		}
		if d.ReadinessSelector != "" {
			if _, err := cascadia.ParseGroup(d.ReadinessSelector); err != nil {
				return fmt.Errorf("%w: %s/%s: readiness selector: %v", ErrInvalidConfig, s.ID, d.ID, err)
			}
		}
	}

	return nil
}

func validateSelectors(set FieldSelectors) error {
	for field, list := range set {
		for _, sel := range list {
			if _, err := cascadia.ParseGroup(sel); err != nil {
				return fmt.Errorf("field %s: selector %q: %w", field, sel, err)
			}
		}
	}
	return nil
}
