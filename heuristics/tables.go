// Package heuristics holds the keyword vocabularies and subject tables used
// to classify and enrich scraped course fragments. The tables are versioned
// YAML data, embedded in the binary and replaceable at runtime.
package heuristics

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed data/tables.yaml
var defaultTables []byte

// ErrInvalidTables is wrapped by every table validation failure.
var ErrInvalidTables = errors.New("invalid heuristic tables")

// Tables is the full set of heuristic data.
type Tables struct {
	Version   int               `yaml:"version"`
	Validator ValidatorTables   `yaml:"validator"`
	Title     TitleTables       `yaml:"title"`
	Durations []DurationPhrase  `yaml:"durations"`
	Subjects  []Subject         `yaml:"subjects"`
	Images    []Image           `yaml:"images"`
	Locations map[string]string `yaml:"locations"`
	Defaults  Defaults          `yaml:"defaults"`
	Policy    Policy            `yaml:"policy"`

	exclude  *Matcher
	include  *Matcher
	subjects []*Matcher
	images   []*Matcher
	abbrevs  []*regexp.Regexp
}

// ValidatorTables are the course-title vocabularies.
type ValidatorTables struct {
	MinTitleLength int      `yaml:"min_title_length"`
	Exclude        []string `yaml:"exclude"`
	Include        []string `yaml:"include"`
}

// TitleTables control title normalization.
type TitleTables struct {
	LevelPrefix   string         `yaml:"level_prefix"`
	LevelMarkers  []string       `yaml:"level_markers"`
	Abbreviations []Abbreviation `yaml:"abbreviations"`
}

// Abbreviation expands a short form into a subject name.
type Abbreviation struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// DurationPhrase maps a known duration phrasing to a standard text.
type DurationPhrase struct {
	Phrase string `yaml:"phrase"`
	Text   string `yaml:"text"`
}

// Subject holds the outcomes associated with a subject keyword.
type Subject struct {
	Keyword         string `yaml:"keyword"`
	CareerProspects string `yaml:"career_prospects"`
	Accreditation   string `yaml:"accreditation"`
}

// Image maps a subject keyword to an illustration URL.
type Image struct {
	Keyword string `yaml:"keyword"`
	URL     string `yaml:"url"`
}

// Defaults are substituted when a fragment lacks a value.
type Defaults struct {
	Description          string `yaml:"description"`
	Duration             string `yaml:"duration"`
	CareerProspects      string `yaml:"career_prospects"`
	Location             string `yaml:"location"`
	Country              string `yaml:"country"`
	EntryRequirements    string `yaml:"entry_requirements"`
	LanguageRequirements string `yaml:"language_requirements"`
	AssessmentMethods    string `yaml:"assessment_methods"`
	Image                string `yaml:"image"`
	Department           string `yaml:"department"`
	Category             string `yaml:"category"`
}

// Policy holds numeric rules.
type Policy struct {
	ScholarshipFeeThreshold int `yaml:"scholarship_fee_threshold"`
	DeadlineMonth           int `yaml:"deadline_month"`
	DeadlineDay             int `yaml:"deadline_day"`
	DescriptionMaxLength    int `yaml:"description_max_length"`
	RequirementsMaxLength   int `yaml:"requirements_max_length"`
}

var (
	defaultOnce sync.Once
	defaultTbl  *Tables
)

// Default returns the embedded tables. It panics if the embedded data is
// invalid, which a test guards against.
func Default() *Tables {
	defaultOnce.Do(func() {
		t, err := Parse(defaultTables)
		if err != nil {
			panic(fmt.Sprintf("embedded heuristic tables: %v", err))
		}
		defaultTbl = t
	})
	return defaultTbl
}

// LoadFile reads tables from a YAML file.
func LoadFile(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read heuristic tables: %w", err)
	}
	return Parse(data)
}

// Parse decodes, validates and compiles tables from YAML.
func Parse(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse heuristic tables: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	t.compile()
	return &t, nil
}

func (t *Tables) validate() error {
	switch {
	case t.Version <= 0:
		return fmt.Errorf("%w: version must be positive", ErrInvalidTables)
	case len(t.Validator.Include) == 0:
		return fmt.Errorf("%w: include vocabulary is empty", ErrInvalidTables)
	case t.Title.LevelPrefix == "":
		return fmt.Errorf("%w: title level prefix is empty", ErrInvalidTables)
	case t.Policy.DeadlineMonth < 1 || t.Policy.DeadlineMonth > 12:
		return fmt.Errorf("%w: deadline month %d out of range", ErrInvalidTables, t.Policy.DeadlineMonth)
	case t.Policy.DeadlineDay < 1 || t.Policy.DeadlineDay > 31:
		return fmt.Errorf("%w: deadline day %d out of range", ErrInvalidTables, t.Policy.DeadlineDay)
	case t.Policy.DescriptionMaxLength < 4:
		return fmt.Errorf("%w: description max length too small", ErrInvalidTables)
	}
	for _, s := range t.Subjects {
		if s.Keyword == "" {
			return fmt.Errorf("%w: subject with empty keyword", ErrInvalidTables)
		}
	}
	for _, a := range t.Title.Abbreviations {
		if a.From == "" {
			return fmt.Errorf("%w: abbreviation with empty form", ErrInvalidTables)
		}
	}
	return nil
}

func (t *Tables) compile() {
	t.exclude = NewMatcher(t.Validator.Exclude...)
	t.include = NewMatcher(t.Validator.Include...)
	for _, s := range t.Subjects {
		t.subjects = append(t.subjects, NewMatcher(s.Keyword))
	}
	for _, img := range t.Images {
		t.images = append(t.images, NewMatcher(img.Keyword))
	}
	for _, a := range t.Title.Abbreviations {
		t.abbrevs = append(t.abbrevs, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(a.From)+`\b`))
	}
}

// Excluded reports whether title contains navigation or section vocabulary.
func (t *Tables) Excluded(title string) bool {
	return t.exclude.Match(title)
}

// Included reports whether title contains academic programme vocabulary.
func (t *Tables) Included(title string) bool {
	return t.include.Match(title)
}

// Subject returns the first subject whose keyword appears in title.
func (t *Tables) Subject(title string) (Subject, bool) {
	for i, m := range t.subjects {
		if m.Match(title) {
			return t.Subjects[i], true
		}
	}
	return Subject{}, false
}

// Image returns the illustration for title, or the default image.
func (t *Tables) Image(title string) string {
	for i, m := range t.images {
		if m.Match(title) {
			return t.Images[i].URL
		}
	}
	return t.Defaults.Image
}

// Location returns the city of a known institution.
func (t *Tables) Location(institution string) (string, bool) {
	loc, ok := t.Locations[institution]
	return loc, ok
}

// Duration maps a known phrasing, compared case-insensitively, to its
// standard text.
func (t *Tables) Duration(phrase string) (string, bool) {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	for _, d := range t.Durations {
		if strings.ToLower(d.Phrase) == phrase {
			return d.Text, true
		}
	}
	return "", false
}

// HasLevelMarker reports whether title already names its academic level.
func (t *Tables) HasLevelMarker(title string) bool {
	lower := strings.ToLower(title)
	for _, m := range t.Title.LevelMarkers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// ExpandAbbreviations replaces whole-word short forms in title, in table
// order.
func (t *Tables) ExpandAbbreviations(title string) string {
	for i, re := range t.abbrevs {
		title = re.ReplaceAllLiteralString(title, t.Title.Abbreviations[i].To)
	}
	return title
}
