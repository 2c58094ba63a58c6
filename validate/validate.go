// Package validate decides whether an extracted fragment is a genuine
// course listing or navigation noise.
package validate

import (
	"strings"
	"unicode/utf8"

	"github.com/pevans/coursefed/course"
	"github.com/pevans/coursefed/heuristics"
)

// Validator classifies fragments using keyword vocabularies.
type Validator struct {
	tables *heuristics.Tables
}

// New creates a Validator. A nil tables uses the embedded defaults.
func New(tables *heuristics.Tables) *Validator {
	if tables == nil {
		tables = heuristics.Default()
	}
	return &Validator{tables: tables}
}

// IsCourseTitle applies the keyword heuristic: titles with exclusion
// vocabulary are rejected even when they also carry inclusion vocabulary.
func (v *Validator) IsCourseTitle(title string) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return false
	}
	if v.tables.Excluded(title) {
		return false
	}
	return v.tables.Included(title)
}

// IsCandidate reports whether f should be normalized and stored.
func (v *Validator) IsCandidate(f course.Fragment) bool {
	title := strings.TrimSpace(f.Title)
	if utf8.RuneCountInString(title) < v.tables.Validator.MinTitleLength {
		return false
	}
	return v.IsCourseTitle(title)
}

// Filter returns the candidates in fragments, in order, and the number
// rejected.
func (v *Validator) Filter(fragments []course.Fragment) ([]course.Fragment, int) {
	kept := make([]course.Fragment, 0, len(fragments))
	for _, f := range fragments {
		if v.IsCandidate(f) {
			kept = append(kept, f)
		}
	}
	return kept, len(fragments) - len(kept)
}
