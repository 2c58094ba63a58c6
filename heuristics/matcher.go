package heuristics

import (
	"regexp"
	"strings"
)

// Matcher finds keywords in text. Keywords match case-insensitively on word
// boundaries, allowing a plural suffix, so "master" matches "Masters" but
// "ai" does not match "maintenance".
type Matcher struct {
	re *regexp.Regexp
}

// NewMatcher compiles keywords into a Matcher. A Matcher with no keywords
// matches nothing.
func NewMatcher(keywords ...string) *Matcher {
	var alts []string
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		alts = append(alts, regexp.QuoteMeta(strings.ToLower(k)))
	}
	if len(alts) == 0 {
		return &Matcher{}
	}
	return &Matcher{re: regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)(?:s|es)?\b`)}
}

// Match reports whether any keyword occurs in text.
func (m *Matcher) Match(text string) bool {
	if m.re == nil {
		return false
	}
	return m.re.MatchString(text)
}
