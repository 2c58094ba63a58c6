package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pevans/coursefed/course"
)

const amount = `(\d{1,3}(?:,\d{3})+|\d+)`

// Fee patterns, tried in order.
var feePatterns = []*regexp.Regexp{
	regexp.MustCompile(`£\s*` + amount + `(?:\.\d{1,2})?`),
	regexp.MustCompile(`(?i)` + amount + `\s*(?:pounds|gbp|£)`),
	regexp.MustCompile(`(?i)fees?[:\s]*£?\s*` + amount),
}

// Deadline patterns, tried in order. The first match is returned verbatim.
var deadlinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{1,2}[/\-]\d{1,2}[/\-]\d{4}`),
	regexp.MustCompile(`(?i)\d{1,2}\s+(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{4}`),
	regexp.MustCompile(`(?i)(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4}`),
}

// Month and season names must be capitalised unless a year follows, so that
// "may" in running prose is not taken for a start date.
var startDatePattern = regexp.MustCompile(
	`\b(?:(?:` + startNames + `)(?:\s+\d{4})?|(?i:` + startNames + `)\s+\d{4})\b`)

const startNames = `January|February|March|April|May|June|July|August|September|October|November|December|Autumn|Fall|Spring|Summer|Winter`

// ParseFees returns the first plausible tuition amount in text, or
// course.FeeUnknown.
func ParseFees(text string) int {
	for _, re := range feePatterns {
		if fee, ok := matchFee(re, text); ok {
			return fee
		}
	}
	return course.FeeUnknown
}

func matchFee(re *regexp.Regexp, text string) (int, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	fee, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil || !course.ValidFee(fee) {
		return 0, false
	}
	return fee, true
}

// ParseDeadline returns the first date found in text, unchanged. Text with
// no recognisable date is returned as is.
func ParseDeadline(text string) string {
	for _, re := range deadlinePatterns {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return text
}

// ParseStartDates returns every distinct month or season mention in text,
// optionally year-qualified, or nil when there are none. Mentions differing
// only in case are reported once, as first written.
func ParseStartDates(text string) []string {
	var dates []string
	seen := map[string]bool{}
	for _, m := range startDatePattern.FindAllString(text, -1) {
		m = CleanText(m)
		key := strings.ToLower(m)
		if seen[key] {
			continue
		}
		seen[key] = true
		dates = append(dates, m)
	}
	return dates
}
