package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pevans/coursefed/course"
	"github.com/pevans/coursefed/extract"
)

var (
	monthsPattern = regexp.MustCompile(`(?i)(\d+)\s*months?\b`)
	yearsPattern  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*years?\b`)
	feeStrip      = strings.NewReplacer("£", "", ",", "", " ", "", "\t", "")
)

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// Title cleans whitespace, prefixes the academic level when the title does
// not name one and expands known abbreviations.
func (n *Normalizer) Title(raw string) string {
	title := clean(raw)
	if title == "" {
		return ""
	}
	if !n.tables.HasLevelMarker(title) {
		title = n.tables.Title.LevelPrefix + " " + title
	}
	return n.tables.ExpandAbbreviations(title)
}

// Description cleans raw, substituting a placeholder when empty and
// truncating with an ellipsis when too long.
func (n *Normalizer) Description(raw string) string {
	desc := clean(raw)
	if desc == "" {
		return n.tables.Defaults.Description
	}
	max := n.tables.Policy.DescriptionMaxLength
	if utf8.RuneCountInString(desc) > max {
		desc = truncate(desc, max-3) + "..."
	}
	return desc
}

// Duration maps known phrasings to a standard text.
func (n *Normalizer) Duration(raw string) string {
	d := clean(raw)
	if d == "" {
		return n.tables.Defaults.Duration
	}
	if std, ok := n.tables.Duration(d); ok {
		return std
	}
	return d
}

// DurationMonths parses a month count from the raw text, then from the
// standardized text. Anything unparsed or out of range yields the default.
func (n *Normalizer) DurationMonths(raw, standardized string) int {
	for _, text := range []string{raw, standardized} {
		if months, ok := ParseMonths(text); ok && course.ValidDuration(months) {
			return months
		}
	}
	return course.DefaultDurationMonths
}

// ParseMonths reads "N months" or "N years" from text.
func ParseMonths(text string) (int, bool) {
	if m := monthsPattern.FindStringSubmatch(text); m != nil {
		months, err := strconv.Atoi(m[1])
		return months, err == nil
	}
	if m := yearsPattern.FindStringSubmatch(text); m != nil {
		years, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		return int(math.Round(years * 12)), true
	}
	return 0, false
}

// Fees keeps an extracted amount within bounds. When nothing was extracted
// the raw text is parsed again, then coerced to a bare number. Out of range
// values become unknown, never clamped.
func (n *Normalizer) Fees(extracted int, raw string) int {
	fee := extracted
	if fee == course.FeeUnknown && raw != "" {
		fee = extract.ParseFees(raw)
		if fee == course.FeeUnknown {
			if parsed, err := strconv.Atoi(feeStrip.Replace(raw)); err == nil {
				fee = parsed
			}
		}
	}
	if !course.ValidFee(fee) {
		return course.FeeUnknown
	}
	return fee
}

// Location prefers the scraped location, then the institution's city.
func (n *Normalizer) Location(scraped, institution string) string {
	if loc := clean(scraped); loc != "" {
		return loc
	}
	if loc, ok := n.tables.Location(institution); ok {
		return loc
	}
	return n.tables.Defaults.Location
}

// EntryRequirements cleans and caps the requirements text.
func (n *Normalizer) EntryRequirements(raw string) string {
	req := clean(raw)
	if req == "" {
		return n.tables.Defaults.EntryRequirements
	}
	return truncate(req, n.tables.Policy.RequirementsMaxLength)
}

// Modules passes a list through or splits comma-separated text. The result
// is never nil.
func Modules(list []string, text string) []string {
	out := []string{}
	if len(list) > 0 {
		return append(out, list...)
	}
	for _, part := range strings.Split(text, ",") {
		if part = clean(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// StartDates returns a copy of dates, or nil when there are none.
func StartDates(dates []string) []string {
	var out []string
	for _, d := range dates {
		if d = clean(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// ApplicationDeadline returns the configured cutoff date of the current
// year, or of next year once the cutoff month has passed. The date does not
// come from the page.
func (n *Normalizer) ApplicationDeadline(now time.Time) *string {
	year := now.Year()
	if int(now.Month()) > n.tables.Policy.DeadlineMonth {
		year++
	}
	deadline := fmt.Sprintf("%04d-%02d-%02d", year, n.tables.Policy.DeadlineMonth, n.tables.Policy.DeadlineDay)
	return &deadline
}

// ScholarshipAvailable flags courses priced above the threshold.
func (n *Normalizer) ScholarshipAvailable(fees int) bool {
	return fees > n.tables.Policy.ScholarshipFeeThreshold
}

// Image prefers the scraped image, then the subject illustration.
func (n *Normalizer) Image(scraped, title string) string {
	if scraped != "" {
		return scraped
	}
	return n.tables.Image(title)
}
