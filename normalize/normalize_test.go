package normalize

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/coursefed/course"
)

func fixedClock(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

// TestNormalize_ComputingScience verifies the canonical mapping of a typical
// listing. The fee is above the 35000 scholarship threshold, so the flag is
// set.
func TestNormalize_ComputingScience(t *testing.T) {
	n := New(nil, fixedClock(testNow))

	c := n.Normalize(course.Fragment{
		Title:     "Computing Science",
		FeesText:  "£35,900 per year",
		Duration:  "12 months",
		SourceURL: "https://www.ed.ac.uk/pg",
	}, Context{InstitutionName: "University of Edinburgh"})

	assert.Equal(t, "MSc Computing Science", c.Title)
	assert.Equal(t, 35900, c.Fees)
	assert.Equal(t, 12, c.DurationMonths)
	assert.Equal(t, "12 months", c.Duration)
	assert.True(t, c.ScholarshipAvailable)
	assert.Equal(t, "GBP", c.Currency)
	assert.Equal(t, "Edinburgh, Scotland", c.Location)
	assert.True(t, c.IsActive)
	assert.Equal(t, "Course description not available", c.Description)
	assert.Equal(t, "https://www.ed.ac.uk/pg", c.SourceURL)
	assert.Equal(t, testNow, c.LastScrapedAt)
	assert.Equal(t, "Department of Computer Science", c.DepartmentName)
	assert.Equal(t, "MSc", c.Category)
	assert.Equal(t, []string{}, c.Modules)
	assert.Nil(t, c.StartDates)
	assert.Nil(t, c.Accreditation)
	assert.Equal(t, "Graduate-level positions in technology and research", c.CareerProspects)
	require.NotNil(t, c.ApplicationDeadline)
	assert.Equal(t, "2027-07-31", *c.ApplicationDeadline)
	require.NoError(t, Check(c))
}

func TestTitle(t *testing.T) {
	n := New(nil)

	tests := map[string]string{
		"  Computing\n Science ":        "MSc Computing Science",
		"MSc AI":                        "MSc Artificial Intelligence",
		"Masters in Comp Sci":           "Masters in Computer Science",
		"ML":                            "MSc Machine Learning",
		"Master of Science in Robotics": "Master of Science in Robotics",
		"Advanced CS":                   "MSc Advanced Computer Science",
		"":                              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, n.Title(in), in)
	}
}

func TestDescription(t *testing.T) {
	n := New(nil)

	assert.Equal(t, "Course description not available", n.Description("  "))
	assert.Equal(t, "Two lines of text", n.Description("Two\nlines   of text"))

	long := strings.Repeat("é", 600)
	got := n.Description(long)
	assert.Equal(t, 500, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "..."))

	exact := strings.Repeat("a", 500)
	assert.Equal(t, exact, n.Description(exact))
}

// TestDurationMonths_AlwaysInRange verifies unparseable or implausible
// durations fall back to twelve months.
func TestDurationMonths_AlwaysInRange(t *testing.T) {
	n := New(nil)

	tests := []struct {
		raw  string
		want int
	}{
		{"flexible", 12},
		{"", 12},
		{"12 months", 12},
		{"18 months full-time", 18},
		{"2 years", 24},
		{"1.5 years", 18},
		{"1 year full-time", 12},
		{"full-time", 12},
		{"part-time", 24},
		{"1 month", 12},
		{"10 years", 12},
		{"6 Months", 6},
	}
	for _, tt := range tests {
		got := n.DurationMonths(tt.raw, n.Duration(tt.raw))
		assert.Equal(t, tt.want, got, tt.raw)
		assert.True(t, course.ValidDuration(got))
	}
}

func TestDuration(t *testing.T) {
	n := New(nil)

	assert.Equal(t, "12 months", n.Duration(""))
	assert.Equal(t, "24 months", n.Duration("2 Years"))
	assert.Equal(t, "24 months", n.Duration("part-time"))
	assert.Equal(t, "flexible", n.Duration(" flexible "))
}

func TestFees(t *testing.T) {
	n := New(nil)

	assert.Equal(t, 35900, n.Fees(35900, ""))
	assert.Equal(t, 0, n.Fees(150000, ""), "never clamped")
	assert.Equal(t, 0, n.Fees(5000, ""))
	assert.Equal(t, 27000, n.Fees(0, "27,000"))
	assert.Equal(t, 31200, n.Fees(0, "Home students: £31,200"))
	assert.Equal(t, 0, n.Fees(0, "TBC"))
	assert.Equal(t, 0, n.Fees(0, ""))
}

func TestLocation(t *testing.T) {
	n := New(nil)

	assert.Equal(t, "South Kensington", n.Location(" South Kensington ", "Imperial College London"))
	assert.Equal(t, "London, England", n.Location("", "Imperial College London"))
	assert.Equal(t, "United Kingdom", n.Location("", "University of Nowhere"))
}

func TestModulesAndStartDates(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, Modules([]string{"A", "B"}, "ignored"))
	assert.Equal(t, []string{"Algorithms", "Data Mining"}, Modules(nil, " Algorithms, ,Data  Mining,"))
	assert.Equal(t, []string{}, Modules(nil, ""))

	assert.Equal(t, []string{"September 2026"}, StartDates([]string{"September 2026", " "}))
	assert.Nil(t, StartDates(nil))
	assert.Nil(t, StartDates([]string{""}))
}

func TestApplicationDeadline(t *testing.T) {
	n := New(nil)

	at := func(y int, m time.Month, d int) string {
		return *n.ApplicationDeadline(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
	}
	assert.Equal(t, "2026-07-31", at(2026, time.March, 1))
	assert.Equal(t, "2026-07-31", at(2026, time.July, 31))
	assert.Equal(t, "2027-07-31", at(2026, time.August, 1))
	assert.Equal(t, "2027-07-31", at(2026, time.October, 15))
}

func TestSubjectEnrichment(t *testing.T) {
	n := New(nil, fixedClock(testNow))

	c := n.Normalize(course.Fragment{Title: "MSc AI", Fees: 40000}, Context{InstitutionName: "X"})

	assert.Equal(t, "MSc Artificial Intelligence", c.Title)
	require.NotNil(t, c.Accreditation)
	assert.Contains(t, *c.Accreditation, "IET")
	assert.Contains(t, c.CareerProspects, "AI Engineer")
	assert.Contains(t, c.ImageURL, "Artificial+Intelligence")
	assert.True(t, c.ScholarshipAvailable)
}

func TestImage_ScrapedWins(t *testing.T) {
	n := New(nil)

	assert.Equal(t, "https://x/img.png", n.Image("https://x/img.png", "MSc Robotics"))
	assert.Contains(t, n.Image("", "MSc Robotics"), "Robotics")
	assert.Contains(t, n.Image("", "MSc Quantum"), "MSc+Course")
}

func TestEntryRequirements(t *testing.T) {
	n := New(nil)

	assert.Equal(t, "UK 2:1 honours degree or international equivalent in relevant field", n.EntryRequirements(""))
	assert.Len(t, []rune(n.EntryRequirements(strings.Repeat("x", 400))), 300)
}

func TestTransform_CheckFailures(t *testing.T) {
	n := New(nil, fixedClock(testNow))

	_, err := n.Transform(course.Fragment{Title: "   "}, Context{})
	var te *TransformError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "missing title", te.Reason)

	assert.Error(t, Check(course.Course{Title: "MSc X", Fees: 5, DurationMonths: 12}))
	assert.Error(t, Check(course.Course{Title: "MSc X", DurationMonths: 2}))
	assert.NoError(t, Check(course.Course{Title: "MSc X", DurationMonths: 12}))

	c, err := n.Transform(course.Fragment{Title: "Data Science", Link: "https://u/ds"}, Context{})
	require.NoError(t, err)
	assert.Equal(t, "https://u/ds", c.SourceURL)
}
