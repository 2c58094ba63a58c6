// Package course defines the raw fragment scraped from a listing page and
// the canonical course record it is normalized into.
package course

import "time"

// Currency is the only currency courses are priced in.
const Currency = "GBP"

// Fee bounds. A fee outside [MinFee, MaxFee] is recorded as FeeUnknown.
const (
	MinFee     = 10000
	MaxFee     = 100000
	FeeUnknown = 0
)

// Duration bounds in months.
const (
	MinDurationMonths     = 3
	MaxDurationMonths     = 60
	DefaultDurationMonths = 12
)

// ValidFee reports whether fee is within the plausible tuition range.
func ValidFee(fee int) bool {
	return fee >= MinFee && fee <= MaxFee
}

// ValidDuration reports whether months is within the accepted range.
func ValidDuration(months int) bool {
	return months >= MinDurationMonths && months <= MaxDurationMonths
}

// Fragment is what the extractor found for one candidate element. Only
// Title is required; every other value is optional and may be empty.
type Fragment struct {
	Title        string
	Description  string
	Duration     string
	FeesText     string
	Fees         int
	Requirements string
	// Modules holds list items when the page used a list. ModulesText holds
	// free text otherwise.
	Modules     []string
	ModulesText string
	StartDates  []string
	Deadline    string
	Link        string
	Image       string
	Location    string
	SourceURL   string
	ScrapedAt   time.Time
}

// Course is the canonical record persisted for every accepted fragment.
type Course struct {
	Title                string    `json:"title"`
	Description          string    `json:"description"`
	Duration             string    `json:"duration"`
	DurationMonths       int       `json:"duration_months"`
	Fees                 int       `json:"fees"`
	Currency             string    `json:"currency"`
	Location             string    `json:"location"`
	EntryRequirements    string    `json:"entry_requirements"`
	Modules              []string  `json:"modules"`
	AssessmentMethods    string    `json:"assessment_methods"`
	CareerProspects      string    `json:"career_prospects"`
	StartDates           []string  `json:"start_dates"`
	ApplicationDeadline  *string   `json:"application_deadline"`
	LanguageRequirements string    `json:"language_requirements"`
	ScholarshipAvailable bool      `json:"scholarship_available"`
	Accreditation        *string   `json:"accreditation"`
	ImageURL             string    `json:"image_url"`
	SourceURL            string    `json:"source_url"`
	IsActive             bool      `json:"is_active"`
	LastScrapedAt        time.Time `json:"last_scraped_at"`

	InstitutionName string `json:"institution_name"`
	DepartmentName  string `json:"department_name"`
	Category        string `json:"category"`
}
