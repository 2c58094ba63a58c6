package coursefed

import (
	"slices"
	"time"
)

// RunError is one page-level or source-level failure.
type RunError struct {
	Source  string `json:"source"`
	URL     string `json:"url,omitempty"`
	Message string `json:"message"`
}

// SourceResult describes what happened to one source during a run.
type SourceResult struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Department  string `json:"department"`
	RecordCount int    `json:"recordCount"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	DurationMs  int64  `json:"durationMs"`

	Pages       int `json:"pages"`
	PagesFailed int `json:"pagesFailed"`
	EmptyPages  int `json:"emptyPages"`
	Extracted   int `json:"extracted"`
	Rejected    int `json:"rejected"`
	Dropped     int `json:"dropped"`
	Duplicates  int `json:"duplicates"`
	Inserted    int `json:"inserted"`
	Updated     int `json:"updated"`
}

// Outcome is the result of running one source, folded into a Report.
type Outcome struct {
	Result SourceResult
	Errors []RunError
}

// Summary holds run totals.
type Summary struct {
	SourcesAttempted int `json:"sourcesAttempted"`
	Succeeded        int `json:"succeeded"`
	Failed           int `json:"failed"`
	TotalRecords     int `json:"totalRecords"`
}

// Report is the immutable result of a run. Every method returns a new value
// or a copy; nothing shares the receiver's slices.
type Report struct {
	startedAt  time.Time
	finishedAt time.Time
	sources    []SourceResult
	errors     []RunError
}

// NewReport starts an empty report.
func NewReport(startedAt time.Time) Report {
	return Report{startedAt: startedAt}
}

// With returns a report that also contains o.
func (r Report) With(o Outcome) Report {
	next := r
	next.sources = append(slices.Clip(r.sources), o.Result)
	next.errors = append(slices.Clip(r.errors), o.Errors...)
	return next
}

// Finish stamps the completion time.
func (r Report) Finish(at time.Time) Report {
	r.finishedAt = at
	return r
}

func (r Report) StartedAt() time.Time  { return r.startedAt }
func (r Report) FinishedAt() time.Time { return r.finishedAt }

// Sources returns the per-source results in run order.
func (r Report) Sources() []SourceResult {
	return slices.Clone(r.sources)
}

// Errors returns every recorded error in run order.
func (r Report) Errors() []RunError {
	return slices.Clone(r.errors)
}

// Summary computes the run totals.
func (r Report) Summary() Summary {
	s := Summary{SourcesAttempted: len(r.sources)}
	for _, src := range r.sources {
		if src.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
		s.TotalRecords += src.RecordCount
	}
	return s
}

// ExitCode is 0 if the run stored at least one record and 1 otherwise.
func (r Report) ExitCode() int {
	if r.Summary().TotalRecords > 0 {
		return 0
	}
	return 1
}
