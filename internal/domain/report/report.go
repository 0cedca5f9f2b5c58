package report

import (
	"time"
)

// Status is the overall verdict of a report. Each probe has its own vocabulary.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusError   Status = "error"

	StatusVulnerable Status = "vulnerable"
	StatusWeak       Status = "weak"
	StatusProtected  Status = "protected"
	StatusGood       Status = "good"
	StatusExcellent  Status = "excellent"
	StatusSecure     Status = "secure"
	StatusExposed    Status = "exposed"
)

// Finding is a single observation. It is never modified after it is recorded.
type Finding struct {
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Details     string   `json:"details"`
}

// Attempt records one request sent to the target. The ordered attempt list is
// the audit trail of a run.
type Attempt struct {
	Index        int               `json:"index"`
	Phase        string            `json:"phase,omitempty"`
	Parameter    string            `json:"parameter,omitempty"`
	Payload      string            `json:"payload,omitempty"`
	Path         string            `json:"path,omitempty"`
	Origin       string            `json:"origin,omitempty"`
	StatusCode   int               `json:"statusCode,omitempty"`
	ResponseTime float64           `json:"responseTime"`
	Flags        map[string]bool   `json:"flags,omitempty"`
	Meta         map[string]string `json:"meta,omitempty"`
	Note         string            `json:"note,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Flag reports whether the named flag is set.
func (a Attempt) Flag(name string) bool {
	return a.Flags[name]
}

// Report is the sole output of a probe. A Report is owned by the invoking call
// and is not safe for concurrent mutation.
type Report struct {
	TestName        string         `json:"testName"`
	Timestamp       time.Time      `json:"timestamp"`
	Target          string         `json:"targetUrl,omitempty"`
	Status          Status         `json:"status"`
	Findings        []Finding      `json:"vulnerabilities"`
	Recommendations []string       `json:"recommendations"`
	Details         map[string]any `json:"details"`
	Attempts        []Attempt      `json:"attempts,omitempty"`
	Error           string         `json:"error,omitempty"`

	final bool
}

// New creates a report in the unknown state.
func New(testName, target string, now time.Time) *Report {
	return &Report{
		TestName:        testName,
		Timestamp:       now.UTC(),
		Target:          target,
		Status:          StatusUnknown,
		Findings:        []Finding{},
		Recommendations: []string{},
		Details:         map[string]any{},
	}
}

// AddFinding appends a finding unless an identical one was already recorded.
func (r *Report) AddFinding(severity Severity, description, details string) {
	f := Finding{Severity: severity, Description: description, Details: details}
	for _, existing := range r.Findings {
		if existing == f {
			return
		}
	}
	r.Findings = append(r.Findings, f)
}

// Recommend appends recommendations in order.
func (r *Report) Recommend(recs ...string) {
	r.Recommendations = append(r.Recommendations, recs...)
}

// SetDetail stores a free-form value under key.
func (r *Report) SetDetail(key string, value any) {
	if r.Details == nil {
		r.Details = map[string]any{}
	}
	r.Details[key] = value
}

// AddAttempt appends to the audit trail.
func (r *Report) AddAttempt(a Attempt) {
	r.Attempts = append(r.Attempts, a)
}

// Level returns the aggregate level of the current findings.
func (r *Report) Level() Level {
	return Classify(r.Findings)
}

// CountSeverity returns how many findings carry the given severity.
func (r *Report) CountSeverity(severity Severity) int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == severity {
			n++
		}
	}
	return n
}

// Finalize derives the status from the findings using labels. A report is
// finalized exactly once; later calls return the level without changing anything.
func (r *Report) Finalize(labels Labels) Level {
	level := r.Level()
	if r.final {
		return level
	}
	r.Status = labels.For(level)
	r.final = true
	return level
}

// Fail marks the report as errored. Findings already recorded are kept.
func (r *Report) Fail(err error) {
	if r.final || err == nil {
		return
	}
	r.Status = StatusError
	r.Error = err.Error()
	r.final = true
}

// Final reports whether the status has been settled.
func (r *Report) Final() bool {
	return r.final
}

// AtLeast reports whether any finding is at or above the given severity.
func (r *Report) AtLeast(threshold Severity) bool {
	if threshold.Rank() == 0 {
		return false
	}
	for _, f := range r.Findings {
		if f.Severity.Rank() >= threshold.Rank() {
			return true
		}
	}
	return false
}
