package report

import "strings"

// Severity is the impact of a single finding. Values are upper-case on the wire.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ParseSeverity accepts any casing and reports whether the value is known.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	return sev, sev.Rank() > 0
}

// Rank orders severities for comparison. Unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

func (s Severity) String() string {
	return string(s)
}

// Level is the aggregate outcome of a finding list: the highest severity present.
type Level int

const (
	LevelClean Level = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelCritical:
		return "critical"
	case LevelHigh:
		return "high"
	case LevelMedium:
		return "medium"
	case LevelLow:
		return "low"
	default:
		return "clean"
	}
}

// Classify returns the highest severity level present in findings.
func Classify(findings []Finding) Level {
	level := LevelClean
	for _, f := range findings {
		if l := Level(f.Severity.Rank()); l > level {
			level = l
		}
	}
	return level
}

// Labels maps an aggregate level to a probe-specific status. Every probe supplies
// its own table; the vocabularies are not interchangeable across probes.
type Labels struct {
	Critical Status
	High     Status
	Medium   Status
	Low      Status
	Clean    Status
}

// FourTier builds the common table: critical, high, any other finding, none.
func FourTier(worst, next, mild, clean Status) Labels {
	return Labels{
		Critical: worst,
		High:     next,
		Medium:   mild,
		Low:      mild,
		Clean:    clean,
	}
}

// For returns the status for a level.
func (l Labels) For(level Level) Status {
	switch level {
	case LevelCritical:
		return l.Critical
	case LevelHigh:
		return l.High
	case LevelMedium:
		return l.Medium
	case LevelLow:
		return l.Low
	default:
		return l.Clean
	}
}
