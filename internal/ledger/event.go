package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Method identifies which check produced a detection.
type Method string

const (
	MethodRateLimit    Method = "rate_limit"
	MethodHeadless     Method = "headless_browser"
	MethodKnownBot     Method = "known_bot"
	MethodIPAnalysis   Method = "ip_analysis"
	MethodBehavioral   Method = "behavioral"
	MethodHoneypot     Method = "honeypot"
	MethodSQLInjection Method = "sql_injection"
	MethodCombined     Method = "combined"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// GeoInfo is the subset of origin metadata the ledger aggregates on.
type GeoInfo struct {
	Country string `json:"country,omitempty"`
	Proxy   bool   `json:"proxy,omitempty"`
	Hosting bool   `json:"hosting,omitempty"`
}

// Event is one detection, appended exactly once and never mutated.
type Event struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Method     Method         `json:"method"`
	Origin     string         `json:"origin"`
	UserAgent  string         `json:"user_agent"`
	Path       string         `json:"path"`
	HTTPMethod string         `json:"http_method"`
	Details    map[string]any `json:"details,omitempty"`
	Geo        *GeoInfo       `json:"geo,omitempty"`
	Severity   Severity       `json:"severity"`
	Blocked    bool           `json:"blocked"`
}

// severityFor derives the severity of a detection from its method.
func severityFor(m Method) Severity {
	switch m {
	case MethodCombined, MethodHeadless:
		return SeverityCritical
	case MethodRateLimit, MethodHoneypot:
		return SeverityHigh
	case MethodIPAnalysis, MethodBehavioral:
		return SeverityMedium
	}
	return SeverityLow
}

// normalize fills in the fields a caller is allowed to leave empty.
func (e *Event) normalize(now time.Time) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.Severity == "" {
		e.Severity = severityFor(e.Method)
	}
}
