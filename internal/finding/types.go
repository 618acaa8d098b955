// Package finding turns the model's raw textual responses into typed
// security findings: lenient JSON extraction, normalization, and source
// line-span recovery for quoted snippets.
package finding

import (
	"time"

	"github.com/google/uuid"
)

// Severity classifies a finding's impact.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// ParseSeverity maps a severity string to a Severity, defaulting to
// medium for anything unrecognized.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return Severity(s)
	default:
		return SeverityMedium
	}
}

// Confidence buckets the model's numeric confidence score.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ConfidenceFromScore buckets a score in [0,1]: >=0.8 high, >=0.5
// medium, else low.
func ConfidenceFromScore(score float64) Confidence {
	switch {
	case score >= 0.8:
		return ConfidenceHigh
	case score >= 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// SecurityFinding is one issue reported by the model, normalized. Built
// once and never mutated.
type SecurityFinding struct {
	ID          string
	Issue       string
	Reasoning   string
	Mitigation  string
	Severity    Severity
	Confidence  Confidence
	FilePath    string
	CodeSnippet string
	LineStart   int // 0 when unknown
	LineEnd     int
	CWEID       string
	Tags        []string
}

// NewFinding assigns a fresh id to a finding.
func NewFinding() *SecurityFinding {
	return &SecurityFinding{ID: uuid.NewString()}
}

// SecurityReview aggregates the findings of analyzing one target.
type SecurityReview struct {
	ID            string
	TargetPath    string
	Language      string
	StartedAt     time.Time
	CompletedAt   *time.Time
	FilesAnalyzed int
	Findings      []*SecurityFinding
}

// NewReview starts an in-progress review for a target.
func NewReview(targetPath, language string) *SecurityReview {
	return &SecurityReview{
		ID:         uuid.NewString(),
		TargetPath: targetPath,
		Language:   language,
		StartedAt:  time.Now().UTC(),
	}
}

// AddFinding appends one finding.
func (r *SecurityReview) AddFinding(f *SecurityFinding) {
	r.Findings = append(r.Findings, f)
}

// Complete marks the review finished. The transition is single-shot;
// later calls keep the first completion time.
func (r *SecurityReview) Complete() {
	if r.CompletedAt == nil {
		now := time.Now().UTC()
		r.CompletedAt = &now
	}
}

// CountBySeverity returns the number of findings at the given severity.
func (r *SecurityReview) CountBySeverity(s Severity) int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == s {
			n++
		}
	}
	return n
}
