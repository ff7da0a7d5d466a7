// Package threat classifies a domain's scan bundle into a threat category.
//
// The predictor is a deterministic weighted-rule model. It extracts features
// from the bundle, runs a fixed rule set that awards points per triggered
// factor, then derives a 0–100 score, a category, a level, a confidence and a
// plain-English assessment. Missing bundle sections lower confidence; they
// never cause an error.
package threat

import (
	"time"

	"github.com/exposechain/exposechain/internal/scan"
)

// ModelVersion identifies the rule set that produced a Report.
const ModelVersion = "1.0.0"

// Category is the primary classification of a target.
type Category string

const (
	CategoryLegitimate     Category = "legitimate"
	CategorySuspicious     Category = "suspicious"
	CategoryMalwareHosting Category = "malware_hosting"
	CategoryPhishing       Category = "phishing"
)

// Label returns the display name of the category.
func (c Category) Label() string {
	switch c {
	case CategoryLegitimate:
		return "Legitimate"
	case CategorySuspicious:
		return "Suspicious"
	case CategoryMalwareHosting:
		return "Potential Malware Hosting"
	case CategoryPhishing:
		return "Likely Phishing / Malicious"
	default:
		return string(c)
	}
}

// Level is the score-banded threat level. It is banded independently of
// Category and the two can disagree.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Severity grades a single triggered factor.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Factor is a single rule that contributed to the score.
type Factor struct {
	Rule        string   `json:"rule"`
	Description string   `json:"factor"`
	Points      float64  `json:"points"`
	Severity    Severity `json:"severity"`
}

// Report is the output of a threat analysis run.
type Report struct {
	// OverallRiskScore is the aggregate score (0–100).
	OverallRiskScore int      `json:"overall_risk_score"`
	ThreatLevel      Level    `json:"threat_level"`
	ThreatCategory   Category `json:"threat_category"`

	// Confidence is the share of availability checks the bundle satisfied.
	Confidence float64 `json:"confidence"`

	// Factors lists every rule that triggered, in rule order.
	Factors         []Factor  `json:"factors"`
	Recommendations []string  `json:"recommendations"`
	Narrative       string    `json:"narrative"`
	Features        Features  `json:"features"`
	ModelVersion    string    `json:"model_version"`
	AnalyzedAt      time.Time `json:"analyzed_at"`
}

// Analyzer produces a threat report from a scan bundle.
type Analyzer interface {
	Analyze(b *scan.Bundle) *Report
}

// levelFor maps a 0–100 score to a threat level.
func levelFor(score int) Level {
	switch {
	case score <= 20:
		return LevelLow
	case score <= 45:
		return LevelMedium
	case score <= 70:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// categoryFor maps a 0–100 score to a category when no override applies.
func categoryFor(score int) Category {
	switch {
	case score <= 20:
		return CategoryLegitimate
	case score <= 50:
		return CategorySuspicious
	case score <= 75:
		return CategoryMalwareHosting
	default:
		return CategoryPhishing
	}
}
