package model

import "fmt"

// MatchStatus describes how a single code pairing relates the two sides of
// a chart. The status is fully determined by which sides are present: a
// lone human code is sutherland_only, a lone AI code is ai_only, and a
// pairing with both sides is either match or different_approach.
type MatchStatus string

// Code-level match statuses.
const (
	StatusMatch             MatchStatus = "match"
	StatusSutherlandOnly    MatchStatus = "sutherland_only"
	StatusAIOnly            MatchStatus = "ai_only"
	StatusDifferentApproach MatchStatus = "different_approach"
)

// Validate checks that the status is a known value.
func (s MatchStatus) Validate() error {
	switch s {
	case StatusMatch, StatusSutherlandOnly, StatusAIOnly, StatusDifferentApproach:
		return nil
	default:
		return fmt.Errorf("invalid match status: %q", string(s))
	}
}

// Severity grades the clinical impact of a coding discrepancy.
type Severity string

// Discrepancy severities.
const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityCritical Severity = "critical"
)

// Validate checks that the severity is a known value.
func (s Severity) Validate() error {
	switch s {
	case SeverityMinor, SeverityModerate, SeverityCritical:
		return nil
	default:
		return fmt.Errorf("invalid severity: %q", string(s))
	}
}

// CodeComparison is one adjudicated pairing of a human code and/or an AI
// code within a case. At least one side is always present. Correctness and
// severity are independent of the status: a different_approach pairing can
// have either, both, or neither side correct. Never mutated after creation.
type CodeComparison struct {
	SutherlandCode        *string     `json:"sutherland_code"`
	AICode                *string     `json:"ai_code"`
	Status                MatchStatus `json:"status"`
	IsSutherlandCorrect   bool        `json:"is_sutherland_correct"`
	IsAICorrect           bool        `json:"is_ai_correct"`
	Severity              Severity    `json:"severity"`
	ClinicalJustification string      `json:"clinical_justification"`
}

// Validate checks the enum fields and the null-pairing rule tying the
// status to which codes are present.
func (c *CodeComparison) Validate() error {
	if err := c.Status.Validate(); err != nil {
		return err
	}
	if err := c.Severity.Validate(); err != nil {
		return err
	}

	switch c.Status {
	case StatusSutherlandOnly:
		if c.SutherlandCode == nil || c.AICode != nil {
			return fmt.Errorf("status %s requires a sutherland code and no ai code", c.Status)
		}
	case StatusAIOnly:
		if c.AICode == nil || c.SutherlandCode != nil {
			return fmt.Errorf("status %s requires an ai code and no sutherland code", c.Status)
		}
	case StatusMatch, StatusDifferentApproach:
		if c.SutherlandCode == nil || c.AICode == nil {
			return fmt.Errorf("status %s requires codes on both sides", c.Status)
		}
	}

	if c.SutherlandCode == nil && c.AICode == nil {
		return fmt.Errorf("comparison has no code on either side")
	}
	return nil
}

// NeitherCorrect reports whether the pairing produced no valid code from
// either side.
func (c *CodeComparison) NeitherCorrect() bool {
	return !c.IsSutherlandCorrect && !c.IsAICorrect
}
