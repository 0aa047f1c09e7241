// Package model defines the core domain models used throughout the application.
package model

import (
	"fmt"
	"strings"
)

// MatchResult is the chart-level agreement between the human and AI code sets.
type MatchResult string

// Chart-level match results.
const (
	CompleteMatch MatchResult = "complete_match"
	PartialMatch  MatchResult = "partial_match"
	NoMatch       MatchResult = "no_match"
)

// Validate checks that the match result is a known value.
func (m MatchResult) Validate() error {
	switch m {
	case CompleteMatch, PartialMatch, NoMatch:
		return nil
	default:
		return fmt.Errorf("invalid match result: %q", string(m))
	}
}

// Case is one patient chart: the codes assigned by the human coder, the
// codes assigned by the AI system, and the report text both worked from.
// A Case is immutable once loaded; review stages read it but never write it.
type Case struct {
	PatientID       string      `json:"patient_id"`
	SutherlandCodes []string    `json:"sutherland_codes"`
	AICodes         []string    `json:"ai_codes"`
	ReportText      string      `json:"report_text"`
	MatchResult     MatchResult `json:"match_result,omitempty"`

	// Derived code partition, filled in by Partition at load time.
	MatchedCodes   []string `json:"matched_codes,omitempty"`
	SutherlandOnly []string `json:"sutherland_only,omitempty"`
	AIOnly         []string `json:"ai_only,omitempty"`
}

// Validate checks that the case carries the fields every stage depends on.
func (c *Case) Validate() error {
	if c.PatientID == "" {
		return fmt.Errorf("case is missing a patient identifier")
	}
	if c.MatchResult != "" {
		if err := c.MatchResult.Validate(); err != nil {
			return fmt.Errorf("case %s: %w", c.PatientID, err)
		}
	}
	return nil
}

// Partition splits the two code sets into matched, human-only, and AI-only
// groups, and derives the chart-level match result when the dataset did not
// supply one. Comparison uses normalized codes; the partition preserves the
// codes as written.
func (c *Case) Partition() {
	aiSet := make(map[string]bool, len(c.AICodes))
	for _, code := range c.AICodes {
		aiSet[NormalizeCode(code)] = true
	}
	sutherlandSet := make(map[string]bool, len(c.SutherlandCodes))
	for _, code := range c.SutherlandCodes {
		sutherlandSet[NormalizeCode(code)] = true
	}

	c.MatchedCodes = nil
	c.SutherlandOnly = nil
	c.AIOnly = nil

	for _, code := range c.SutherlandCodes {
		if aiSet[NormalizeCode(code)] {
			c.MatchedCodes = append(c.MatchedCodes, code)
		} else {
			c.SutherlandOnly = append(c.SutherlandOnly, code)
		}
	}
	for _, code := range c.AICodes {
		if !sutherlandSet[NormalizeCode(code)] {
			c.AIOnly = append(c.AIOnly, code)
		}
	}

	if c.MatchResult == "" {
		c.MatchResult = c.deriveMatchResult()
	}
}

func (c *Case) deriveMatchResult() MatchResult {
	switch {
	case len(c.SutherlandOnly) == 0 && len(c.AIOnly) == 0:
		return CompleteMatch
	case len(c.MatchedCodes) > 0:
		return PartialMatch
	default:
		return NoMatch
	}
}

// DiscrepantCodes returns the codes that appear on only one side of the
// chart, which is the working set for the classification stage.
func (c *Case) DiscrepantCodes() []string {
	codes := make([]string, 0, len(c.SutherlandOnly)+len(c.AIOnly))
	codes = append(codes, c.SutherlandOnly...)
	codes = append(codes, c.AIOnly...)
	return codes
}

// NormalizeCode canonicalizes a diagnosis code for comparison: whitespace
// trimmed, uppercased, decimal point removed. Z98.890 and Z98890 compare
// equal; ICD-10 codes stay unique without the dot.
func NormalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.ReplaceAll(code, ".", "")
}
