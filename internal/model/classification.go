package model

import "fmt"

// Relevance labels whether a code that appears on only one side of a chart
// actually matters for the report.
type Relevance string

// Relevance values.
const (
	RelevanceImportant   Relevance = "important"
	RelevanceUnimportant Relevance = "unimportant"
)

// Validate checks that the relevance is a known value.
func (r Relevance) Validate() error {
	switch r {
	case RelevanceImportant, RelevanceUnimportant:
		return nil
	default:
		return fmt.Errorf("invalid relevance: %q", string(r))
	}
}

// CodeSource identifies which side of the chart a discrepant code came from.
type CodeSource string

// Code sources.
const (
	SourceSutherlandOnly CodeSource = "sutherland_only"
	SourceAIOnly         CodeSource = "ai_only"
)

// CodeClassification is the classification verdict for a single code that
// appears on only one side of a chart.
type CodeClassification struct {
	Code               string     `json:"code"`
	Source             CodeSource `json:"source"`
	Classification     Relevance  `json:"classification"`
	Category           string     `json:"category"`
	Reasoning          string     `json:"reasoning"`
	ClinicalImpact     string     `json:"clinical_impact"`
	RadiologyRelevance string     `json:"radiology_relevance"`
}

// Validate checks the classification's enum fields.
func (c *CodeClassification) Validate() error {
	if c.Code == "" {
		return fmt.Errorf("classification is missing a code")
	}
	if err := c.Classification.Validate(); err != nil {
		return fmt.Errorf("code %s: %w", c.Code, err)
	}
	return nil
}

// CaseClassification groups the per-code classifications for one case.
type CaseClassification struct {
	PatientID       string               `json:"patient_id"`
	Classifications []CodeClassification `json:"classifications"`
	Degraded        bool                 `json:"degraded,omitempty"`
	RawResponse     string               `json:"raw_response,omitempty"`
}

// Validate checks every classification in the set.
func (c *CaseClassification) Validate() error {
	if c.PatientID == "" {
		return fmt.Errorf("classification set is missing a patient identifier")
	}
	for i := range c.Classifications {
		if err := c.Classifications[i].Validate(); err != nil {
			return fmt.Errorf("classifications for %s: %w", c.PatientID, err)
		}
	}
	return nil
}

// ImportantCount returns how many discrepant codes were classified as
// important.
func (c *CaseClassification) ImportantCount() int {
	n := 0
	for i := range c.Classifications {
		if c.Classifications[i].Classification == RelevanceImportant {
			n++
		}
	}
	return n
}
