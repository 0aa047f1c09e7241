package model

import "fmt"

// AccuracyScore is the case-level accuracy pair produced by a review stage.
// Both scores lie in [0, 1].
type AccuracyScore struct {
	SutherlandScore float64 `json:"sutherland_score"`
	AIScore         float64 `json:"ai_score"`
}

// Validate checks that both scores are within range.
func (s AccuracyScore) Validate() error {
	if s.SutherlandScore < 0 || s.SutherlandScore > 1 {
		return fmt.Errorf("sutherland_score %v outside [0,1]", s.SutherlandScore)
	}
	if s.AIScore < 0 || s.AIScore > 1 {
		return fmt.Errorf("ai_score %v outside [0,1]", s.AIScore)
	}
	return nil
}

// MatchPotential is the no-match reviewer's judgment of whether a chart
// could be upgraded to a partial or complete match on appeal.
type MatchPotential struct {
	CouldBePartialMatch  bool   `json:"could_be_partial_match"`
	CouldBeCompleteMatch bool   `json:"could_be_complete_match"`
	Reasoning            string `json:"reasoning"`
}

// CaseVerdict is one review stage's adjudication of one case: the per-code
// comparisons plus case-level scores and assessment. Degraded verdicts are
// real records produced when the model output could not be recovered; they
// carry conservative defaults and preserve the raw response for audit.
type CaseVerdict struct {
	PatientID           string           `json:"patient_id"`
	Analysis            []CodeComparison `json:"analysis"`
	CodingAccuracyScore AccuracyScore    `json:"coding_accuracy_score"`
	MatchPotential      *MatchPotential  `json:"match_potential,omitempty"`
	OverallAssessment   string           `json:"overall_assessment"`
	Degraded            bool             `json:"degraded,omitempty"`
	RawResponse         string           `json:"raw_response,omitempty"`
}

// Validate checks the verdict's scores and every comparison it carries.
// Degraded verdicts validate too; their defaults are chosen to pass.
func (v *CaseVerdict) Validate() error {
	if v.PatientID == "" {
		return fmt.Errorf("verdict is missing a patient identifier")
	}
	if err := v.CodingAccuracyScore.Validate(); err != nil {
		return fmt.Errorf("verdict for %s: %w", v.PatientID, err)
	}
	for i := range v.Analysis {
		if err := v.Analysis[i].Validate(); err != nil {
			return fmt.Errorf("verdict for %s, comparison %d: %w", v.PatientID, i, err)
		}
	}
	return nil
}

// SutherlandCorrectCount returns how many comparisons found the human code
// correct.
func (v *CaseVerdict) SutherlandCorrectCount() int {
	n := 0
	for i := range v.Analysis {
		if v.Analysis[i].IsSutherlandCorrect {
			n++
		}
	}
	return n
}

// AICorrectCount returns how many comparisons found the AI code correct.
func (v *CaseVerdict) AICorrectCount() int {
	n := 0
	for i := range v.Analysis {
		if v.Analysis[i].IsAICorrect {
			n++
		}
	}
	return n
}

// ErrorRate returns the fraction of comparisons where neither side produced
// a valid code. A verdict with no comparisons has an error rate of 0.
func (v *CaseVerdict) ErrorRate() float64 {
	if len(v.Analysis) == 0 {
		return 0
	}
	n := 0
	for i := range v.Analysis {
		if v.Analysis[i].NeitherCorrect() {
			n++
		}
	}
	return float64(n) / float64(len(v.Analysis))
}
