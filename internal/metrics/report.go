package metrics

import "github.com/chartwell-labs/second-opinion/internal/model"

// Report is the comprehensive accuracy document written for the dashboard.
// Field names and nesting are a stable contract: consumers read these keys
// directly and never have to guess at missing values, so every section is
// present even when its inputs were empty.
type Report struct {
	OriginalAccuracy   OriginalAccuracy       `json:"original_accuracy"`
	CodeImportance     CodeImportance         `json:"code_importance_analysis"`
	PostAIReview       MatchDistribution      `json:"post_ai_review"`
	Improvements       Improvements           `json:"improvements"`
	ManualCoding       ManualCodingAnalysis   `json:"manual_coding_analysis"`
	CorrectedAccuracy  CorrectedCodeAccuracy  `json:"corrected_code_accuracy"`
	DetailedChanges    []MatchChange          `json:"detailed_changes"`
	PreReviewAccuracy  PreReviewCodeAccuracy  `json:"pre_review_code_accuracy"`
	PostReviewAccuracy PostReviewCodeAccuracy `json:"post_review_code_accuracy"`
	Unified            UnifiedPostReview      `json:"unified_post_review_accuracy"`
	NoMatchAnalysis    NoMatchAnalysis        `json:"no_match_analysis"`
	DegradedCases      DegradedCounts         `json:"degraded_cases"`
}

// OriginalAccuracy is the baseline accuracy of the dataset before any
// review stage ran.
type OriginalAccuracy struct {
	ChartLevel ChartLevel `json:"chart_level"`
	CodeLevel  CodeLevel  `json:"code_level"`
}

// ChartLevel is the chart-level match distribution across the dataset.
type ChartLevel struct {
	CompleteMatchRate float64 `json:"complete_match_rate"`
	PartialMatchRate  float64 `json:"partial_match_rate"`
	NoMatchRate       float64 `json:"no_match_rate"`
	CompleteMatches   int     `json:"complete_matches"`
	PartialMatches    int     `json:"partial_matches"`
	NoMatches         int     `json:"no_matches"`
	TotalPatients     int     `json:"total_patients"`
}

// CodeLevel is the code-level accuracy of the AI side measured against the
// human code sets.
type CodeLevel struct {
	OverallAccuracy      float64 `json:"overall_accuracy"`
	TotalSutherlandCodes int     `json:"total_sutherland_codes"`
	TotalMissedCodes     int     `json:"total_missed_codes"`
	TotalExtraCodes      int     `json:"total_extra_codes"`
	MissRate             float64 `json:"miss_rate"`
}

// CodeImportance splits the discrepant-code accuracy by the classification
// stage's importance label.
type CodeImportance struct {
	ImportantCodes   ImportantCodes   `json:"important_codes"`
	UnimportantCodes UnimportantCodes `json:"unimportant_codes"`
}

// ImportantCodes covers the codes classified as clinically important.
type ImportantCodes struct {
	TotalImportantCodes   int     `json:"total_important_codes"`
	MissedImportantCodes  int     `json:"missed_important_codes"`
	ImportantCodeAccuracy float64 `json:"important_code_accuracy"`
	ImportantMissRate     float64 `json:"important_miss_rate"`
}

// UnimportantCodes covers the codes classified as not clinically important.
type UnimportantCodes struct {
	TotalUnimportantCodes   int     `json:"total_unimportant_codes"`
	MissedUnimportantCodes  int     `json:"missed_unimportant_codes"`
	UnimportantCodeAccuracy float64 `json:"unimportant_code_accuracy"`
	UnimportantMissRate     float64 `json:"unimportant_miss_rate"`
}

// MatchDistribution is a chart-level match distribution without the patient
// total, used for the post-review view of the dataset.
type MatchDistribution struct {
	CompleteMatches   int     `json:"complete_matches"`
	PartialMatches    int     `json:"partial_matches"`
	NoMatches         int     `json:"no_matches"`
	CompleteMatchRate float64 `json:"complete_match_rate"`
	PartialMatchRate  float64 `json:"partial_match_rate"`
	NoMatchRate       float64 `json:"no_match_rate"`
}

// Improvements summarizes the chart-level gain attributable to the
// partial-match review.
type Improvements struct {
	PartialToCompleteConversions int     `json:"partial_to_complete_conversions"`
	AccuracyImprovement          float64 `json:"accuracy_improvement"`
}

// ManualCodingAnalysis measures the human coders against the reviewer's
// adjudications. CorrectedCodes maps each disputed code to its correction:
// "should_code", "should_not_code", or the replacement code.
type ManualCodingAnalysis struct {
	TotalReviewedCodes   int               `json:"total_reviewed_codes"`
	SutherlandErrors     int               `json:"sutherland_errors"`
	ManualCodingAccuracy float64           `json:"manual_coding_accuracy"`
	AICorrections        int               `json:"ai_corrections"`
	ExtraCodesByAI       int               `json:"extra_codes_by_ai"`
	CorrectedCodes       map[string]string `json:"corrected_codes"`
}

// CorrectedCodeAccuracy is code-level accuracy after crediting AI
// corrections. Each reviewed code lands in exactly one bucket: AI correct,
// Sutherland correct (when the AI was not), or neither side correct.
type CorrectedCodeAccuracy struct {
	TotalCodesReviewed     int     `json:"total_codes_reviewed"`
	AICorrectCodes         int     `json:"ai_correct_codes"`
	SutherlandCorrectCodes int     `json:"sutherland_correct_codes"`
	NeitherCorrectCodes    int     `json:"neither_correct_codes"`
	CorrectedAccuracy      float64 `json:"corrected_accuracy"`
}

// MatchChange records one chart upgraded from partial to complete match by
// the review, with the rule that triggered it.
type MatchChange struct {
	PatientID        string            `json:"patient_id"`
	OriginalMatch    model.MatchResult `json:"original_match"`
	NewMatch         model.MatchResult `json:"new_match"`
	Reason           string            `json:"reason"`
	SutherlandErrors int               `json:"sutherland_errors"`
	AICorrections    int               `json:"ai_corrections"`
	ExtraCodes       int               `json:"extra_codes"`
	SutherlandScore  float64           `json:"sutherland_score"`
	AIScore          float64           `json:"ai_score"`
}

// PreReviewCodeAccuracy is the detailed code-level baseline, with a per
// patient breakdown.
type PreReviewCodeAccuracy struct {
	Metrics          CodeAccuracy   `json:"pre_review_metrics"`
	PatientLevelData []PatientCodes `json:"patient_level_data"`
}

// CodeAccuracy is the code-level accuracy summary shared by the pre-review
// baseline. Precision is against the AI code total, recall against the
// human code total.
type CodeAccuracy struct {
	TotalSutherlandCodes int     `json:"total_sutherland_codes"`
	TotalAICodes         int     `json:"total_ai_codes"`
	CorrectlyCodedByAI   int     `json:"correctly_coded_by_ai"`
	MissedByAI           int     `json:"missed_by_ai"`
	ExtraByAI            int     `json:"extra_by_ai"`
	OverallAccuracy      float64 `json:"overall_accuracy"`
	MissRate             float64 `json:"miss_rate"`
	ExtraRate            float64 `json:"extra_rate"`
	Precision            float64 `json:"precision"`
	Recall               float64 `json:"recall"`
}

// PatientCodes is one patient's code counts in the pre-review baseline.
type PatientCodes struct {
	PatientID       string  `json:"patient_id"`
	SutherlandCodes int     `json:"sutherland_codes"`
	AICodes         int     `json:"ai_codes"`
	CorrectCodes    int     `json:"correct_codes"`
	MissedCodes     int     `json:"missed_codes"`
	ExtraCodes      int     `json:"extra_codes"`
	AccuracyRate    float64 `json:"accuracy_rate"`
}

// PostReviewCodeAccuracy is the code-level accuracy after folding in the
// partial-match review verdicts.
type PostReviewCodeAccuracy struct {
	Metrics            ReviewedCodeMetrics `json:"post_review_metrics"`
	Comparison         ComparisonMetrics   `json:"comparison_metrics"`
	PatientCorrections []PatientCorrection `json:"patient_corrections"`
}

// ReviewedCodeMetrics counts the reviewer's decisions over the reviewed
// comparisons.
type ReviewedCodeMetrics struct {
	CodesReviewedByAI     int     `json:"codes_reviewed_by_ai"`
	AICorrectDecisions    int     `json:"ai_correct_decisions"`
	SutherlandErrorsFound int     `json:"sutherland_errors_found"`
	AICorrectionsAccepted int     `json:"ai_corrections_accepted"`
	CorrectedAccuracy     float64 `json:"corrected_accuracy"`
	ImprovementInAccuracy float64 `json:"improvement_in_accuracy"`
	ErrorReductionRate    float64 `json:"error_reduction_rate"`
	AIDecisionAccuracy    float64 `json:"ai_decision_accuracy"`
}

// ComparisonMetrics places post-review accuracy against the baseline.
type ComparisonMetrics struct {
	OriginalAccuracy    float64 `json:"original_accuracy"`
	PostReviewAccuracy  float64 `json:"post_review_accuracy"`
	NetImprovement      float64 `json:"net_improvement"`
	RelativeImprovement float64 `json:"relative_improvement"`
}

// PatientCorrection is one patient's share of the review corrections.
type PatientCorrection struct {
	PatientID        string  `json:"patient_id"`
	CodesReviewed    int     `json:"codes_reviewed"`
	AICorrect        int     `json:"ai_correct"`
	SutherlandErrors int     `json:"sutherland_errors"`
	ImprovementRate  float64 `json:"improvement_rate"`
}

// UnifiedPostReview combines the partial-match and no-match review gains
// into one before/after view, attributing each improvement to its source.
type UnifiedPostReview struct {
	OriginalAccuracy     UnifiedRates         `json:"original_accuracy"`
	PostReviewAccuracy   UnifiedRates         `json:"unified_post_review_accuracy"`
	TotalImprovements    TotalImprovements    `json:"total_improvements"`
	ImprovementBreakdown ImprovementBreakdown `json:"improvement_breakdown"`
}

// UnifiedRates is one side of the unified before/after comparison.
type UnifiedRates struct {
	CompleteMatchRate float64 `json:"complete_match_rate"`
	PartialMatchRate  float64 `json:"partial_match_rate"`
	NoMatchRate       float64 `json:"no_match_rate"`
	CodeLevelAccuracy float64 `json:"code_level_accuracy"`
}

// TotalImprovements sums the gains from both review sources.
type TotalImprovements struct {
	ChartLevelImprovement       float64 `json:"chart_level_improvement"`
	CodeLevelImprovement        float64 `json:"code_level_improvement"`
	CompleteMatchImprovement    float64 `json:"complete_match_improvement"`
	PartialMatchImprovement     float64 `json:"partial_match_improvement"`
	CombinedAccuracyImprovement float64 `json:"combined_accuracy_improvement"`
}

// ImprovementBreakdown attributes improvements to the partial-match review
// or the no-match review.
type ImprovementBreakdown struct {
	PartialMatchImprovements PartialMatchImprovements `json:"partial_match_improvements"`
	NoMatchConversions       NoMatchConversions       `json:"no_match_conversions"`
}

// PartialMatchImprovements is the code-level gain from reviewing partial
// matches.
type PartialMatchImprovements struct {
	Source               string  `json:"source"`
	CodeLevelImprovement float64 `json:"code_level_improvement"`
	CodesCorrected       int     `json:"codes_corrected"`
	CodesReviewed        int     `json:"codes_reviewed"`
	AIAccuracyOnReviews  float64 `json:"ai_accuracy_on_reviews"`
}

// NoMatchConversions is the chart-level gain from no-match charts the
// reviewer judged upgradable.
type NoMatchConversions struct {
	Source                       string  `json:"source"`
	ChartLevelImprovement        float64 `json:"chart_level_improvement"`
	CasesReviewed                int     `json:"cases_reviewed"`
	PotentialCompleteConversions int     `json:"potential_complete_conversions"`
	PotentialPartialConversions  int     `json:"potential_partial_conversions"`
	TotalConversions             int     `json:"total_conversions"`
}

// NoMatchAnalysis summarizes the no-match review stage. Degraded verdicts
// count toward the totals but not toward the successful reviews, so the
// success rate reflects them honestly.
type NoMatchAnalysis struct {
	TotalNoMatchCases     int              `json:"total_no_match_cases"`
	SuccessfulReviews     int              `json:"successful_reviews"`
	PotentialUpgrades     int              `json:"potential_upgrades"`
	UpgradePotential      UpgradePotential `json:"upgrade_potential"`
	AIBetterCases         int              `json:"ai_better_cases"`
	SutherlandBetterCases int              `json:"sutherland_better_cases"`
	ReviewSuccessRate     float64          `json:"review_success_rate"`
}

// UpgradePotential counts the no-match charts that could become partial or
// complete matches.
type UpgradePotential struct {
	ToPartialMatch  int `json:"to_partial_match"`
	ToCompleteMatch int `json:"to_complete_match"`
}

// DegradedCounts reports how many cases per stage produced a degraded
// verdict. Degraded cases stay in every total; they are never dropped.
type DegradedCounts struct {
	Classification     int `json:"classification"`
	PartialMatchReview int `json:"partial_match_review"`
	NoMatchReview      int `json:"no_match_review"`
}
