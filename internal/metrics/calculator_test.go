package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chartwell-labs/second-opinion/internal/model"
)

func codeRef(s string) *string {
	return &s
}

// fixtureCases is a six-chart dataset: one complete match, two partial
// matches, and three no-matches.
func fixtureCases() []model.Case {
	return []model.Case{
		{PatientID: "1001", SutherlandCodes: []string{"A00.1", "B00.2"}, AICodes: []string{"A00.1", "B00.2"}},
		{PatientID: "1002", SutherlandCodes: []string{"I63.512", "R91.8", "Z98.890"}, AICodes: []string{"I63.512", "J44.1"}},
		{PatientID: "2664438", SutherlandCodes: []string{"Z98890"}, AICodes: nil},
		{PatientID: "1004", SutherlandCodes: []string{"C50.911"}, AICodes: []string{"D05.10"}},
		{PatientID: "1005", SutherlandCodes: []string{"E11.9", "I10"}, AICodes: []string{"E11.9"}},
		{PatientID: "1006", SutherlandCodes: []string{"M54.5"}, AICodes: []string{"G89.29"}},
	}
}

// fixtureInputs pairs the dataset with one run's stage outputs, including
// one degraded record per stage.
func fixtureInputs() Inputs {
	return Inputs{
		Classifications: []model.CaseClassification{
			{
				PatientID: "1002",
				Classifications: []model.CodeClassification{
					{Code: "R91.8", Source: model.SourceSutherlandOnly, Classification: model.RelevanceImportant},
					{Code: "Z98.890", Source: model.SourceSutherlandOnly, Classification: model.RelevanceUnimportant},
					{Code: "J44.1", Source: model.SourceAIOnly, Classification: model.RelevanceImportant},
				},
			},
			{
				PatientID: "2664438",
				Classifications: []model.CodeClassification{
					{Code: "Z98890", Source: model.SourceSutherlandOnly, Classification: model.RelevanceUnimportant},
				},
			},
			{
				PatientID: "1004",
				Degraded:  true,
				Classifications: []model.CodeClassification{
					{Code: "C50.911", Source: model.SourceSutherlandOnly, Classification: model.RelevanceUnimportant},
				},
			},
		},
		PartialReviews: []model.CaseVerdict{
			{
				PatientID: "1002",
				Analysis: []model.CodeComparison{
					{SutherlandCode: codeRef("I63.512"), AICode: codeRef("I63.512"), Status: model.StatusMatch, IsSutherlandCorrect: true, IsAICorrect: true, Severity: model.SeverityMinor},
					{SutherlandCode: codeRef("R91.8"), Status: model.StatusSutherlandOnly, Severity: model.SeverityModerate},
					{SutherlandCode: codeRef("Z98.890"), Status: model.StatusSutherlandOnly, IsSutherlandCorrect: true, Severity: model.SeverityMinor},
					{AICode: codeRef("J44.1"), Status: model.StatusAIOnly, IsAICorrect: true, Severity: model.SeverityModerate},
				},
				CodingAccuracyScore: model.AccuracyScore{SutherlandScore: 0.6, AIScore: 0.85},
				OverallAssessment:   "AI coding is more complete on this chart",
			},
			{
				PatientID: "1005",
				Analysis: []model.CodeComparison{
					{SutherlandCode: codeRef("I10"), Status: model.StatusSutherlandOnly, Severity: model.SeverityModerate},
				},
				OverallAssessment: "review unavailable; no parseable response",
				Degraded:          true,
				RawResponse:       "not json",
			},
		},
		NoMatchReviews: []model.CaseVerdict{
			{
				PatientID: "2664438",
				Analysis: []model.CodeComparison{
					{SutherlandCode: codeRef("Z98890"), Status: model.StatusSutherlandOnly, Severity: model.SeverityModerate},
				},
				CodingAccuracyScore: model.AccuracyScore{SutherlandScore: 0.2, AIScore: 0.2},
				MatchPotential:      &model.MatchPotential{Reasoning: "neither side coded the encounter correctly"},
				OverallAssessment:   "no valid code from either side",
			},
			{
				PatientID: "1004",
				Analysis: []model.CodeComparison{
					{SutherlandCode: codeRef("C50.911"), AICode: codeRef("D05.10"), Status: model.StatusDifferentApproach, IsAICorrect: true, Severity: model.SeverityCritical},
				},
				CodingAccuracyScore: model.AccuracyScore{SutherlandScore: 0.3, AIScore: 0.9},
				MatchPotential:      &model.MatchPotential{CouldBePartialMatch: true, Reasoning: "the AI code captures the documented finding"},
				OverallAssessment:   "AI approach is defensible",
			},
			{
				PatientID: "1006",
				Analysis: []model.CodeComparison{
					{SutherlandCode: codeRef("M54.5"), Status: model.StatusSutherlandOnly, Severity: model.SeverityModerate},
					{AICode: codeRef("G89.29"), Status: model.StatusAIOnly, Severity: model.SeverityModerate},
				},
				MatchPotential: &model.MatchPotential{Reasoning: "review unavailable; match potential not assessed"},
				Degraded:       true,
				RawResponse:    "<html>gateway timeout</html>",
			},
		},
	}
}

func fixtureReport(t *testing.T) *Report {
	t.Helper()
	calc := NewCalculator(fixtureCases())
	report := calc.Comprehensive(fixtureInputs())
	require.NotNil(t, report)
	return report
}

func TestChartLevelDistribution(t *testing.T) {
	chart := fixtureReport(t).OriginalAccuracy.ChartLevel

	assert.Equal(t, 6, chart.TotalPatients)
	assert.Equal(t, 1, chart.CompleteMatches)
	assert.Equal(t, 2, chart.PartialMatches)
	assert.Equal(t, 3, chart.NoMatches)
	assert.InDelta(t, 1.0/6.0, chart.CompleteMatchRate, 1e-9)
	assert.InDelta(t, 2.0/6.0, chart.PartialMatchRate, 1e-9)
	assert.InDelta(t, 0.5, chart.NoMatchRate, 1e-9)
}

func TestPreReviewCodeAccuracy(t *testing.T) {
	pre := fixtureReport(t).PreReviewAccuracy

	m := pre.Metrics
	assert.Equal(t, 10, m.TotalSutherlandCodes)
	assert.Equal(t, 7, m.TotalAICodes)
	assert.Equal(t, 4, m.CorrectlyCodedByAI)
	assert.Equal(t, 6, m.MissedByAI)
	assert.Equal(t, 3, m.ExtraByAI)
	assert.InDelta(t, 0.4, m.OverallAccuracy, 1e-9)
	assert.InDelta(t, 0.6, m.MissRate, 1e-9)
	assert.InDelta(t, 3.0/7.0, m.ExtraRate, 1e-9)
	assert.InDelta(t, 4.0/7.0, m.Precision, 1e-9)
	assert.InDelta(t, 0.4, m.Recall, 1e-9)

	require.Len(t, pre.PatientLevelData, 6)
	second := pre.PatientLevelData[1]
	assert.Equal(t, "1002", second.PatientID)
	assert.Equal(t, 3, second.SutherlandCodes)
	assert.Equal(t, 2, second.AICodes)
	assert.Equal(t, 1, second.CorrectCodes)
	assert.Equal(t, 2, second.MissedCodes)
	assert.Equal(t, 1, second.ExtraCodes)
	assert.InDelta(t, 1.0/3.0, second.AccuracyRate, 1e-9)

	empty := pre.PatientLevelData[2]
	assert.Equal(t, "2664438", empty.PatientID)
	assert.Equal(t, 0, empty.AICodes)
	assert.InDelta(t, 0.0, empty.AccuracyRate, 1e-9)
}

func TestCodeImportanceSplitsBySource(t *testing.T) {
	importance := fixtureReport(t).CodeImportance

	// The degraded classification for 1004 must not count.
	imp := importance.ImportantCodes
	assert.Equal(t, 2, imp.TotalImportantCodes)
	assert.Equal(t, 1, imp.MissedImportantCodes)
	assert.InDelta(t, 0.5, imp.ImportantCodeAccuracy, 1e-9)
	assert.InDelta(t, 0.5, imp.ImportantMissRate, 1e-9)

	unimp := importance.UnimportantCodes
	assert.Equal(t, 2, unimp.TotalUnimportantCodes)
	assert.Equal(t, 2, unimp.MissedUnimportantCodes)
	assert.InDelta(t, 0.0, unimp.UnimportantCodeAccuracy, 1e-9)
	assert.InDelta(t, 1.0, unimp.UnimportantMissRate, 1e-9)
}

func TestPostAIReviewUpgradesPartialMatch(t *testing.T) {
	report := fixtureReport(t)

	require.Len(t, report.DetailedChanges, 1)
	change := report.DetailedChanges[0]
	assert.Equal(t, "1002", change.PatientID)
	assert.Equal(t, model.PartialMatch, change.OriginalMatch)
	assert.Equal(t, model.CompleteMatch, change.NewMatch)
	assert.Equal(t, "AI coding more accurate (AI: 0.85, Sutherland: 0.60)", change.Reason)
	assert.Equal(t, 1, change.SutherlandErrors)
	assert.Equal(t, 1, change.AICorrections)
	assert.Equal(t, 1, change.ExtraCodes)
	assert.InDelta(t, 0.6, change.SutherlandScore, 1e-9)
	assert.InDelta(t, 0.85, change.AIScore, 1e-9)

	post := report.PostAIReview
	assert.Equal(t, 2, post.CompleteMatches)
	assert.Equal(t, 1, post.PartialMatches)
	assert.Equal(t, 3, post.NoMatches)
	assert.InDelta(t, 2.0/6.0, post.CompleteMatchRate, 1e-9)
	assert.InDelta(t, 1.0/6.0, post.PartialMatchRate, 1e-9)
	assert.InDelta(t, 0.5, post.NoMatchRate, 1e-9)

	assert.Equal(t, 1, report.Improvements.PartialToCompleteConversions)
	assert.InDelta(t, 1.0/6.0, report.Improvements.AccuracyImprovement, 1e-9)
}

func TestManualCodingAnalysis(t *testing.T) {
	manual := fixtureReport(t).ManualCoding

	// Only 1002's four comparisons count; the degraded 1005 verdict is
	// excluded from the arithmetic.
	assert.Equal(t, 4, manual.TotalReviewedCodes)
	assert.Equal(t, 1, manual.SutherlandErrors)
	assert.InDelta(t, 0.75, manual.ManualCodingAccuracy, 1e-9)
	assert.Equal(t, 1, manual.AICorrections)
	assert.Equal(t, 1, manual.ExtraCodesByAI)
	assert.Equal(t, map[string]string{
		"R91.8": "should_not_code",
		"J44.1": "should_code",
	}, manual.CorrectedCodes)
}

func TestCorrectedAccuracyBucketsEveryReviewedCode(t *testing.T) {
	corrected := fixtureReport(t).CorrectedAccuracy

	assert.Equal(t, 6, corrected.TotalCodesReviewed)
	assert.Equal(t, 3, corrected.AICorrectCodes)
	assert.Equal(t, 1, corrected.SutherlandCorrectCodes)
	assert.Equal(t, 2, corrected.NeitherCorrectCodes)
	assert.InDelta(t, 4.0/6.0, corrected.CorrectedAccuracy, 1e-9)
}

func TestCorrectedAccuracyNeitherSideCorrect(t *testing.T) {
	// A chart where the human coded Z98890, the AI coded nothing, and the
	// reviewer found both sides wrong lands in the neither bucket and adds
	// nothing to AI correctness.
	cases := []model.Case{
		{PatientID: "2664438", SutherlandCodes: []string{"Z98890"}},
	}
	verdict := model.CaseVerdict{
		PatientID: "2664438",
		Analysis: []model.CodeComparison{
			{SutherlandCode: codeRef("Z98890"), Status: model.StatusSutherlandOnly, Severity: model.SeverityModerate},
		},
		MatchPotential:    &model.MatchPotential{Reasoning: "no valid code from either side"},
		OverallAssessment: "neither side coded this encounter correctly",
	}
	require.NoError(t, verdict.Validate())

	calc := NewCalculator(cases)
	report := calc.Comprehensive(Inputs{NoMatchReviews: []model.CaseVerdict{verdict}})

	corrected := report.CorrectedAccuracy
	assert.Equal(t, 1, corrected.TotalCodesReviewed)
	assert.Equal(t, 1, corrected.NeitherCorrectCodes)
	assert.Equal(t, 0, corrected.AICorrectCodes)
	assert.Equal(t, 0, corrected.SutherlandCorrectCodes)
	assert.InDelta(t, 0.0, corrected.CorrectedAccuracy, 1e-9)

	assert.Equal(t, 1, report.NoMatchAnalysis.SuccessfulReviews)
	assert.Equal(t, 0, report.NoMatchAnalysis.AIBetterCases)
}

func TestPostReviewCodeAccuracy(t *testing.T) {
	post := fixtureReport(t).PostReviewAccuracy

	m := post.Metrics
	assert.Equal(t, 4, m.CodesReviewedByAI)
	assert.Equal(t, 2, m.AICorrectDecisions)
	assert.Equal(t, 2, m.SutherlandErrorsFound)
	assert.Equal(t, 1, m.AICorrectionsAccepted)
	assert.InDelta(t, 0.75, m.CorrectedAccuracy, 1e-9)
	assert.InDelta(t, 0.1, m.ImprovementInAccuracy, 1e-9)
	assert.InDelta(t, 0.5, m.ErrorReductionRate, 1e-9)
	assert.InDelta(t, 0.5, m.AIDecisionAccuracy, 1e-9)

	cmp := post.Comparison
	assert.InDelta(t, 0.4, cmp.OriginalAccuracy, 1e-9)
	assert.InDelta(t, 0.5, cmp.PostReviewAccuracy, 1e-9)
	assert.InDelta(t, 0.1, cmp.NetImprovement, 1e-9)
	assert.InDelta(t, 0.25, cmp.RelativeImprovement, 1e-9)

	require.Len(t, post.PatientCorrections, 1)
	pc := post.PatientCorrections[0]
	assert.Equal(t, "1002", pc.PatientID)
	assert.Equal(t, 4, pc.CodesReviewed)
	assert.Equal(t, 2, pc.AICorrect)
	assert.Equal(t, 2, pc.SutherlandErrors)
	assert.InDelta(t, 0.5, pc.ImprovementRate, 1e-9)
}

func TestUnifiedPostReviewAttribution(t *testing.T) {
	unified := fixtureReport(t).Unified

	orig := unified.OriginalAccuracy
	assert.InDelta(t, 1.0/6.0, orig.CompleteMatchRate, 1e-9)
	assert.InDelta(t, 2.0/6.0, orig.PartialMatchRate, 1e-9)
	assert.InDelta(t, 0.5, orig.NoMatchRate, 1e-9)
	assert.InDelta(t, 0.4, orig.CodeLevelAccuracy, 1e-9)

	post := unified.PostReviewAccuracy
	assert.InDelta(t, 1.0/6.0, post.CompleteMatchRate, 1e-9)
	assert.InDelta(t, 0.5, post.PartialMatchRate, 1e-9)
	assert.InDelta(t, 1.0/3.0, post.NoMatchRate, 1e-9)
	assert.InDelta(t, 0.5, post.CodeLevelAccuracy, 1e-9)

	totals := unified.TotalImprovements
	assert.InDelta(t, 1.0/6.0, totals.ChartLevelImprovement, 1e-9)
	assert.InDelta(t, 0.1, totals.CodeLevelImprovement, 1e-9)
	assert.InDelta(t, 0.0, totals.CompleteMatchImprovement, 1e-9)
	assert.InDelta(t, 1.0/6.0, totals.PartialMatchImprovement, 1e-9)
	assert.InDelta(t, 1.0/6.0+0.1, totals.CombinedAccuracyImprovement, 1e-9)

	partial := unified.ImprovementBreakdown.PartialMatchImprovements
	assert.Equal(t, "AI Review of Partial Matches", partial.Source)
	assert.Equal(t, 1, partial.CodesCorrected)
	assert.Equal(t, 4, partial.CodesReviewed)
	assert.InDelta(t, 0.5, partial.AIAccuracyOnReviews, 1e-9)

	conv := unified.ImprovementBreakdown.NoMatchConversions
	assert.Equal(t, "No Match to Match Conversions", conv.Source)
	assert.Equal(t, 2, conv.CasesReviewed)
	assert.Equal(t, 0, conv.PotentialCompleteConversions)
	assert.Equal(t, 1, conv.PotentialPartialConversions)
	assert.Equal(t, 1, conv.TotalConversions)
	assert.InDelta(t, 1.0/6.0, conv.ChartLevelImprovement, 1e-9)
}

func TestNoMatchAnalysis(t *testing.T) {
	analysis := fixtureReport(t).NoMatchAnalysis

	assert.Equal(t, 3, analysis.TotalNoMatchCases)
	assert.Equal(t, 2, analysis.SuccessfulReviews)
	assert.Equal(t, 1, analysis.PotentialUpgrades)
	assert.Equal(t, 1, analysis.UpgradePotential.ToPartialMatch)
	assert.Equal(t, 0, analysis.UpgradePotential.ToCompleteMatch)
	assert.Equal(t, 1, analysis.AIBetterCases)
	assert.Equal(t, 0, analysis.SutherlandBetterCases)
	assert.InDelta(t, 2.0/3.0, analysis.ReviewSuccessRate, 1e-9)
}

func TestDegradedCountsPerStage(t *testing.T) {
	degraded := fixtureReport(t).DegradedCases

	assert.Equal(t, 1, degraded.Classification)
	assert.Equal(t, 1, degraded.PartialMatchReview)
	assert.Equal(t, 1, degraded.NoMatchReview)
}

func TestUpgradeReasonRules(t *testing.T) {
	tests := []struct {
		name        string
		score       model.AccuracyScore
		corrections int
		errors      int
		total       int
		want        string
	}{
		{
			name:  "ai significantly more accurate",
			score: model.AccuracyScore{SutherlandScore: 0.6, AIScore: 0.85},
			total: 4,
			want:  "AI coding more accurate (AI: 0.85, Sutherland: 0.60)",
		},
		{
			name:        "corrections outnumber errors",
			score:       model.AccuracyScore{SutherlandScore: 0.5, AIScore: 0.6},
			corrections: 2,
			errors:      1,
			total:       6,
			want:        "AI corrections (2) > Sutherland errors (1)",
		},
		{
			name:  "low error rate",
			score: model.AccuracyScore{SutherlandScore: 0.9, AIScore: 0.7},
			total: 3,
			want:  "Low Sutherland error rate: 0/3",
		},
		{
			name:        "no rule fires",
			score:       model.AccuracyScore{SutherlandScore: 0.7, AIScore: 0.5},
			corrections: 1,
			errors:      2,
			total:       4,
			want:        "",
		},
		{
			name:  "high ai score but behind sutherland",
			score: model.AccuracyScore{SutherlandScore: 0.95, AIScore: 0.9},
			total: 3,
			want:  "Low Sutherland error rate: 0/3",
		},
		{
			name:  "no comparisons",
			score: model.AccuracyScore{SutherlandScore: 0.5, AIScore: 0.5},
			total: 0,
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := upgradeReason(tt.score, tt.corrections, tt.errors, tt.total)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComprehensiveEmptyDataset(t *testing.T) {
	calc := NewCalculator(nil)
	report := calc.Comprehensive(Inputs{})

	assert.Equal(t, 0, report.OriginalAccuracy.ChartLevel.TotalPatients)
	assert.InDelta(t, 0.0, report.OriginalAccuracy.ChartLevel.CompleteMatchRate, 1e-9)
	assert.InDelta(t, 0.0, report.PreReviewAccuracy.Metrics.OverallAccuracy, 1e-9)

	// No divisions by zero: empty inputs default to neutral values.
	assert.InDelta(t, 1.0, report.ManualCoding.ManualCodingAccuracy, 1e-9)
	assert.InDelta(t, 1.0, report.CodeImportance.ImportantCodes.ImportantCodeAccuracy, 1e-9)
	assert.InDelta(t, 0.0, report.NoMatchAnalysis.ReviewSuccessRate, 1e-9)

	// Stable contract: lists serialize as arrays, never null.
	assert.NotNil(t, report.DetailedChanges)
	assert.NotNil(t, report.PreReviewAccuracy.PatientLevelData)
	assert.NotNil(t, report.PostReviewAccuracy.PatientCorrections)
	assert.NotNil(t, report.ManualCoding.CorrectedCodes)
	assert.Empty(t, report.DetailedChanges)
}
