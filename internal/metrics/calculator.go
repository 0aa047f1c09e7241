// Package metrics folds the dataset and the review stage outputs into the
// comprehensive accuracy report consumed by the dashboard. Everything here
// is deterministic arithmetic over already-produced verdicts; the package
// makes no external calls.
package metrics

import (
	"fmt"

	"github.com/chartwell-labs/second-opinion/internal/model"
)

// Inputs carries one run's stage outputs. Verdicts are joined to the
// dataset by patient identifier; verdicts for unknown patients are skipped.
type Inputs struct {
	Classifications []model.CaseClassification
	PartialReviews  []model.CaseVerdict
	NoMatchReviews  []model.CaseVerdict
}

// Calculator computes accuracy metrics over a loaded dataset.
type Calculator struct {
	cases []model.Case
	byID  map[string]int
}

// NewCalculator copies the cases and derives each chart's code partition
// and match result where the dataset did not supply one.
func NewCalculator(cases []model.Case) *Calculator {
	cs := make([]model.Case, len(cases))
	copy(cs, cases)
	byID := make(map[string]int, len(cs))
	for i := range cs {
		cs[i].Partition()
		byID[cs[i].PatientID] = i
	}
	return &Calculator{cases: cs, byID: byID}
}

// Comprehensive folds the stage outputs into the full accuracy report.
// Degraded verdicts stay in every case total and success-rate denominator
// but are excluded from the correctness arithmetic, since their fields are
// conservative placeholders rather than adjudications.
func (c *Calculator) Comprehensive(in Inputs) *Report {
	chart := c.chartLevel()
	pre := c.preReview()
	post := c.postAIReview(in.PartialReviews, chart)
	postCode := c.postReviewCode(in.PartialReviews, pre.Metrics)

	return &Report{
		OriginalAccuracy: OriginalAccuracy{
			ChartLevel: chart,
			CodeLevel: CodeLevel{
				OverallAccuracy:      pre.Metrics.OverallAccuracy,
				TotalSutherlandCodes: pre.Metrics.TotalSutherlandCodes,
				TotalMissedCodes:     pre.Metrics.MissedByAI,
				TotalExtraCodes:      pre.Metrics.ExtraByAI,
				MissRate:             pre.Metrics.MissRate,
			},
		},
		CodeImportance:     importance(in.Classifications),
		PostAIReview:       post.distribution,
		Improvements:       post.improvements,
		ManualCoding:       post.manualCoding,
		CorrectedAccuracy:  correctedAccuracy(in.PartialReviews, in.NoMatchReviews),
		DetailedChanges:    post.changes,
		PreReviewAccuracy:  pre,
		PostReviewAccuracy: postCode,
		Unified:            c.unified(in.NoMatchReviews, chart, pre.Metrics, postCode),
		NoMatchAnalysis:    noMatchAnalysis(in.NoMatchReviews),
		DegradedCases:      degradedCounts(in),
	}
}

func (c *Calculator) chartLevel() ChartLevel {
	ch := ChartLevel{TotalPatients: len(c.cases)}
	for i := range c.cases {
		switch c.cases[i].MatchResult {
		case model.CompleteMatch:
			ch.CompleteMatches++
		case model.PartialMatch:
			ch.PartialMatches++
		case model.NoMatch:
			ch.NoMatches++
		}
	}
	ch.CompleteMatchRate = ratio(ch.CompleteMatches, ch.TotalPatients)
	ch.PartialMatchRate = ratio(ch.PartialMatches, ch.TotalPatients)
	ch.NoMatchRate = ratio(ch.NoMatches, ch.TotalPatients)
	return ch
}

func (c *Calculator) preReview() PreReviewCodeAccuracy {
	var m CodeAccuracy
	patients := make([]PatientCodes, 0, len(c.cases))
	for i := range c.cases {
		cs := &c.cases[i]
		matched := len(cs.MatchedCodes)
		missed := len(cs.SutherlandOnly)
		extra := len(cs.AIOnly)

		m.TotalSutherlandCodes += len(cs.SutherlandCodes)
		m.TotalAICodes += len(cs.AICodes)
		m.CorrectlyCodedByAI += matched
		m.MissedByAI += missed
		m.ExtraByAI += extra

		accuracy := 1.0
		if len(cs.SutherlandCodes) > 0 {
			accuracy = float64(matched) / float64(len(cs.SutherlandCodes))
		}
		patients = append(patients, PatientCodes{
			PatientID:       cs.PatientID,
			SutherlandCodes: len(cs.SutherlandCodes),
			AICodes:         len(cs.AICodes),
			CorrectCodes:    matched,
			MissedCodes:     missed,
			ExtraCodes:      extra,
			AccuracyRate:    accuracy,
		})
	}
	m.OverallAccuracy = ratio(m.CorrectlyCodedByAI, m.TotalSutherlandCodes)
	m.MissRate = ratio(m.MissedByAI, m.TotalSutherlandCodes)
	m.ExtraRate = ratio(m.ExtraByAI, m.TotalAICodes)
	m.Precision = ratio(m.CorrectlyCodedByAI, m.TotalAICodes)
	m.Recall = ratio(m.CorrectlyCodedByAI, m.TotalSutherlandCodes)
	return PreReviewCodeAccuracy{Metrics: m, PatientLevelData: patients}
}

func importance(classifications []model.CaseClassification) CodeImportance {
	var totalImportant, missedImportant int
	var totalUnimportant, missedUnimportant int
	for i := range classifications {
		set := &classifications[i]
		if set.Degraded {
			continue
		}
		for j := range set.Classifications {
			cl := &set.Classifications[j]
			missedByAI := cl.Source == model.SourceSutherlandOnly
			switch cl.Classification {
			case model.RelevanceImportant:
				totalImportant++
				if missedByAI {
					missedImportant++
				}
			case model.RelevanceUnimportant:
				totalUnimportant++
				if missedByAI {
					missedUnimportant++
				}
			}
		}
	}
	return CodeImportance{
		ImportantCodes: ImportantCodes{
			TotalImportantCodes:   totalImportant,
			MissedImportantCodes:  missedImportant,
			ImportantCodeAccuracy: accuracyAfterMisses(totalImportant, missedImportant),
			ImportantMissRate:     ratio(missedImportant, totalImportant),
		},
		UnimportantCodes: UnimportantCodes{
			TotalUnimportantCodes:   totalUnimportant,
			MissedUnimportantCodes:  missedUnimportant,
			UnimportantCodeAccuracy: accuracyAfterMisses(totalUnimportant, missedUnimportant),
			UnimportantMissRate:     ratio(missedUnimportant, totalUnimportant),
		},
	}
}

// postReviewFold is the partial-match review fold: the revised chart
// distribution, the manual coding analysis, and the upgrade records.
type postReviewFold struct {
	distribution MatchDistribution
	improvements Improvements
	manualCoding ManualCodingAnalysis
	changes      []MatchChange
}

func (c *Calculator) postAIReview(reviews []model.CaseVerdict, chart ChartLevel) postReviewFold {
	fold := postReviewFold{changes: make([]MatchChange, 0)}
	correctedCodes := make(map[string]string)
	upgraded := make(map[string]bool)

	var totalReviewed, sutherlandErrors, aiCorrections, extraByAI int

	for i := range reviews {
		v := &reviews[i]
		if v.Degraded {
			continue
		}
		idx, ok := c.byID[v.PatientID]
		if !ok {
			continue
		}
		cs := &c.cases[idx]

		var patientErrors, patientCorrections, patientExtra, patientTotal int
		for j := range v.Analysis {
			comp := &v.Analysis[j]
			totalReviewed++
			patientTotal++

			switch comp.Status {
			case model.StatusSutherlandOnly:
				if !comp.IsSutherlandCorrect {
					sutherlandErrors++
					patientErrors++
					correctedCodes[*comp.SutherlandCode] = "should_not_code"
				}
			case model.StatusAIOnly:
				extraByAI++
				patientExtra++
				if comp.IsAICorrect {
					aiCorrections++
					patientCorrections++
					correctedCodes[*comp.AICode] = "should_code"
				}
			case model.StatusDifferentApproach:
				if !comp.IsSutherlandCorrect && comp.IsAICorrect {
					sutherlandErrors++
					patientErrors++
					aiCorrections++
					patientCorrections++
					correctedCodes[*comp.SutherlandCode] = *comp.AICode
				}
			}
		}

		// Only a partial-match chart can be upgraded, and only once.
		if cs.MatchResult != model.PartialMatch || upgraded[cs.PatientID] {
			continue
		}
		reason := upgradeReason(v.CodingAccuracyScore, patientCorrections, patientErrors, patientTotal)
		if reason == "" {
			continue
		}
		upgraded[cs.PatientID] = true
		fold.changes = append(fold.changes, MatchChange{
			PatientID:        cs.PatientID,
			OriginalMatch:    model.PartialMatch,
			NewMatch:         model.CompleteMatch,
			Reason:           reason,
			SutherlandErrors: patientErrors,
			AICorrections:    patientCorrections,
			ExtraCodes:       patientExtra,
			SutherlandScore:  v.CodingAccuracyScore.SutherlandScore,
			AIScore:          v.CodingAccuracyScore.AIScore,
		})
	}

	conversions := len(fold.changes)
	fold.distribution = MatchDistribution{
		CompleteMatches:   chart.CompleteMatches + conversions,
		PartialMatches:    chart.PartialMatches - conversions,
		NoMatches:         chart.NoMatches,
		CompleteMatchRate: ratio(chart.CompleteMatches+conversions, chart.TotalPatients),
		PartialMatchRate:  ratio(chart.PartialMatches-conversions, chart.TotalPatients),
		NoMatchRate:       ratio(chart.NoMatches, chart.TotalPatients),
	}
	fold.improvements = Improvements{
		PartialToCompleteConversions: conversions,
		AccuracyImprovement:          ratio(conversions, chart.TotalPatients),
	}

	accuracy := 1.0
	if totalReviewed > 0 {
		accuracy = float64(totalReviewed-sutherlandErrors) / float64(totalReviewed)
	}
	fold.manualCoding = ManualCodingAnalysis{
		TotalReviewedCodes:   totalReviewed,
		SutherlandErrors:     sutherlandErrors,
		ManualCodingAccuracy: accuracy,
		AICorrections:        aiCorrections,
		ExtraCodesByAI:       extraByAI,
		CorrectedCodes:       correctedCodes,
	}
	return fold
}

// upgradeReason applies the complete-match upgrade rules in order and
// returns the reason for the first rule that fires, or "" when none do.
func upgradeReason(score model.AccuracyScore, corrections, errors, total int) string {
	switch {
	case score.AIScore > 0.8 && score.AIScore > score.SutherlandScore:
		return fmt.Sprintf("AI coding more accurate (AI: %.2f, Sutherland: %.2f)", score.AIScore, score.SutherlandScore)
	case corrections > errors:
		return fmt.Sprintf("AI corrections (%d) > Sutherland errors (%d)", corrections, errors)
	case total > 0 && float64(errors)/float64(total) < 0.2:
		return fmt.Sprintf("Low Sutherland error rate: %d/%d", errors, total)
	default:
		return ""
	}
}

// correctedAccuracy buckets every adjudicated comparison from both review
// stages exactly once. A comparison where neither side was correct counts
// toward the neither bucket and never toward AI correctness.
func correctedAccuracy(reviewSets ...[]model.CaseVerdict) CorrectedCodeAccuracy {
	var m CorrectedCodeAccuracy
	for _, reviews := range reviewSets {
		for i := range reviews {
			v := &reviews[i]
			if v.Degraded {
				continue
			}
			for j := range v.Analysis {
				comp := &v.Analysis[j]
				m.TotalCodesReviewed++
				switch {
				case comp.IsAICorrect:
					m.AICorrectCodes++
				case comp.IsSutherlandCorrect:
					m.SutherlandCorrectCodes++
				default:
					m.NeitherCorrectCodes++
				}
			}
		}
	}
	m.CorrectedAccuracy = ratio(m.AICorrectCodes+m.SutherlandCorrectCodes, m.TotalCodesReviewed)
	return m
}

func (c *Calculator) postReviewCode(reviews []model.CaseVerdict, pre CodeAccuracy) PostReviewCodeAccuracy {
	var m ReviewedCodeMetrics
	patients := make([]PatientCorrection, 0)

	for i := range reviews {
		v := &reviews[i]
		if v.Degraded {
			continue
		}
		var reviewed, aiCorrect, errors int
		for j := range v.Analysis {
			comp := &v.Analysis[j]
			reviewed++
			if comp.IsAICorrect {
				aiCorrect++
			}
			if !comp.IsSutherlandCorrect {
				errors++
			}
			if comp.IsAICorrect && !comp.IsSutherlandCorrect {
				m.AICorrectionsAccepted++
			}
		}
		m.CodesReviewedByAI += reviewed
		m.AICorrectDecisions += aiCorrect
		m.SutherlandErrorsFound += errors
		if reviewed > 0 {
			patients = append(patients, PatientCorrection{
				PatientID:        v.PatientID,
				CodesReviewed:    reviewed,
				AICorrect:        aiCorrect,
				SutherlandErrors: errors,
				ImprovementRate:  float64(aiCorrect) / float64(reviewed),
			})
		}
	}

	if m.CodesReviewedByAI > 0 {
		baselineCorrect := m.CodesReviewedByAI - m.SutherlandErrorsFound
		m.CorrectedAccuracy = float64(baselineCorrect+m.AICorrectionsAccepted) / float64(m.CodesReviewedByAI)
	}
	m.ImprovementInAccuracy = ratio(m.AICorrectionsAccepted, pre.TotalSutherlandCodes)
	m.ErrorReductionRate = ratio(m.SutherlandErrorsFound, m.CodesReviewedByAI)
	m.AIDecisionAccuracy = ratio(m.AICorrectDecisions, m.CodesReviewedByAI)

	comparison := ComparisonMetrics{
		OriginalAccuracy:   pre.OverallAccuracy,
		PostReviewAccuracy: pre.OverallAccuracy + m.ImprovementInAccuracy,
		NetImprovement:     m.ImprovementInAccuracy,
	}
	if pre.OverallAccuracy > 0 {
		comparison.RelativeImprovement = m.ImprovementInAccuracy / pre.OverallAccuracy
	}
	return PostReviewCodeAccuracy{Metrics: m, Comparison: comparison, PatientCorrections: patients}
}

func (c *Calculator) unified(noMatch []model.CaseVerdict, chart ChartLevel, pre CodeAccuracy, postCode PostReviewCodeAccuracy) UnifiedPostReview {
	conv := NoMatchConversions{Source: "No Match to Match Conversions"}
	for i := range noMatch {
		v := &noMatch[i]
		if v.Degraded {
			continue
		}
		conv.CasesReviewed++
		if v.MatchPotential == nil {
			continue
		}
		// A chart judged upgradable to complete is not double counted
		// as a partial upgrade.
		switch {
		case v.MatchPotential.CouldBeCompleteMatch:
			conv.PotentialCompleteConversions++
			conv.TotalConversions++
		case v.MatchPotential.CouldBePartialMatch:
			conv.PotentialPartialConversions++
			conv.TotalConversions++
		}
	}

	var completeGain, partialGain float64
	if chart.TotalPatients > 0 {
		completeGain = float64(conv.PotentialCompleteConversions) / float64(chart.TotalPatients)
		partialGain = float64(conv.PotentialPartialConversions) / float64(chart.TotalPatients)
		conv.ChartLevelImprovement = float64(conv.TotalConversions) / float64(chart.TotalPatients)
	}

	codeGain := postCode.Comparison.NetImprovement

	return UnifiedPostReview{
		OriginalAccuracy: UnifiedRates{
			CompleteMatchRate: chart.CompleteMatchRate,
			PartialMatchRate:  chart.PartialMatchRate,
			NoMatchRate:       chart.NoMatchRate,
			CodeLevelAccuracy: pre.OverallAccuracy,
		},
		PostReviewAccuracy: UnifiedRates{
			CompleteMatchRate: chart.CompleteMatchRate + completeGain,
			PartialMatchRate:  chart.PartialMatchRate + partialGain,
			NoMatchRate:       chart.NoMatchRate - conv.ChartLevelImprovement,
			CodeLevelAccuracy: pre.OverallAccuracy + codeGain,
		},
		TotalImprovements: TotalImprovements{
			ChartLevelImprovement:       conv.ChartLevelImprovement,
			CodeLevelImprovement:        codeGain,
			CompleteMatchImprovement:    completeGain,
			PartialMatchImprovement:     partialGain,
			CombinedAccuracyImprovement: conv.ChartLevelImprovement + codeGain,
		},
		ImprovementBreakdown: ImprovementBreakdown{
			PartialMatchImprovements: PartialMatchImprovements{
				Source:               "AI Review of Partial Matches",
				CodeLevelImprovement: codeGain,
				CodesCorrected:       postCode.Metrics.AICorrectionsAccepted,
				CodesReviewed:        postCode.Metrics.CodesReviewedByAI,
				AIAccuracyOnReviews:  postCode.Metrics.AIDecisionAccuracy,
			},
			NoMatchConversions: conv,
		},
	}
}

func noMatchAnalysis(reviews []model.CaseVerdict) NoMatchAnalysis {
	a := NoMatchAnalysis{TotalNoMatchCases: len(reviews)}
	for i := range reviews {
		v := &reviews[i]
		if v.Degraded {
			continue
		}
		a.SuccessfulReviews++

		if mp := v.MatchPotential; mp != nil {
			if mp.CouldBePartialMatch {
				a.UpgradePotential.ToPartialMatch++
			}
			if mp.CouldBeCompleteMatch {
				a.UpgradePotential.ToCompleteMatch++
			}
			if mp.CouldBePartialMatch || mp.CouldBeCompleteMatch {
				a.PotentialUpgrades++
			}
		}

		score := v.CodingAccuracyScore
		switch {
		case score.AIScore > score.SutherlandScore:
			a.AIBetterCases++
		case score.SutherlandScore > score.AIScore:
			a.SutherlandBetterCases++
		}
	}
	a.ReviewSuccessRate = ratio(a.SuccessfulReviews, a.TotalNoMatchCases)
	return a
}

func degradedCounts(in Inputs) DegradedCounts {
	var d DegradedCounts
	for i := range in.Classifications {
		if in.Classifications[i].Degraded {
			d.Classification++
		}
	}
	for i := range in.PartialReviews {
		if in.PartialReviews[i].Degraded {
			d.PartialMatchReview++
		}
	}
	for i := range in.NoMatchReviews {
		if in.NoMatchReviews[i].Degraded {
			d.NoMatchReview++
		}
	}
	return d
}

// ratio divides two counts, returning 0 for an empty denominator.
func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// accuracyAfterMisses is the fraction of codes not missed, defaulting to a
// perfect score when there were no codes to miss.
func accuracyAfterMisses(total, missed int) float64 {
	if total == 0 {
		return 1.0
	}
	return float64(total-missed) / float64(total)
}
