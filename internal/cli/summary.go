package cli

import (
	"fmt"

	"github.com/chartwell-labs/second-opinion/internal/metrics"
)

// FormatRunSummary renders a finished pipeline run as a styled box: the
// per-stage counts, then the before/after accuracy comparison from the
// unified report section.
func FormatRunSummary(summary *metrics.RunSummary, report *metrics.Report) string {
	content := fmt.Sprintf(`Dataset: %s
Cases: %d
Duration: %.1fs
`, summary.Dataset, summary.TotalCases, summary.DurationSeconds)

	content += "\nStages:\n"
	for _, stage := range summary.Stages {
		line := fmt.Sprintf("  %s: %d cases", stage.Stage, stage.Cases)
		switch {
		case stage.Skipped:
			line += " " + SubtleStyle.Render("(reused artifact)")
		default:
			if stage.Degraded > 0 {
				line += fmt.Sprintf(", %d degraded", stage.Degraded)
			}
			line += fmt.Sprintf(", %d in / %d out tokens", stage.InputTokens, stage.OutputTokens)
		}
		content += line + "\n"
	}

	original := report.Unified.OriginalAccuracy
	reviewed := report.Unified.PostReviewAccuracy
	content += fmt.Sprintf(`
Complete match rate: %.1f%% → %.1f%%
Code-level accuracy: %.1f%% → %.1f%%
Partial-to-complete conversions: %d`,
		original.CompleteMatchRate*100, reviewed.CompleteMatchRate*100,
		original.CodeLevelAccuracy*100, reviewed.CodeLevelAccuracy*100,
		report.Improvements.PartialToCompleteConversions)

	if degraded := totalDegraded(report.DegradedCases); degraded > 0 {
		content += "\n" + WarningStyle.Render(
			fmt.Sprintf("Degraded verdicts: %d (raw responses kept in the audit trail)", degraded))
	}

	return RenderBox("Review Summary", content)
}

func totalDegraded(counts metrics.DegradedCounts) int {
	return counts.Classification + counts.PartialMatchReview + counts.NoMatchReview
}
