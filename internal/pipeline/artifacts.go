package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chartwell-labs/second-opinion/internal/metrics"
	"github.com/chartwell-labs/second-opinion/internal/model"
	"github.com/chartwell-labs/second-opinion/internal/review"
)

// Artifact file names written to the output directory. The stage artifacts
// are what the skip flags resume from; the metrics and summary files are
// what the dashboard reads.
const (
	ClassificationsFile = "code_classifications.json"
	PartialReviewsFile  = "partial_match_reviews.json"
	NoMatchReviewsFile  = "no_match_reviews.json"
	MetricsFile         = "comprehensive_metrics.json"
	SummaryFile         = "pipeline_summary.json"
)

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func loadClassifications(path string) ([]model.CaseClassification, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stage artifact: %w", err)
	}
	var classifications []model.CaseClassification
	if err := json.Unmarshal(data, &classifications); err != nil {
		return nil, fmt.Errorf("failed to parse stage artifact %s: %w", path, err)
	}
	return classifications, nil
}

func loadVerdicts(path string) ([]model.CaseVerdict, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stage artifact: %w", err)
	}
	var verdicts []model.CaseVerdict
	if err := json.Unmarshal(data, &verdicts); err != nil {
		return nil, fmt.Errorf("failed to parse stage artifact %s: %w", path, err)
	}
	return verdicts, nil
}

// RecomputeMetrics rebuilds the accuracy report from the stage artifacts in
// outputDir, without calling any model deployment, and rewrites the metrics
// file. All three stage artifacts must exist.
func RecomputeMetrics(cases []model.Case, outputDir string) (*metrics.Report, error) {
	classifications, err := loadClassifications(filepath.Join(outputDir, ClassificationsFile))
	if err != nil {
		return nil, fmt.Errorf("cannot recompute without a classification artifact: %w", err)
	}
	partialReviews, err := loadVerdicts(filepath.Join(outputDir, PartialReviewsFile))
	if err != nil {
		return nil, fmt.Errorf("cannot recompute without a %s artifact: %w", review.StagePartialMatch, err)
	}
	noMatchReviews, err := loadVerdicts(filepath.Join(outputDir, NoMatchReviewsFile))
	if err != nil {
		return nil, fmt.Errorf("cannot recompute without a %s artifact: %w", review.StageNoMatch, err)
	}

	report := metrics.NewCalculator(cases).Comprehensive(metrics.Inputs{
		Classifications: classifications,
		PartialReviews:  partialReviews,
		NoMatchReviews:  noMatchReviews,
	})
	if err := writeJSON(filepath.Join(outputDir, MetricsFile), report); err != nil {
		return nil, err
	}
	return report, nil
}
