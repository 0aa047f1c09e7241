package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chartwell-labs/second-opinion/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecomputeMetrics(t *testing.T) {
	outDir := t.TempDir()
	cases := testCases()

	code := "I10"
	require.NoError(t, writeJSON(filepath.Join(outDir, ClassificationsFile), []model.CaseClassification{
		{PatientID: "1003", Classifications: []model.CodeClassification{
			{Code: code, Source: model.SourceSutherlandOnly, Classification: model.RelevanceImportant},
		}},
	}))
	require.NoError(t, writeJSON(filepath.Join(outDir, PartialReviewsFile), []model.CaseVerdict{
		{
			PatientID: "1003",
			Analysis: []model.CodeComparison{{
				SutherlandCode:      &code,
				Status:              model.StatusSutherlandOnly,
				IsSutherlandCorrect: true,
				Severity:            model.SeverityMinor,
			}},
			CodingAccuracyScore: model.AccuracyScore{SutherlandScore: 1.0, AIScore: 0.5},
		},
	}))
	require.NoError(t, writeJSON(filepath.Join(outDir, NoMatchReviewsFile), []model.CaseVerdict{}))

	report, err := RecomputeMetrics(cases, outDir)
	require.NoError(t, err)
	assert.Equal(t, 4, report.OriginalAccuracy.ChartLevel.TotalPatients)

	// The metrics file is rewritten in place
	_, statErr := os.Stat(filepath.Join(outDir, MetricsFile))
	assert.NoError(t, statErr)
}

func TestRecomputeMetrics_MissingArtifact(t *testing.T) {
	_, err := RecomputeMetrics(testCases(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot recompute")
}

func TestLoadVerdicts_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), PartialReviewsFile)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := loadVerdicts(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse stage artifact")
}
