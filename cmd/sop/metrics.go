package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/chartwell-labs/second-opinion/internal/cli"
	"github.com/chartwell-labs/second-opinion/internal/config"
	"github.com/chartwell-labs/second-opinion/internal/dataset"
	"github.com/chartwell-labs/second-opinion/internal/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func metricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Recompute the accuracy report from existing stage artifacts",
		Long: `Rebuild comprehensive_metrics.json from the stage artifacts of a previous
run, without calling any model deployment.

Useful after hand-correcting a stage artifact, or when only the report
needs regenerating.

Examples:
  sop metrics --input data/cases.json --output-dir output`,
		RunE: runMetrics,
	}

	// Flags
	cmd.Flags().StringP("input", "i", "", "Comparison dataset (JSON)")
	cmd.Flags().StringP("output-dir", "o", "output", "Directory holding the stage artifacts")

	// Bind to viper (errors are rare and can be ignored in practice)
	_ = viper.BindPFlag("metrics.input", cmd.Flags().Lookup("input"))
	_ = viper.BindPFlag("metrics.output_dir", cmd.Flags().Lookup("output-dir"))

	return cmd
}

func runMetrics(_ *cobra.Command, _ []string) error {
	input := viper.GetString("metrics.input")
	if input == "" {
		return fmt.Errorf("no input dataset given (use --input or metrics.input in config)")
	}
	input = config.ExpandPath(input)
	outputDir := config.ExpandPath(viper.GetString("metrics.output_dir"))

	slog.Info(cli.FormatTitle("Recomputing metrics"))
	slog.Info("Loading dataset and stage artifacts", "input", input, "output_dir", outputDir)

	cases, err := dataset.Load(input)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}

	report, err := pipeline.RecomputeMetrics(cases, outputDir)
	if err != nil {
		return err
	}

	original := report.Unified.OriginalAccuracy
	reviewed := report.Unified.PostReviewAccuracy
	content := fmt.Sprintf(`Cases: %d
Complete match rate: %.1f%% → %.1f%%
Code-level accuracy: %.1f%% → %.1f%%
Partial-to-complete conversions: %d`,
		len(cases),
		original.CompleteMatchRate*100, reviewed.CompleteMatchRate*100,
		original.CodeLevelAccuracy*100, reviewed.CodeLevelAccuracy*100,
		report.Improvements.PartialToCompleteConversions)

	fmt.Println(cli.RenderBox("Recomputed Metrics", content))
	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Report written to %s", filepath.Join(outputDir, pipeline.MetricsFile))))

	return nil
}
