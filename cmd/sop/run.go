package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chartwell-labs/second-opinion/internal/cli"
	"github.com/chartwell-labs/second-opinion/internal/config"
	"github.com/chartwell-labs/second-opinion/internal/dataset"
	"github.com/chartwell-labs/second-opinion/internal/pipeline"
	"github.com/chartwell-labs/second-opinion/internal/review"
	"github.com/chartwell-labs/second-opinion/internal/router"
	"github.com/chartwell-labs/second-opinion/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the review pipeline over a comparison dataset",
		Long: `Run the full review pipeline: classify discrepant codes, adjudicate
partial matches, review no-match charts, then write the accuracy report.

Each stage writes its artifact into the output directory as it finishes, so
an interrupted run can resume by skipping the stages that already completed.

Examples:
  # Full run
  sop run --input data/cases.json

  # Resume after the classification stage already finished
  sop run --input data/cases.json --skip-classification

  # Recompute metrics from the existing stage artifacts only
  sop run --input data/cases.json --skip-classification --skip-review --skip-no-match-review`,
		RunE: runPipeline,
	}

	// Flags
	cmd.Flags().StringP("input", "i", "", "Comparison dataset (JSON)")
	cmd.Flags().StringP("output-dir", "o", "output", "Directory for stage artifacts and reports")
	cmd.Flags().IntP("workers", "w", 0, "Concurrent review workers (0 = default)")
	cmd.Flags().Bool("skip-classification", false, "Reuse the existing classification artifact")
	cmd.Flags().Bool("skip-review", false, "Reuse the existing partial match review artifact")
	cmd.Flags().Bool("skip-no-match-review", false, "Reuse the existing no match review artifact")
	cmd.Flags().String("db", "", "Audit database path (default: <output-dir>/sop.db)")

	// Bind to viper (errors are rare and can be ignored in practice)
	_ = viper.BindPFlag("run.input", cmd.Flags().Lookup("input"))
	_ = viper.BindPFlag("run.output_dir", cmd.Flags().Lookup("output-dir"))
	_ = viper.BindPFlag("run.workers", cmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("run.skip_classification", cmd.Flags().Lookup("skip-classification"))
	_ = viper.BindPFlag("run.skip_review", cmd.Flags().Lookup("skip-review"))
	_ = viper.BindPFlag("run.skip_no_match_review", cmd.Flags().Lookup("skip-no-match-review"))
	_ = viper.BindPFlag("database.path", cmd.Flags().Lookup("db"))

	return cmd
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	// Set up interrupt handling
	interruptHandler := cli.NewInterruptHandler(nil)
	ctx = interruptHandler.HandleInterrupts(ctx, true)

	input := viper.GetString("run.input")
	if input == "" {
		return fmt.Errorf("no input dataset given (use --input or run.input in config)")
	}
	input = config.ExpandPath(input)
	outputDir := config.ExpandPath(viper.GetString("run.output_dir"))

	slog.Info(cli.FormatTitle("Reviewing coding discrepancies"))
	slog.Info("Starting chart review", "input", input, "output_dir", outputDir)

	cases, err := dataset.Load(input)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	slog.Info("Dataset loaded", "cases", len(cases))

	// Initialize storage
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = filepath.Join(outputDir, "sop.db")
	}
	dbPath = config.ExpandPath(dbPath)

	db, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("failed to run migrations: %w", migrateErr)
	}

	// Build the deployment router
	deployments, err := config.LoadDeployments()
	if err != nil {
		return fmt.Errorf("failed to load deployments: %w", err)
	}
	opts := config.LoadRouterOptions()
	opts.Logger = slog.Default()

	rt, err := router.New(deployments, opts)
	if err != nil {
		return fmt.Errorf("failed to build deployment router: %w", err)
	}
	defer rt.Close()

	slog.Info("Deployment router ready", "deployments", len(deployments))

	// Create the review stages
	classifier, err := review.NewClassificationStage(rt, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create classification stage: %w", err)
	}
	partial, err := review.NewPartialMatchStage(rt, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create partial match stage: %w", err)
	}
	noMatch, err := review.NewNoMatchStage(rt, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create no match stage: %w", err)
	}

	engine := pipeline.New(classifier, partial, noMatch, db, pipeline.Config{
		Progress:           os.Stderr,
		Dataset:            input,
		OutputDir:          outputDir,
		Workers:            viper.GetInt("run.workers"),
		SkipClassification: viper.GetBool("run.skip_classification"),
		SkipPartialReview:  viper.GetBool("run.skip_review"),
		SkipNoMatchReview:  viper.GetBool("run.skip_no_match_review"),
	}, slog.Default())

	result, err := engine.Run(ctx, cases)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println("\n\nReview canceled by user")
			return nil
		}
		return fmt.Errorf("review pipeline failed: %w", err)
	}

	fmt.Println("\n" + cli.FormatRunSummary(result.Summary, result.Report))
	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Artifacts written to %s", outputDir)))

	return nil
}
