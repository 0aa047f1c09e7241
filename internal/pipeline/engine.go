// Package pipeline orchestrates a full review run: the three model review
// stages over the dataset, stage artifacts on disk, audit records in
// storage, and the final accuracy report.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chartwell-labs/second-opinion/internal/common"
	"github.com/chartwell-labs/second-opinion/internal/dataset"
	"github.com/chartwell-labs/second-opinion/internal/metrics"
	"github.com/chartwell-labs/second-opinion/internal/model"
	"github.com/chartwell-labs/second-opinion/internal/review"
	"github.com/chartwell-labs/second-opinion/internal/service"
	"github.com/schollz/progressbar/v3"
)

// DefaultWorkers bounds concurrent model calls when no cap is configured.
const DefaultWorkers = 3

// Config holds configuration options for a pipeline run.
type Config struct {
	Progress           io.Writer // enables per-stage progress bars when set
	Dataset            string    // dataset path, recorded with the run
	OutputDir          string
	Workers            int
	SkipClassification bool
	SkipPartialReview  bool
	SkipNoMatchReview  bool
}

// Engine drives the review stages over a dataset, writing stage artifacts,
// audit records, and the final report.
type Engine struct {
	classifier Classifier
	partial    Reviewer
	noMatch    Reviewer
	store      service.Storage
	logger     *slog.Logger
	config     Config
}

// New creates a pipeline engine with the given stages and audit store.
func New(classifier Classifier, partial, noMatch Reviewer, store service.Storage, config Config, logger *slog.Logger) *Engine {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		classifier: classifier,
		partial:    partial,
		noMatch:    noMatch,
		store:      store,
		logger:     logger,
		config:     config,
	}
}

// Result bundles what a finished run produced.
type Result struct {
	Report  *metrics.Report
	Summary *metrics.RunSummary
	RunID   int64
}

// Run executes the stage sequence over cases: classification, partial-match
// review, no-match review, then metrics. Stage artifacts are flushed to the
// output directory even when a stage aborts, so completed verdicts are
// never discarded.
func (e *Engine) Run(ctx context.Context, cases []model.Case) (*Result, error) {
	if len(cases) == 0 {
		return nil, common.ErrNoCases
	}

	if err := os.MkdirAll(e.config.OutputDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	runID, err := e.store.CreateRun(ctx, e.config.Dataset, e.config.OutputDir, len(cases))
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	e.logger.Info("Starting review pipeline",
		"run_id", runID,
		"cases", len(cases),
		"workers", e.config.Workers,
		"output_dir", e.config.OutputDir)

	summary := &metrics.RunSummary{
		Dataset:    e.config.Dataset,
		TotalCases: len(cases),
		StartedAt:  time.Now().UTC(),
	}

	report, runErr := e.runStages(ctx, runID, cases, summary)

	summary.Finish(time.Now().UTC())
	if err := writeJSON(filepath.Join(e.config.OutputDir, SummaryFile), summary); err != nil {
		e.logger.Error("Failed to write run summary", "error", err)
	}

	status := service.RunStatusCompleted
	switch {
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		status = service.RunStatusCanceled
	case runErr != nil:
		status = service.RunStatusFailed
	}
	// Run bookkeeping must survive a canceled stage context.
	if err := e.store.FinishRun(context.Background(), runID, status); err != nil {
		e.logger.Warn("Failed to close run record", "run_id", runID, "error", err)
	}

	if runErr != nil {
		return nil, runErr
	}

	e.logger.Info("Review pipeline finished",
		"run_id", runID,
		"duration_seconds", summary.DurationSeconds)
	return &Result{Report: report, Summary: summary, RunID: runID}, nil
}

func (e *Engine) runStages(ctx context.Context, runID int64, cases []model.Case, summary *metrics.RunSummary) (*metrics.Report, error) {
	classifications, err := e.classificationStage(ctx, runID, dataset.WithDiscrepancies(cases), summary)
	if err != nil {
		return nil, err
	}

	partialReviews, err := e.reviewStage(ctx, runID, review.StagePartialMatch, e.partial,
		dataset.ByMatchResult(cases, model.PartialMatch), e.config.SkipPartialReview, PartialReviewsFile, summary)
	if err != nil {
		return nil, err
	}

	noMatchReviews, err := e.reviewStage(ctx, runID, review.StageNoMatch, e.noMatch,
		dataset.ByMatchResult(cases, model.NoMatch), e.config.SkipNoMatchReview, NoMatchReviewsFile, summary)
	if err != nil {
		return nil, err
	}

	report := metrics.NewCalculator(cases).Comprehensive(metrics.Inputs{
		Classifications: classifications,
		PartialReviews:  partialReviews,
		NoMatchReviews:  noMatchReviews,
	})
	if err := writeJSON(filepath.Join(e.config.OutputDir, MetricsFile), report); err != nil {
		return nil, err
	}
	return report, nil
}

// classificationStage runs (or resumes) code classification over every case
// with at least one discrepant code.
func (e *Engine) classificationStage(ctx context.Context, runID int64, targets []model.Case, summary *metrics.RunSummary) ([]model.CaseClassification, error) {
	path := filepath.Join(e.config.OutputDir, ClassificationsFile)
	if e.config.SkipClassification {
		loaded, err := loadClassifications(path)
		if err != nil {
			return nil, fmt.Errorf("cannot resume without a classification artifact: %w", err)
		}
		summary.Stages = append(summary.Stages, metrics.StageStats{
			Stage:   review.StageClassification,
			Cases:   len(loaded),
			Skipped: true,
		})
		e.logger.Info("Reusing classification artifact", "cases", len(loaded))
		return loaded, nil
	}

	classifications, stats, err := e.classifyCases(ctx, runID, targets)
	summary.Stages = append(summary.Stages, stats)
	if writeErr := writeJSON(path, classifications); writeErr != nil {
		if err == nil {
			err = writeErr
		} else {
			e.logger.Error("Failed to flush classification artifact", "error", writeErr)
		}
	}
	return classifications, err
}

// reviewStage runs (or resumes) one of the two verdict-producing stages.
func (e *Engine) reviewStage(ctx context.Context, runID int64, stage string, rev Reviewer, targets []model.Case, skip bool, artifact string, summary *metrics.RunSummary) ([]model.CaseVerdict, error) {
	path := filepath.Join(e.config.OutputDir, artifact)
	if skip {
		loaded, err := loadVerdicts(path)
		if err != nil {
			return nil, fmt.Errorf("cannot resume without a %s artifact: %w", stage, err)
		}
		summary.Stages = append(summary.Stages, metrics.StageStats{
			Stage:   stage,
			Cases:   len(loaded),
			Skipped: true,
		})
		e.logger.Info("Reusing stage artifact", "stage", stage, "cases", len(loaded))
		return loaded, nil
	}

	verdicts, stats, err := e.reviewCases(ctx, runID, stage, rev, targets)
	summary.Stages = append(summary.Stages, stats)
	if writeErr := writeJSON(path, verdicts); writeErr != nil {
		if err == nil {
			err = writeErr
		} else {
			e.logger.Error("Failed to flush stage artifact", "stage", stage, "error", writeErr)
		}
	}
	return verdicts, err
}

type classifyResult struct {
	err            error
	trace          review.Trace
	classification model.CaseClassification
	index          int
}

// classifyCases fans classification out over the worker pool. Results are
// written back by input index so completion order never reorders the
// artifact.
func (e *Engine) classifyCases(ctx context.Context, runID int64, targets []model.Case) ([]model.CaseClassification, metrics.StageStats, error) {
	stats := metrics.StageStats{Stage: review.StageClassification}
	if len(targets) == 0 {
		return []model.CaseClassification{}, stats, nil
	}

	start := time.Now()
	stageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int, len(targets))
	for i := range targets {
		jobs <- i
	}
	close(jobs)

	resultsChan := make(chan classifyResult, len(targets))

	var wg sync.WaitGroup
	wg.Add(e.config.Workers)
	for w := 0; w < e.config.Workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-stageCtx.Done():
					return
				default:
				}
				classification, trace, err := e.classifier.Classify(stageCtx, targets[i])
				resultsChan <- classifyResult{index: i, classification: classification, trace: trace, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	bar := e.stageBar(len(targets), stageDescription(review.StageClassification))
	out := make([]model.CaseClassification, len(targets))
	done := make([]bool, len(targets))
	var stageErr error

	for res := range resultsChan {
		if res.err != nil {
			if stageErr == nil {
				stageErr = fmt.Errorf("%s stage: %w", review.StageClassification, res.err)
				cancel()
			}
			continue
		}
		out[res.index] = res.classification
		done[res.index] = true
		if res.classification.Degraded {
			stats.Degraded++
		}
		e.audit(ctx, runID, review.StageClassification, res.classification.PatientID,
			res.classification, res.classification.Degraded, res.trace, &stats)
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	completed := make([]model.CaseClassification, 0, len(targets))
	for i, ok := range done {
		if ok {
			completed = append(completed, out[i])
		}
	}
	stats.Cases = len(completed)
	stats.DurationSeconds = time.Since(start).Seconds()
	return completed, stats, stageErr
}

type reviewResult struct {
	err     error
	trace   review.Trace
	verdict model.CaseVerdict
	index   int
}

// reviewCases is the verdict-producing twin of classifyCases, shared by the
// partial-match and no-match stages.
func (e *Engine) reviewCases(ctx context.Context, runID int64, stage string, rev Reviewer, targets []model.Case) ([]model.CaseVerdict, metrics.StageStats, error) {
	stats := metrics.StageStats{Stage: stage}
	if len(targets) == 0 {
		return []model.CaseVerdict{}, stats, nil
	}

	start := time.Now()
	stageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int, len(targets))
	for i := range targets {
		jobs <- i
	}
	close(jobs)

	resultsChan := make(chan reviewResult, len(targets))

	var wg sync.WaitGroup
	wg.Add(e.config.Workers)
	for w := 0; w < e.config.Workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-stageCtx.Done():
					return
				default:
				}
				verdict, trace, err := rev.Review(stageCtx, targets[i])
				resultsChan <- reviewResult{index: i, verdict: verdict, trace: trace, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	bar := e.stageBar(len(targets), stageDescription(stage))
	out := make([]model.CaseVerdict, len(targets))
	done := make([]bool, len(targets))
	var stageErr error

	for res := range resultsChan {
		if res.err != nil {
			if stageErr == nil {
				stageErr = fmt.Errorf("%s stage: %w", stage, res.err)
				cancel()
			}
			continue
		}
		out[res.index] = res.verdict
		done[res.index] = true
		if res.verdict.Degraded {
			stats.Degraded++
		}
		e.audit(ctx, runID, stage, res.verdict.PatientID,
			res.verdict, res.verdict.Degraded, res.trace, &stats)
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	completed := make([]model.CaseVerdict, 0, len(targets))
	for i, ok := range done {
		if ok {
			completed = append(completed, out[i])
		}
	}
	stats.Cases = len(completed)
	stats.DurationSeconds = time.Since(start).Seconds()
	return completed, stats, stageErr
}

// audit persists one finished case to the store and folds its trace into
// the stage stats. Audit failures are logged, never fatal: the artifact on
// disk remains the source of truth.
func (e *Engine) audit(ctx context.Context, runID int64, stage, patientID string, verdict any, degraded bool, trace review.Trace, stats *metrics.StageStats) {
	usage := trace.Usage()
	stats.InputTokens += usage.InputTokens
	stats.OutputTokens += usage.OutputTokens

	payload, err := json.Marshal(verdict)
	if err != nil {
		e.logger.Warn("Failed to encode verdict for audit",
			"stage", stage, "patient_id", patientID, "error", err)
	} else if err := e.store.SaveVerdict(ctx, &service.VerdictRecord{
		RunID:     runID,
		Stage:     stage,
		PatientID: patientID,
		Verdict:   payload,
		Degraded:  degraded,
	}); err != nil {
		e.logger.Warn("Failed to save verdict record",
			"stage", stage, "patient_id", patientID, "error", err)
	}

	for _, call := range trace.Calls {
		stats.RecordDeployment(call.Deployment)
		for _, retry := range call.Retries {
			e.recordAttempt(ctx, &service.AttemptRecord{
				RunID:       runID,
				Stage:       stage,
				PatientID:   patientID,
				Deployment:  retry.Deployment,
				FailureKind: string(retry.Kind),
				Error:       retry.Err.Error(),
			})
		}

		record := &service.AttemptRecord{
			RunID:      runID,
			Stage:      stage,
			PatientID:  patientID,
			Deployment: call.Deployment,
			OK:         call.OK(),
		}
		if call.Failure != nil {
			record.Deployment = call.Failure.Deployment
			record.FailureKind = string(call.Failure.Kind)
			record.Error = call.Failure.Err.Error()
		} else if degraded {
			// The transport succeeded but the stage could not use the
			// response; keep it for manual inspection.
			record.RawResponse = call.Text
		}
		e.recordAttempt(ctx, record)
	}
}

func (e *Engine) recordAttempt(ctx context.Context, record *service.AttemptRecord) {
	if record.Deployment == "" {
		record.Deployment = "unknown"
	}
	if err := e.store.RecordAttempt(ctx, record); err != nil {
		e.logger.Warn("Failed to record attempt",
			"stage", record.Stage, "patient_id", record.PatientID, "error", err)
	}
}

func stageDescription(stage string) string {
	switch stage {
	case review.StagePartialMatch:
		return "Reviewing partial matches"
	case review.StageNoMatch:
		return "Reviewing no-match charts"
	default:
		return "Classifying discrepant codes"
	}
}

func (e *Engine) stageBar(total int, description string) *progressbar.ProgressBar {
	if e.config.Progress == nil || total == 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(e.config.Progress),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan]"+description+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(e.config.Progress); err != nil {
				e.logger.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}
