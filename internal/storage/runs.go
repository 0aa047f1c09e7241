package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chartwell-labs/second-opinion/internal/common"
	"github.com/chartwell-labs/second-opinion/internal/service"
)

// CreateRun records the start of a pipeline run and returns its ID.
func (s *SQLiteStorage) CreateRun(ctx context.Context, dataset, outputDir string, caseCount int) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(dataset, "dataset"); err != nil {
		return 0, err
	}
	if err := validateString(outputDir, "outputDir"); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (dataset, output_dir, case_count, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		dataset,
		outputDir,
		caseCount,
		string(service.RunStatusRunning),
		time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run ID: %w", err)
	}
	return id, nil
}

// FinishRun stamps a run with its terminal status and finish time.
func (s *SQLiteStorage) FinishRun(ctx context.Context, runID int64, status service.RunStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRunStatus(status); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, finished_at = ? WHERE id = ?
	`, string(status), time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check run update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: run %d", common.ErrNotFound, runID)
	}
	return nil
}

// GetRun retrieves a single run by ID.
func (s *SQLiteStorage) GetRun(ctx context.Context, runID int64) (*service.Run, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getRunTx(ctx, s.db, runID)
}

func (s *SQLiteStorage) getRunTx(ctx context.Context, q queryable, runID int64) (*service.Run, error) {
	var run service.Run
	var statusStr string
	var finishedAt sql.NullTime

	err := q.QueryRowContext(ctx, `
		SELECT id, dataset, output_dir, case_count, status, started_at, finished_at
		FROM runs
		WHERE id = ?
	`, runID).Scan(
		&run.ID,
		&run.Dataset,
		&run.OutputDir,
		&run.CaseCount,
		&statusStr,
		&run.StartedAt,
		&finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %d", common.ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.Status = service.RunStatus(statusStr)
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return &run, nil
}
