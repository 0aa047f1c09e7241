package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/chartwell-labs/second-opinion/internal/service"
)

// RecordAttempt appends one model call outcome to the audit trail. Unlike
// verdicts, attempts are never replaced: every call a case cost is kept,
// including the failures that preceded a degraded verdict.
func (s *SQLiteStorage) RecordAttempt(ctx context.Context, record *service.AttemptRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAttempt(record); err != nil {
		return err
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts (run_id, stage, patient_id, deployment, ok, failure_kind, error, raw_response, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.RunID,
		record.Stage,
		record.PatientID,
		record.Deployment,
		record.OK,
		record.FailureKind,
		record.Error,
		record.RawResponse,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// GetAttempts retrieves the attempt audit trail for a run in insertion
// order. An empty patientID returns every attempt in the run; otherwise the
// result is limited to the given case.
func (s *SQLiteStorage) GetAttempts(ctx context.Context, runID int64, patientID string) ([]service.AttemptRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getAttemptsTx(ctx, s.db, runID, patientID)
}

func (s *SQLiteStorage) getAttemptsTx(ctx context.Context, q queryable, runID int64, patientID string) ([]service.AttemptRecord, error) {
	query := `
		SELECT run_id, stage, patient_id, deployment, ok, failure_kind, error, raw_response, created_at
		FROM attempts
		WHERE run_id = ?`
	args := []any{runID}

	if patientID != "" {
		query += ` AND patient_id = ?`
		args = append(args, patientID)
	}
	query += ` ORDER BY id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []service.AttemptRecord
	for rows.Next() {
		var record service.AttemptRecord

		err := rows.Scan(
			&record.RunID,
			&record.Stage,
			&record.PatientID,
			&record.Deployment,
			&record.OK,
			&record.FailureKind,
			&record.Error,
			&record.RawResponse,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}

		records = append(records, record)
	}

	return records, rows.Err()
}
