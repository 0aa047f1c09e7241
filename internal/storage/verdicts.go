package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/chartwell-labs/second-opinion/internal/service"
)

// SaveVerdict persists one stage verdict for a case. Saving again for the
// same run, stage, and patient replaces the earlier row, so a resumed run
// ends with exactly one verdict per case and stage.
func (s *SQLiteStorage) SaveVerdict(ctx context.Context, record *service.VerdictRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateVerdict(record); err != nil {
		return err
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verdicts (run_id, stage, patient_id, verdict, degraded, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, stage, patient_id) DO UPDATE SET
			verdict = excluded.verdict,
			degraded = excluded.degraded,
			created_at = excluded.created_at
	`,
		record.RunID,
		record.Stage,
		record.PatientID,
		string(record.Verdict),
		record.Degraded,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save verdict: %w", err)
	}
	return nil
}

// GetVerdicts retrieves all verdicts recorded for a run and stage, ordered
// by patient ID.
func (s *SQLiteStorage) GetVerdicts(ctx context.Context, runID int64, stage string) ([]service.VerdictRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(stage, "stage"); err != nil {
		return nil, err
	}
	return s.getVerdictsTx(ctx, s.db, runID, stage)
}

func (s *SQLiteStorage) getVerdictsTx(ctx context.Context, q queryable, runID int64, stage string) ([]service.VerdictRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT run_id, stage, patient_id, verdict, degraded, created_at
		FROM verdicts
		WHERE run_id = ? AND stage = ?
		ORDER BY patient_id
	`, runID, stage)
	if err != nil {
		return nil, fmt.Errorf("failed to query verdicts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []service.VerdictRecord
	for rows.Next() {
		var record service.VerdictRecord
		var verdict string

		err := rows.Scan(
			&record.RunID,
			&record.Stage,
			&record.PatientID,
			&verdict,
			&record.Degraded,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan verdict: %w", err)
		}

		record.Verdict = []byte(verdict)
		records = append(records, record)
	}

	return records, rows.Err()
}
