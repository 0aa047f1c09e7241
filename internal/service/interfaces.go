// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"
)

// RunStatus tracks the lifecycle of a pipeline run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// Run is one recorded pipeline invocation.
type Run struct {
	StartedAt  time.Time
	FinishedAt *time.Time
	Dataset    string
	OutputDir  string
	Status     RunStatus
	ID         int64
	CaseCount  int
}

// VerdictRecord is one persisted stage verdict, stored as the JSON the
// stage artifact carries so the audit trail matches the files on disk.
type VerdictRecord struct {
	CreatedAt time.Time
	Stage     string
	PatientID string
	Verdict   []byte
	RunID     int64
	Degraded  bool
}

// AttemptRecord is one model call outcome kept for audit. Failed attempts
// keep the failure kind and, on total parse failure, the raw response.
type AttemptRecord struct {
	CreatedAt   time.Time
	Stage       string
	PatientID   string
	Deployment  string
	FailureKind string
	Error       string
	RawResponse string
	RunID       int64
	OK          bool
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Run bookkeeping
	CreateRun(ctx context.Context, dataset, outputDir string, caseCount int) (int64, error)
	FinishRun(ctx context.Context, runID int64, status RunStatus) error
	GetRun(ctx context.Context, runID int64) (*Run, error)

	// Verdict operations
	SaveVerdict(ctx context.Context, record *VerdictRecord) error
	GetVerdicts(ctx context.Context, runID int64, stage string) ([]VerdictRecord, error)

	// Attempt audit trail
	RecordAttempt(ctx context.Context, record *AttemptRecord) error
	GetAttempts(ctx context.Context, runID int64, patientID string) ([]AttemptRecord, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
