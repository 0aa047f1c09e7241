package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chartwell-labs/second-opinion/internal/service"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrNilParameter   = errors.New("parameter cannot be nil")
	ErrInvalidStatus  = errors.New("invalid run status")
	ErrEmptyVerdict   = errors.New("verdict payload cannot be empty")
	ErrInvalidAttempt = errors.New("invalid attempt record")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateRunStatus ensures a status is one of the known run states.
func validateRunStatus(status service.RunStatus) error {
	switch status {
	case service.RunStatusRunning,
		service.RunStatusCompleted,
		service.RunStatusFailed,
		service.RunStatusCanceled:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
}

// validateVerdict validates a verdict record before persisting.
func validateVerdict(record *service.VerdictRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record", ErrNilParameter)
	}
	if err := validateString(record.Stage, "stage"); err != nil {
		return err
	}
	if err := validateString(record.PatientID, "patientID"); err != nil {
		return err
	}
	if len(record.Verdict) == 0 {
		return ErrEmptyVerdict
	}
	return nil
}

// validateAttempt validates an attempt record before persisting.
func validateAttempt(record *service.AttemptRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record", ErrNilParameter)
	}
	if err := validateString(record.Stage, "stage"); err != nil {
		return err
	}
	if err := validateString(record.PatientID, "patientID"); err != nil {
		return err
	}
	if err := validateString(record.Deployment, "deployment"); err != nil {
		return err
	}
	// A successful attempt cannot also carry a failure kind.
	if record.OK && record.FailureKind != "" {
		return fmt.Errorf("%w: ok attempt with failure kind %q", ErrInvalidAttempt, record.FailureKind)
	}
	return nil
}
