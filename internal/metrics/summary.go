package metrics

import "time"

// RunSummary is the run-level bookkeeping document written alongside the
// comprehensive report: case counts, stage timings, token usage, and which
// deployments served the calls. The pipeline engine fills it in as stages
// complete.
type RunSummary struct {
	Dataset         string       `json:"dataset"`
	TotalCases      int          `json:"total_cases"`
	StartedAt       time.Time    `json:"started_at"`
	FinishedAt      time.Time    `json:"finished_at"`
	DurationSeconds float64      `json:"duration_seconds"`
	Stages          []StageStats `json:"stages"`
}

// Finish stamps the end of the run and computes its duration.
func (s *RunSummary) Finish(at time.Time) {
	s.FinishedAt = at
	s.DurationSeconds = at.Sub(s.StartedAt).Seconds()
}

// StageStats is one stage's share of the run. A skipped stage reused its
// artifact from a previous run and made no model calls.
type StageStats struct {
	Stage           string         `json:"stage"`
	Cases           int            `json:"cases"`
	Degraded        int            `json:"degraded"`
	Skipped         bool           `json:"skipped,omitempty"`
	DurationSeconds float64        `json:"duration_seconds"`
	InputTokens     int64          `json:"input_tokens"`
	OutputTokens    int64          `json:"output_tokens"`
	DeploymentsUsed map[string]int `json:"deployments_used,omitempty"`
}

// RecordDeployment counts one model call served by the named deployment.
func (s *StageStats) RecordDeployment(name string) {
	if name == "" {
		return
	}
	if s.DeploymentsUsed == nil {
		s.DeploymentsUsed = make(map[string]int)
	}
	s.DeploymentsUsed[name]++
}
