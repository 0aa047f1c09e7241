package review

import (
	"context"
	"log/slog"

	"github.com/chartwell-labs/second-opinion/internal/model"
)

// NoMatchStage adjudicates charts where the human and AI code sets share
// nothing, adding an assessment of whether the chart could be upgraded to a
// partial or complete match.
type NoMatchStage struct {
	core core
}

// NewNoMatchStage builds the no-match review stage.
func NewNoMatchStage(invoker Invoker, logger *slog.Logger) (*NoMatchStage, error) {
	c, err := newCore(StageNoMatch, invoker, logger)
	if err != nil {
		return nil, err
	}
	return &NoMatchStage{core: c}, nil
}

// Review adjudicates one no-match case. The verdict always carries a
// match-potential assessment; degraded verdicts assess it as false.
func (s *NoMatchStage) Review(ctx context.Context, c model.Case) (model.CaseVerdict, Trace, error) {
	return reviewCase(ctx, &s.core, c, "nomatch_system", "nomatch_user", true)
}
