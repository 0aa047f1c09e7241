package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/chartwell-labs/second-opinion/internal/model"
	"github.com/chartwell-labs/second-opinion/internal/normalize"
)

// PartialMatchStage adjudicates charts where the human and AI code sets
// partially overlap, judging each discrepancy for correctness and severity.
type PartialMatchStage struct {
	core core
}

// NewPartialMatchStage builds the partial-match review stage.
func NewPartialMatchStage(invoker Invoker, logger *slog.Logger) (*PartialMatchStage, error) {
	c, err := newCore(StagePartialMatch, invoker, logger)
	if err != nil {
		return nil, err
	}
	return &PartialMatchStage{core: c}, nil
}

// Review adjudicates one partial-match case. N cases in always yields N
// verdicts out: an unusable response degrades the case instead of dropping
// it.
func (s *PartialMatchStage) Review(ctx context.Context, c model.Case) (model.CaseVerdict, Trace, error) {
	return reviewCase(ctx, &s.core, c, "partial_system", "partial_user", false)
}

// reviewCase is shared by the partial-match and no-match stages; the two
// differ only in templates and whether a match-potential assessment is
// required.
func reviewCase(ctx context.Context, c *core, cs model.Case, systemName, userName string, withPotential bool) (model.CaseVerdict, Trace, error) {
	system, err := c.prompts.render(systemName, nil)
	if err != nil {
		return model.CaseVerdict{}, Trace{}, err
	}
	user, err := c.prompts.render(userName, promptData(cs))
	if err != nil {
		return model.CaseVerdict{}, Trace{}, err
	}

	var verdict model.CaseVerdict
	decode := func(raw json.RawMessage) error {
		var v model.CaseVerdict
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decoding verdict: %w", err)
		}
		v.PatientID = cs.PatientID
		if len(v.Analysis) == 0 {
			return fmt.Errorf("verdict carries no comparisons")
		}
		if withPotential && v.MatchPotential == nil {
			return fmt.Errorf("verdict is missing match_potential")
		}
		if err := v.Validate(); err != nil {
			return err
		}
		verdict = v
		return nil
	}

	ex, err := c.run(ctx, system, user, verdictFields(withPotential), decode)
	if err != nil {
		return model.CaseVerdict{}, Trace{Calls: ex.calls}, err
	}
	if !ex.decoded {
		verdict = degradedVerdict(cs, ex.raw, withPotential)
	}
	return verdict, Trace{Calls: ex.calls, Layer: ex.layer}, nil
}

func verdictFields(withPotential bool) []normalize.Field {
	fields := []normalize.Field{
		{Name: "patient_id", Kind: normalize.KindString},
		{Name: "analysis", Kind: normalize.KindArray},
		{Name: "coding_accuracy_score", Kind: normalize.KindObject},
		{Name: "overall_assessment", Kind: normalize.KindString},
	}
	if withPotential {
		fields = append(fields, normalize.Field{Name: "match_potential", Kind: normalize.KindObject})
	}
	return fields
}
