package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/chartwell-labs/second-opinion/internal/model"
	"github.com/chartwell-labs/second-opinion/internal/normalize"
)

// ClassificationStage grades each discrepant code on a chart as important
// or unimportant for radiology reporting.
type ClassificationStage struct {
	core core
}

// NewClassificationStage builds the classification stage.
func NewClassificationStage(invoker Invoker, logger *slog.Logger) (*ClassificationStage, error) {
	c, err := newCore(StageClassification, invoker, logger)
	if err != nil {
		return nil, err
	}
	return &ClassificationStage{core: c}, nil
}

// Classify reviews one case's discrepant codes. The returned set always
// covers the case: when no usable response comes back every code defaults
// to unimportant and the set is marked degraded.
func (s *ClassificationStage) Classify(ctx context.Context, c model.Case) (model.CaseClassification, Trace, error) {
	system, err := s.core.prompts.render("classification_system", nil)
	if err != nil {
		return model.CaseClassification{}, Trace{}, err
	}
	user, err := s.core.prompts.render("classification_user", promptData(c))
	if err != nil {
		return model.CaseClassification{}, Trace{}, err
	}

	// Which side each discrepant code came from is known locally; the
	// model only grades relevance.
	sources := make(map[string]model.CodeSource, len(c.SutherlandOnly)+len(c.AIOnly))
	for _, code := range c.SutherlandOnly {
		sources[model.NormalizeCode(code)] = model.SourceSutherlandOnly
	}
	for _, code := range c.AIOnly {
		sources[model.NormalizeCode(code)] = model.SourceAIOnly
	}

	var set model.CaseClassification
	decode := func(raw json.RawMessage) error {
		var cs model.CaseClassification
		if err := json.Unmarshal(raw, &cs); err != nil {
			return fmt.Errorf("decoding classifications: %w", err)
		}
		cs.PatientID = c.PatientID
		if len(cs.Classifications) == 0 {
			return fmt.Errorf("response carries no classifications")
		}
		for i := range cs.Classifications {
			source, ok := sources[model.NormalizeCode(cs.Classifications[i].Code)]
			if !ok {
				return fmt.Errorf("classification for %q does not match any discrepant code", cs.Classifications[i].Code)
			}
			cs.Classifications[i].Source = source
		}
		if err := cs.Validate(); err != nil {
			return err
		}
		set = cs
		return nil
	}

	ex, err := s.core.run(ctx, system, user, classificationFields(), decode)
	if err != nil {
		return model.CaseClassification{}, Trace{Calls: ex.calls}, err
	}
	if !ex.decoded {
		set = degradedClassification(c, ex.raw)
	}
	return set, Trace{Calls: ex.calls, Layer: ex.layer}, nil
}

func classificationFields() []normalize.Field {
	return []normalize.Field{
		{Name: "patient_id", Kind: normalize.KindString},
		{Name: "classifications", Kind: normalize.KindArray},
	}
}

// degradedClassification defaults every discrepant code to unimportant,
// keeping the raw response for audit. An unreviewed code is never promoted
// to important.
func degradedClassification(c model.Case, raw string) model.CaseClassification {
	classifications := make([]model.CodeClassification, 0, len(c.SutherlandOnly)+len(c.AIOnly))
	for _, code := range c.SutherlandOnly {
		classifications = append(classifications, degradedCode(code, model.SourceSutherlandOnly))
	}
	for _, code := range c.AIOnly {
		classifications = append(classifications, degradedCode(code, model.SourceAIOnly))
	}
	return model.CaseClassification{
		PatientID:       c.PatientID,
		Classifications: classifications,
		Degraded:        true,
		RawResponse:     raw,
	}
}

func degradedCode(code string, source model.CodeSource) model.CodeClassification {
	return model.CodeClassification{
		Code:           code,
		Source:         source,
		Classification: model.RelevanceUnimportant,
		Reasoning:      "no parseable classification response",
		ClinicalImpact: "unknown",
	}
}
