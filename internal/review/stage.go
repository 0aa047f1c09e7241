// Package review runs cases through the three LLM review stages: code
// classification, partial-match review, and no-match review. Every stage
// follows the same loop: render the stage prompt, route the call, normalize
// the response, decode it into the stage's typed verdict, and validate. A
// response that cannot be decoded earns one retry with a stricter JSON
// instruction; a second failure produces a degraded verdict with
// conservative defaults instead of dropping the case.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/chartwell-labs/second-opinion/internal/llm"
	"github.com/chartwell-labs/second-opinion/internal/model"
	"github.com/chartwell-labs/second-opinion/internal/normalize"
	"github.com/chartwell-labs/second-opinion/internal/router"
)

// Stage identifiers, used for artifacts, storage records, and logs.
const (
	StageClassification = "code_classification"
	StagePartialMatch   = "partial_match_review"
	StageNoMatch        = "no_match_review"
)

// Invoker routes one completion request to a model deployment. Satisfied by
// router.Router.
type Invoker interface {
	Invoke(ctx context.Context, req llm.CompletionRequest) router.AttemptResult
}

// Trace records how a verdict was obtained: every routed call made for the
// case, and which normalizer layer recovered the accepted response.
type Trace struct {
	Calls []router.AttemptResult
	Layer normalize.Layer
}

// Usage sums token usage across the trace's calls.
func (t Trace) Usage() llm.Usage {
	var usage llm.Usage
	for _, call := range t.Calls {
		usage.Add(call.Usage)
	}
	return usage
}

// core is the invoke → normalize → decode loop shared by all three stages.
type core struct {
	invoker Invoker
	prompts *promptBuilder
	logger  *slog.Logger
	stage   string
}

func newCore(stage string, invoker Invoker, logger *slog.Logger) (core, error) {
	prompts, err := newPromptBuilder()
	if err != nil {
		return core{}, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return core{invoker: invoker, prompts: prompts, logger: logger, stage: stage}, nil
}

// exchange is the raw outcome of running one case through the loop. When
// decoded is false the caller degrades the case using raw for the audit
// trail.
type exchange struct {
	calls   []router.AttemptResult
	raw     string
	layer   normalize.Layer
	decoded bool
}

// run drives up to two completion calls for one case. decode must reject
// anything that fails the stage's schema; its error becomes part of the
// stricter retry instruction. A non-nil error return means the whole run
// should stop: the deployment credentials are bad or the context is gone.
func (c *core) run(ctx context.Context, system, user string, fields []normalize.Field, decode func(json.RawMessage) error) (exchange, error) {
	var ex exchange
	prompt := user
	reason := ""

	for attempt := 1; attempt <= 2; attempt++ {
		if attempt > 1 {
			reminder, err := c.prompts.render("retry_reminder", reminderData{Reason: reason})
			if err != nil {
				return ex, fmt.Errorf("rendering retry reminder: %w", err)
			}
			prompt = user + "\n\n" + reminder
		}

		result := c.invoker.Invoke(ctx, llm.CompletionRequest{System: system, User: prompt})
		ex.calls = append(ex.calls, result)

		if result.Failure != nil {
			if ctx.Err() != nil {
				return ex, ctx.Err()
			}
			if result.Failure.Kind == router.FailureAuthError {
				return ex, fmt.Errorf("%s aborted: %w", c.stage, result.Failure.Err)
			}
			c.logger.Warn("no response for case, degrading",
				"stage", c.stage,
				"kind", result.Failure.Kind,
				"error", result.Failure.Err)
			return ex, nil
		}

		ex.raw = result.Text
		parsed, err := normalize.Parse(result.Text, fields)
		if err != nil {
			reason = "the response was not parseable as JSON"
			c.logger.Warn("response unparsable",
				"stage", c.stage,
				"attempt", attempt,
				"deployment", result.Deployment)
			continue
		}

		ex.layer = parsed.Layer
		if err := decode(parsed.JSON); err != nil {
			reason = err.Error()
			c.logger.Warn("response failed validation",
				"stage", c.stage,
				"attempt", attempt,
				"deployment", result.Deployment,
				"error", err)
			continue
		}

		ex.decoded = true
		if parsed.Layer != normalize.LayerStrict {
			c.logger.Debug("response recovered by fallback layer",
				"stage", c.stage,
				"layer", parsed.Layer.String())
		}
		return ex, nil
	}

	return ex, nil
}

const degradedJustification = "review unavailable; code requires manual verification"

// degradedVerdict is the conservative fallback when no usable review came
// back: every discrepant code is recorded with neither side trusted, scores
// zeroed, severity moderate, and the raw response preserved for audit.
func degradedVerdict(c model.Case, raw string, withPotential bool) model.CaseVerdict {
	analysis := make([]model.CodeComparison, 0, len(c.SutherlandOnly)+len(c.AIOnly))
	for _, code := range c.SutherlandOnly {
		analysis = append(analysis, model.CodeComparison{
			SutherlandCode:        &code,
			Status:                model.StatusSutherlandOnly,
			Severity:              model.SeverityModerate,
			ClinicalJustification: degradedJustification,
		})
	}
	for _, code := range c.AIOnly {
		analysis = append(analysis, model.CodeComparison{
			AICode:                &code,
			Status:                model.StatusAIOnly,
			Severity:              model.SeverityModerate,
			ClinicalJustification: degradedJustification,
		})
	}

	verdict := model.CaseVerdict{
		PatientID:         c.PatientID,
		Analysis:          analysis,
		OverallAssessment: "review unavailable; no parseable response",
		Degraded:          true,
		RawResponse:       raw,
	}
	if withPotential {
		verdict.MatchPotential = &model.MatchPotential{
			Reasoning: "review unavailable; match potential not assessed",
		}
	}
	return verdict
}
