package pipeline

import (
	"context"

	"github.com/chartwell-labs/second-opinion/internal/model"
	"github.com/chartwell-labs/second-opinion/internal/review"
)

// Classifier defines the contract for the code classification stage.
type Classifier interface {
	Classify(ctx context.Context, c model.Case) (model.CaseClassification, review.Trace, error)
}

// Reviewer defines the contract for the partial-match and no-match review
// stages.
type Reviewer interface {
	Review(ctx context.Context, c model.Case) (model.CaseVerdict, review.Trace, error)
}
