// Package scoring turns metrics and transcripts into IELTS band scores and feedback.
package scoring

import (
	"context"

	"github.com/okian/bandscore/internal/domain/model"
)

// Input is everything a scorer may look at.
type Input struct {
	Prompt       string
	Transcript   model.Transcript
	Metrics      model.Metrics
	Disfluencies []model.Disfluency
}

// Output is a scorer's verdict. Bands are finalized; feedback is raw and is
// normalized later in the pipeline.
type Output struct {
	Bands    model.BandScores
	Feedback model.Feedback
	Scorer   string
}

// Scorer produces band scores for an answer.
type Scorer interface {
	// Score evaluates in, honoring ctx for cancellation.
	Score(ctx context.Context, in Input) (Output, error)
}
