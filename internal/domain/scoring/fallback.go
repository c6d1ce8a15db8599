package scoring

import (
	"context"
	"fmt"

	"github.com/okian/bandscore/pkg/logger"
	"github.com/okian/bandscore/pkg/metrics"
)

// FallbackScorer tries a primary scorer and falls back to a secondary one
// when the primary fails for reasons other than the caller giving up.
type FallbackScorer struct {
	primary   Scorer
	secondary Scorer
	log       logger.Logger
}

// NewFallbackScorer creates a FallbackScorer.
func NewFallbackScorer(primary, secondary Scorer, log logger.Logger) *FallbackScorer {
	return &FallbackScorer{primary: primary, secondary: secondary, log: logger.OrNop(log)}
}

// Score implements Scorer.
func (f *FallbackScorer) Score(ctx context.Context, in Input) (Output, error) {
	out, err := f.primary.Score(ctx, in)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return Output{}, err
	}

	f.log.Warn(ctx, "primary scorer failed, falling back", logger.Error(err))
	metrics.RecordErrorByComponent("scoring", "fallback")

	out, ferr := f.secondary.Score(ctx, in)
	if ferr != nil {
		return Output{}, fmt.Errorf("fallback scorer: %w (primary: %v)", ferr, err)
	}
	return out, nil
}
