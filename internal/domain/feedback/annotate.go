// Package feedback builds transcript annotations and cleans up scorer feedback.
package feedback

import (
	"fmt"
	"sort"

	"github.com/okian/bandscore/internal/domain/align"
	"github.com/okian/bandscore/internal/domain/model"
)

// Annotation defaults.
const (
	DefaultLowConfidence = 0.5
	DefaultLongPauseMS   = 1000
)

// AnnotateOption configures Annotate.
type AnnotateOption func(*annotator)

// WithLowConfidence sets the confidence below which a word is flagged.
func WithLowConfidence(th float64) AnnotateOption {
	return func(a *annotator) {
		if th > 0 && th <= 1 {
			a.lowConfidence = th
		}
	}
}

// WithLongPauseMS sets the pause length that gets annotated.
func WithLongPauseMS(ms int) AnnotateOption {
	return func(a *annotator) {
		if ms > 0 {
			a.longPause = float64(ms) / 1000
		}
	}
}

type annotator struct {
	lowConfidence float64
	longPause     float64
}

var disfluencyType = map[model.DisfluencyKind]model.AnnotationType{
	model.Filler:         model.AnnotateFiller,
	model.Repetition:     model.AnnotateRepetition,
	model.SelfCorrection: model.AnnotateSelfCorrection,
}

// Annotate marks disfluencies, long pauses and poorly recognised words,
// ordered by start time.
func Annotate(al align.Alignment, ds []model.Disfluency, opts ...AnnotateOption) []model.Annotation {
	a := &annotator{lowConfidence: DefaultLowConfidence, longPause: float64(DefaultLongPauseMS) / 1000}
	for _, opt := range opts {
		opt(a)
	}

	out := make([]model.Annotation, 0, len(ds)+len(al.Pauses))
	for _, d := range ds {
		out = append(out, model.Annotation{
			Type:      disfluencyType[d.Kind],
			Start:     d.Start,
			End:       d.End,
			WordIndex: d.WordIndex,
			Text:      d.Text,
		})
	}
	for _, p := range al.Pauses {
		if p.Duration()+1e-9 < a.longPause {
			continue
		}
		out = append(out, model.Annotation{
			Type:      model.AnnotateLongPause,
			Start:     p.Start,
			End:       p.End,
			WordIndex: p.AfterWord,
			Note:      fmt.Sprintf("%.1fs pause", p.Duration()),
		})
	}
	for i, w := range al.Words {
		if w.Confidence <= 0 || w.Confidence >= a.lowConfidence {
			continue
		}
		out = append(out, model.Annotation{
			Type:      model.AnnotateLowConfidence,
			Start:     w.Start,
			End:       w.End,
			WordIndex: i,
			Text:      w.Text,
			Note:      fmt.Sprintf("confidence %.2f", w.Confidence),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].WordIndex < out[j].WordIndex
	})
	return out
}
