package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/okian/bandscore/internal/domain/bands"
	"github.com/okian/bandscore/internal/domain/model"
)

// HeuristicName identifies results produced by HeuristicScorer.
const HeuristicName = "heuristic"

// Speaking-rate window considered natural, in words per minute.
const (
	naturalMinWPM = 110
	naturalMaxWPM = 170
	shortAnswer   = 20 // words

	// neutralSentenceLength stands in for transcripts without sentence
	// punctuation, where the whole answer would otherwise read as one sentence.
	neutralSentenceLength = 10
)

// HeuristicScorer maps metrics onto bands with fixed rules. It needs no
// network access and is deterministic.
type HeuristicScorer struct {
	rubric *Rubric
	scale  bands.Scale
}

// HeuristicOption configures a HeuristicScorer.
type HeuristicOption func(*HeuristicScorer)

// WithHeuristicRubric sets the rubric used for feedback summaries.
func WithHeuristicRubric(r *Rubric) HeuristicOption {
	return func(h *HeuristicScorer) {
		if r != nil {
			h.rubric = r
		}
	}
}

// WithHeuristicScale sets the band scale.
func WithHeuristicScale(s bands.Scale) HeuristicOption {
	return func(h *HeuristicScorer) { h.scale = s }
}

// NewHeuristicScorer creates a HeuristicScorer.
func NewHeuristicScorer(opts ...HeuristicOption) *HeuristicScorer {
	h := &HeuristicScorer{scale: bands.DefaultScale}
	for _, opt := range opts {
		opt(h)
	}
	if h.rubric == nil {
		h.rubric = DefaultRubric()
	}
	return h
}

// Score implements Scorer.
func (h *HeuristicScorer) Score(ctx context.Context, in Input) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, fmt.Errorf("heuristic scoring: %w", err)
	}

	m := in.Metrics
	sentLen := meanSentenceLength(in.Transcript.Text)

	var raw model.BandScores
	raw.FluencyCoherence = fluencyBand(m)
	raw.LexicalResource = 5 + (m.TypeTokenRatio-0.35)/0.3*4
	raw.GrammaticalRange = 5 + (sentLen-6)/12*4 - correctionPenalty(m)
	raw.Pronunciation = 6
	if m.MeanWordConfidence > 0 {
		raw.Pronunciation = 5 + (m.MeanWordConfidence-0.6)/0.35*4
	}
	if m.WordCount < shortAnswer {
		raw.LexicalResource = math.Min(raw.LexicalResource, 6)
		raw.GrammaticalRange = math.Min(raw.GrammaticalRange, 6)
	}

	b := h.scale.Finalize(raw)
	return Output{
		Bands:    b,
		Feedback: h.feedback(b, m, sentLen),
		Scorer:   HeuristicName,
	}, nil
}

func fluencyBand(m model.Metrics) float64 {
	band := 9.0
	switch {
	case m.WordsPerMinute < naturalMinWPM:
		band -= (naturalMinWPM - m.WordsPerMinute) / 20 * 0.5
	case m.WordsPerMinute > naturalMaxWPM:
		band -= (m.WordsPerMinute - naturalMaxWPM) / 20 * 0.5
	}
	band -= m.FillersPer100Words / 3 * 0.5
	if m.DurationSec > 0 {
		perMinute := float64(m.LongPauseCount) / (m.DurationSec / 60)
		band -= perMinute / 2 * 0.5
	}
	if m.WordCount > 0 {
		per100 := float64(m.RepetitionCount+m.SelfCorrectionCount) * 100 / float64(m.WordCount)
		band -= per100 / 4 * 0.5
	}
	if m.WordCount < shortAnswer {
		band--
	}
	return band
}

func correctionPenalty(m model.Metrics) float64 {
	if m.WordCount == 0 {
		return 0
	}
	per100 := float64(m.SelfCorrectionCount) * 100 / float64(m.WordCount)
	return per100 / 5 * 0.5
}

// meanSentenceLength is the average number of words per sentence. Text with
// no terminal punctuation is capped at neutralSentenceLength.
func meanSentenceLength(text string) float64 {
	terminal := func(r rune) bool { return r == '.' || r == '!' || r == '?' }
	if !strings.ContainsFunc(text, terminal) {
		return math.Min(float64(len(strings.Fields(text))), neutralSentenceLength)
	}
	sentences := strings.FieldsFunc(text, terminal)
	n, words := 0, 0
	for _, s := range sentences {
		if w := len(strings.Fields(s)); w > 0 {
			n++
			words += w
		}
	}
	if n == 0 {
		return 0
	}
	return float64(words) / float64(n)
}

func (h *HeuristicScorer) feedback(b model.BandScores, m model.Metrics, sentLen float64) model.Feedback {
	fb := model.Feedback{Criteria: make(map[model.Criterion]model.CriterionFeedback, len(model.Criteria))}
	add := func(c model.Criterion, strengths, improvements []string) {
		fb.Criteria[c] = model.CriterionFeedback{
			Band:         b.Get(c),
			Summary:      h.rubric.Descriptor(c, b.Get(c)),
			Strengths:    strengths,
			Improvements: improvements,
		}
	}

	var s, imp []string
	if m.WordsPerMinute >= naturalMinWPM && m.WordsPerMinute <= naturalMaxWPM {
		s = append(s, fmt.Sprintf("Your speaking rate of %.0f words per minute sounds natural", m.WordsPerMinute))
	} else if m.WordsPerMinute > 0 && m.WordsPerMinute < naturalMinWPM {
		imp = append(imp, fmt.Sprintf("Aim for a steadier pace; %.0f words per minute is slow for this task", m.WordsPerMinute))
	} else if m.WordsPerMinute > naturalMaxWPM {
		imp = append(imp, "Slow down slightly so that ideas are easier to follow")
	}
	if m.FillersPer100Words > 3 {
		imp = append(imp, fmt.Sprintf("Reduce fillers such as \"um\" and \"you know\" (%d in this answer)", m.FillerCount))
	} else if m.WordCount >= shortAnswer {
		s = append(s, "You rarely rely on filler words")
	}
	if m.LongPauseCount > 0 {
		imp = append(imp, fmt.Sprintf("Keep talking through %d long hesitation(s) by using linking phrases", m.LongPauseCount))
	}
	if m.WordCount < shortAnswer {
		imp = append(imp, "Extend your answer with reasons and examples")
	}
	add(model.FluencyCoherence, s, imp)

	s, imp = nil, nil
	switch {
	case m.TypeTokenRatio >= 0.55:
		s = append(s, "You use a varied range of vocabulary")
	case m.TypeTokenRatio > 0 && m.TypeTokenRatio < 0.45:
		imp = append(imp, "Vary your vocabulary; several words are repeated often")
	}
	imp = append(imp, "Use a few less common words or idiomatic phrases related to the topic")
	add(model.LexicalResource, s, imp)

	s, imp = nil, nil
	if sentLen >= 12 {
		s = append(s, "You produce extended sentences")
	} else {
		imp = append(imp, "Link ideas into complex sentences with words like because, although or which")
	}
	if m.SelfCorrectionCount > 2 {
		imp = append(imp, "Plan sentences ahead to reduce self-corrections")
	}
	add(model.GrammaticalRange, s, imp)

	s, imp = nil, nil
	switch {
	case m.MeanWordConfidence >= 0.85:
		s = append(s, "Your speech was recognised clearly")
	case m.MeanWordConfidence > 0 && m.MeanWordConfidence < 0.7:
		imp = append(imp, "Some words were hard to recognise; focus on clear word endings and stress")
	}
	add(model.Pronunciation, s, imp)

	best, worst := model.Criteria[0], model.Criteria[0]
	for _, c := range model.Criteria[1:] {
		if b.Get(c) > b.Get(best) {
			best = c
		}
		if b.Get(c) < b.Get(worst) {
			worst = c
		}
	}
	fb.Overall = fmt.Sprintf("Estimated overall band %.1f. Your strongest area is %s; focus next on %s",
		b.Overall, h.rubric.Name(best), h.rubric.Name(worst))
	return fb
}
