package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/bandscore/internal/domain/bands"
	"github.com/okian/bandscore/internal/domain/model"
)

// Completer sends one system/user exchange to a language model and returns
// the raw reply text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Mode selects how many LLM calls a scoring run makes.
type Mode string

// Scoring modes.
const (
	// ModeCombined asks for bands and feedback in one call.
	ModeCombined Mode = "combined"
	// ModeSplit asks for bands first, then for feedback on those bands.
	ModeSplit Mode = "split"
)

// LLMScorer scores answers with a language model.
type LLMScorer struct {
	completer Completer
	rubric    *Rubric
	mode      Mode
	scale     bands.Scale
}

// LLMOption configures an LLMScorer.
type LLMOption func(*LLMScorer)

// WithMode sets the scoring mode. Unknown modes are ignored.
func WithMode(m Mode) LLMOption {
	return func(s *LLMScorer) {
		if m == ModeCombined || m == ModeSplit {
			s.mode = m
		}
	}
}

// WithRubric sets the rubric embedded in prompts.
func WithRubric(r *Rubric) LLMOption {
	return func(s *LLMScorer) {
		if r != nil {
			s.rubric = r
		}
	}
}

// WithScale sets the band scale used to finalize model output.
func WithScale(sc bands.Scale) LLMOption {
	return func(s *LLMScorer) { s.scale = sc }
}

// NewLLMScorer creates an LLMScorer over c.
func NewLLMScorer(c Completer, opts ...LLMOption) *LLMScorer {
	s := &LLMScorer{completer: c, mode: ModeCombined, scale: bands.DefaultScale}
	for _, opt := range opts {
		opt(s)
	}
	if s.rubric == nil {
		s.rubric = DefaultRubric()
	}
	return s
}

// Name identifies the scorer in results.
func (s *LLMScorer) Name() string { return "llm-" + string(s.mode) }

// Score implements Scorer.
func (s *LLMScorer) Score(ctx context.Context, in Input) (Output, error) {
	if s.completer == nil {
		return Output{}, ErrNoCompleter
	}
	if s.mode == ModeSplit {
		return s.scoreSplit(ctx, in)
	}

	reply, err := s.completer.Complete(ctx, s.systemPrompt(combinedSchema), userPrompt(in, nil))
	if err != nil {
		return Output{}, fmt.Errorf("llm combined call: %w", err)
	}
	var resp llmResponse
	if err := decodeReply(reply, &resp); err != nil {
		return Output{}, err
	}
	b, err := resp.bands(s.scale)
	if err != nil {
		return Output{}, err
	}
	return Output{Bands: b, Feedback: resp.feedback(b), Scorer: s.Name()}, nil
}

func (s *LLMScorer) scoreSplit(ctx context.Context, in Input) (Output, error) {
	reply, err := s.completer.Complete(ctx, s.systemPrompt(bandsSchema), userPrompt(in, nil))
	if err != nil {
		return Output{}, fmt.Errorf("llm scoring call: %w", err)
	}
	var scored llmResponse
	if err := decodeReply(reply, &scored); err != nil {
		return Output{}, err
	}
	b, err := scored.bands(s.scale)
	if err != nil {
		return Output{}, err
	}

	reply, err = s.completer.Complete(ctx, s.systemPrompt(feedbackSchema), userPrompt(in, &b))
	if err != nil {
		return Output{}, fmt.Errorf("llm feedback call: %w", err)
	}
	var fb llmResponse
	if err := decodeReply(reply, &fb); err != nil {
		return Output{}, err
	}
	return Output{Bands: b, Feedback: fb.feedback(b), Scorer: s.Name()}, nil
}

const (
	combinedSchema = `{"band_scores": {"fluency_coherence": <band>, "lexical_resource": <band>, "grammatical_range_accuracy": <band>, "pronunciation": <band>}, "feedback": {"overall": "<two sentences>", "criteria": {"<criterion>": {"summary": "<one sentence>", "strengths": ["..."], "improvements": ["..."]}}}}`
	bandsSchema    = `{"band_scores": {"fluency_coherence": <band>, "lexical_resource": <band>, "grammatical_range_accuracy": <band>, "pronunciation": <band>}}`
	feedbackSchema = `{"feedback": {"overall": "<two sentences>", "criteria": {"<criterion>": {"summary": "<one sentence>", "strengths": ["..."], "improvements": ["..."]}}}}`
)

func (s *LLMScorer) systemPrompt(schema string) string {
	var sb strings.Builder
	sb.WriteString("You are a certified IELTS speaking examiner. Assess the candidate's answer against the band descriptors below. ")
	fmt.Fprintf(&sb, "Award bands between %.1f and %.1f in steps of 0.5. ", s.scale.Min, s.scale.Max)
	sb.WriteString("Pronunciation evidence is limited to recognition confidence and timing metrics; do not guess beyond it.\n\n")
	sb.WriteString(s.rubric.Prompt())
	sb.WriteString("\nRespond with a single JSON object and nothing else, using exactly this shape:\n")
	sb.WriteString(schema)
	sb.WriteString("\nCriterion keys are fluency_coherence, lexical_resource, grammatical_range_accuracy and pronunciation.")
	return sb.String()
}

func userPrompt(in Input, scored *model.BandScores) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\n", strings.TrimSpace(in.Prompt))
	fmt.Fprintf(&sb, "Transcript:\n%s\n\n", strings.TrimSpace(in.Transcript.Text))
	if m, err := json.Marshal(in.Metrics); err == nil {
		fmt.Fprintf(&sb, "Measured metrics: %s\n", m)
	}
	if len(in.Disfluencies) > 0 {
		parts := make([]string, 0, len(in.Disfluencies))
		for _, d := range in.Disfluencies {
			parts = append(parts, fmt.Sprintf("%s %q at %.1fs", d.Kind, d.Text, d.Start))
		}
		fmt.Fprintf(&sb, "Disfluencies: %s\n", strings.Join(parts, "; "))
	}
	if scored != nil {
		fmt.Fprintf(&sb, "\nBands already awarded: fluency_coherence %.1f, lexical_resource %.1f, grammatical_range_accuracy %.1f, pronunciation %.1f. Write feedback consistent with these bands.\n",
			scored.FluencyCoherence, scored.LexicalResource, scored.GrammaticalRange, scored.Pronunciation)
	}
	return sb.String()
}

// band accepts JSON numbers and numeric strings.
type band struct {
	v   float64
	set bool
}

func (b *band) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	b.v, b.set = v, true
	return nil
}

type llmCriterion struct {
	Summary      string   `json:"summary"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

type llmResponse struct {
	BandScores map[string]band `json:"band_scores"`
	Feedback   struct {
		Overall  string                  `json:"overall"`
		Criteria map[string]llmCriterion `json:"criteria"`
	} `json:"feedback"`
}

func (r llmResponse) bands(sc bands.Scale) (model.BandScores, error) {
	var raw model.BandScores
	for _, c := range model.Criteria {
		v, ok := r.BandScores[string(c)]
		if !ok || !v.set {
			return model.BandScores{}, fmt.Errorf("%w: missing band for %s", ErrMalformedResponse, c)
		}
		if v.v < 0 || v.v > 9 {
			return model.BandScores{}, fmt.Errorf("%w: band %v for %s out of range", ErrMalformedResponse, v.v, c)
		}
		raw.Set(c, v.v)
	}
	return sc.Finalize(raw), nil
}

func (r llmResponse) feedback(b model.BandScores) model.Feedback {
	fb := model.Feedback{
		Overall:  r.Feedback.Overall,
		Criteria: make(map[model.Criterion]model.CriterionFeedback, len(model.Criteria)),
	}
	for _, c := range model.Criteria {
		lc := r.Feedback.Criteria[string(c)]
		fb.Criteria[c] = model.CriterionFeedback{
			Band:         b.Get(c),
			Summary:      lc.Summary,
			Strengths:    lc.Strengths,
			Improvements: lc.Improvements,
		}
	}
	return fb
}

// decodeReply extracts the outermost JSON object from reply, tolerating code
// fences and surrounding prose.
func decodeReply(reply string, v any) error {
	obj, ok := extractJSON(reply)
	if !ok {
		return fmt.Errorf("%w: no json object found", ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func extractJSON(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
