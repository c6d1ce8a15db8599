package model

// Criterion names one of the four IELTS speaking criteria.
type Criterion string

// The four speaking criteria, in rubric order.
const (
	FluencyCoherence Criterion = "fluency_coherence"
	LexicalResource  Criterion = "lexical_resource"
	GrammaticalRange Criterion = "grammatical_range_accuracy"
	Pronunciation    Criterion = "pronunciation"
)

// Criteria lists every criterion in rubric order.
var Criteria = []Criterion{FluencyCoherence, LexicalResource, GrammaticalRange, Pronunciation}

// BandScores holds the per-criterion bands and the derived overall band.
type BandScores struct {
	FluencyCoherence float64 `json:"fluency_coherence"`
	LexicalResource  float64 `json:"lexical_resource"`
	GrammaticalRange float64 `json:"grammatical_range_accuracy"`
	Pronunciation    float64 `json:"pronunciation"`
	Overall          float64 `json:"overall"`
}

// Get returns the band for c.
func (b BandScores) Get(c Criterion) float64 {
	switch c {
	case FluencyCoherence:
		return b.FluencyCoherence
	case LexicalResource:
		return b.LexicalResource
	case GrammaticalRange:
		return b.GrammaticalRange
	case Pronunciation:
		return b.Pronunciation
	}
	return 0
}

// Set stores v as the band for c. Unknown criteria are ignored.
func (b *BandScores) Set(c Criterion, v float64) {
	switch c {
	case FluencyCoherence:
		b.FluencyCoherence = v
	case LexicalResource:
		b.LexicalResource = v
	case GrammaticalRange:
		b.GrammaticalRange = v
	case Pronunciation:
		b.Pronunciation = v
	}
}

// Word is a single recognised token with timing in seconds from the start of
// the recording.
type Word struct {
	Text       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Timed reports whether the word carries usable timing.
func (w Word) Timed() bool { return w.End > w.Start }

// Transcript is the transcription stage output.
type Transcript struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration_sec,omitempty"`
	Words    []Word  `json:"words,omitempty"`
}

// Pause is a silent gap between two words.
type Pause struct {
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	AfterWord int     `json:"after_word"`
}

// Duration returns the pause length in seconds.
func (p Pause) Duration() float64 { return p.End - p.Start }

// DisfluencyKind classifies a disfluency.
type DisfluencyKind string

// Disfluency kinds.
const (
	Filler         DisfluencyKind = "filler"
	Repetition     DisfluencyKind = "repetition"
	SelfCorrection DisfluencyKind = "self_correction"
)

// Disfluency marks a filler, repetition or self-correction in the word stream.
type Disfluency struct {
	Kind      DisfluencyKind `json:"kind"`
	WordIndex int            `json:"word_index"`
	Start     float64        `json:"start"`
	End       float64        `json:"end"`
	Text      string         `json:"text"`
}

// Metrics are the fluency and pronunciation measurements fed to scoring.
type Metrics struct {
	DurationSec         float64 `json:"duration_sec"`
	SpeechDurationSec   float64 `json:"speech_duration_sec"`
	WordCount           int     `json:"word_count"`
	WordsPerMinute      float64 `json:"words_per_minute"`
	ArticulationRate    float64 `json:"articulation_rate"`
	PauseCount          int     `json:"pause_count"`
	LongPauseCount      int     `json:"long_pause_count"`
	MeanPauseSec        float64 `json:"mean_pause_sec"`
	PauseRatio          float64 `json:"pause_ratio"`
	FillerCount         int     `json:"filler_count"`
	FillersPer100Words  float64 `json:"fillers_per_100_words"`
	RepetitionCount     int     `json:"repetition_count"`
	SelfCorrectionCount int     `json:"self_correction_count"`
	TypeTokenRatio      float64 `json:"type_token_ratio"`
	MeanLengthOfRun     float64 `json:"mean_length_of_run"`
	MeanWordConfidence  float64 `json:"mean_word_confidence"`
}

// CriterionFeedback is the feedback for one criterion.
type CriterionFeedback struct {
	Band         float64  `json:"band"`
	Summary      string   `json:"summary"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// Feedback is the feedback object returned at the feedback and full detail levels.
type Feedback struct {
	Overall  string                          `json:"overall"`
	Criteria map[Criterion]CriterionFeedback `json:"criteria"`
}

// AnnotationType classifies a transcript annotation.
type AnnotationType string

// Annotation types.
const (
	AnnotateFiller         AnnotationType = "filler"
	AnnotateRepetition     AnnotationType = "repetition"
	AnnotateSelfCorrection AnnotationType = "self_correction"
	AnnotateLongPause      AnnotationType = "long_pause"
	AnnotateLowConfidence  AnnotationType = "low_confidence"
)

// Annotation highlights a span of the recording.
type Annotation struct {
	Type      AnnotationType `json:"type"`
	Start     float64        `json:"start"`
	End       float64        `json:"end"`
	WordIndex int            `json:"word_index"`
	Text      string         `json:"text,omitempty"`
	Note      string         `json:"note,omitempty"`
}

// Timings holds per-stage wall time in milliseconds.
type Timings map[string]int64

// Result is everything the pipeline derives from one recording.
type Result struct {
	Bands       BandScores   `json:"band_scores"`
	Metrics     Metrics      `json:"metrics"`
	Feedback    Feedback     `json:"feedback"`
	Transcript  Transcript   `json:"transcript"`
	Annotations []Annotation `json:"annotations"`
	Timings     Timings      `json:"timings"`
	Scorer      string       `json:"scorer"`
}
