// Package align places words on the recording timeline and finds pauses.
package align

import (
	"math"
	"sort"
	"strings"

	"github.com/okian/bandscore/internal/domain/audio"
	"github.com/okian/bandscore/internal/domain/model"
)

// DefaultMinPauseMS is the shortest inter-word gap reported as a pause.
const DefaultMinPauseMS = 250

// fallbackWordSec estimates speaking time per word when nothing else is known.
const fallbackWordSec = 0.4

// Alignment is the output of the alignment stage.
type Alignment struct {
	Words          []model.Word
	Pauses         []model.Pause
	SpeechDuration float64
	Duration       float64
}

// Option configures Align.
type Option func(*aligner)

// WithMinPauseMS sets the shortest gap counted as a pause.
func WithMinPauseMS(ms int) Option {
	return func(a *aligner) {
		if ms > 0 {
			a.minPause = float64(ms) / 1000
		}
	}
}

type aligner struct {
	minPause float64
}

// Align normalizes word timings and extracts pauses. When the transcript has
// no word timings they are distributed over the voiced parts of the audio.
// The analysis may be nil.
func Align(tr model.Transcript, an *audio.Analysis, opts ...Option) Alignment {
	a := &aligner{minPause: float64(DefaultMinPauseMS) / 1000}
	for _, opt := range opts {
		opt(a)
	}

	words := make([]model.Word, 0, len(tr.Words))
	for _, w := range tr.Words {
		w.Text = strings.TrimSpace(w.Text)
		if w.Text == "" {
			continue
		}
		words = append(words, w)
	}
	if len(words) == 0 && strings.TrimSpace(tr.Text) != "" {
		for _, f := range strings.Fields(tr.Text) {
			words = append(words, model.Word{Text: f})
		}
	}

	duration := tr.Duration
	if an != nil {
		duration = math.Max(duration, an.Duration)
	}

	timed := 0
	for _, w := range words {
		if w.Timed() {
			timed++
		}
	}
	spread := timed == 0 && len(words) > 0
	switch {
	case spread:
		if duration <= 0 {
			duration = float64(len(words)) * fallbackWordSec
		}
		distribute(words, timeline(an, duration))
	case timed < len(words):
		fillGaps(words, duration)
	}

	sort.SliceStable(words, func(i, j int) bool { return words[i].Start < words[j].Start })
	prevEnd := 0.0
	for i := range words {
		if words[i].Start < prevEnd {
			words[i].Start = prevEnd
		}
		if words[i].End < words[i].Start {
			words[i].End = words[i].Start
		}
		prevEnd = words[i].End
	}
	if n := len(words); n > 0 {
		duration = math.Max(duration, words[n-1].End)
	}

	out := Alignment{Words: words, Duration: duration}
	pauseTotal := 0.0
	for i := 1; i < len(words); i++ {
		start, end := words[i-1].End, words[i].Start
		gap := end - start
		if gap+1e-9 < a.minPause {
			continue
		}
		if an != nil && an.SilentFraction(start, end) < 0.5 {
			continue
		}
		out.Pauses = append(out.Pauses, model.Pause{Start: start, End: end, AfterWord: i - 1})
		pauseTotal += gap
	}
	if n := len(words); n > 0 {
		out.SpeechDuration = math.Max(0, words[n-1].End-words[0].Start-pauseTotal)
	}
	// Words spread over voiced spans cover exactly the voiced audio.
	if spread && an != nil && len(an.Voiced) > 0 {
		out.SpeechDuration = an.VoicedDuration()
	}
	return out
}

// fillGaps times each run of untimed words inside the gap between its timed
// neighbours, so sorting by start keeps transcript order.
func fillGaps(words []model.Word, duration float64) {
	prevEnd := 0.0
	for i := 0; i < len(words); {
		if words[i].Timed() {
			prevEnd = math.Max(prevEnd, words[i].End)
			i++
			continue
		}
		j := i
		for j < len(words) && !words[j].Timed() {
			j++
		}
		lo, hi := prevEnd, duration
		if j < len(words) {
			hi = words[j].Start
		}
		if j == len(words) && hi <= lo {
			hi = lo + float64(j-i)*fallbackWordSec
		}
		if hi < lo {
			hi = lo
		}
		distribute(words[i:j], []audio.Interval{{Start: lo, End: hi}})
		i = j
	}
}

// timeline returns the spans words may be spread over.
func timeline(an *audio.Analysis, duration float64) []audio.Interval {
	if an != nil && len(an.Voiced) > 0 {
		return an.Voiced
	}
	return []audio.Interval{{Start: 0, End: duration}}
}

// distribute assigns timings proportional to word length across spans.
func distribute(words []model.Word, spans []audio.Interval) {
	total := 0.0
	for _, s := range spans {
		total += s.Len()
	}
	weights := make([]float64, len(words))
	sum := 0.0
	for i, w := range words {
		weights[i] = float64(len([]rune(w.Text)) + 1)
		sum += weights[i]
	}

	acc := 0.0
	for i := range words {
		start := acc / sum * total
		acc += weights[i]
		end := acc / sum * total
		words[i].Start = locate(spans, start, false)
		words[i].End = locate(spans, end, true)
	}
}

// locate maps an offset into the concatenated spans onto absolute time. End
// offsets that fall on a span boundary stay in the earlier span.
func locate(spans []audio.Interval, offset float64, end bool) float64 {
	acc := 0.0
	for _, s := range spans {
		l := s.Len()
		if offset < acc+l || (end && offset <= acc+l+1e-9) {
			return s.Start + (offset - acc)
		}
		acc += l
	}
	return spans[len(spans)-1].End
}
