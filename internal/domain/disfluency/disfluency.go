// Package disfluency detects fillers, repetitions and self-corrections in a
// timed word stream.
package disfluency

import (
	"sort"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/okian/bandscore/internal/domain/model"
)

// DefaultFillers is the built-in filler lexicon.
var DefaultFillers = []string{"um", "uh", "er", "erm", "ah", "hmm", "mm", "uhm", "you know", "i mean"}

// Default thresholds.
const (
	DefaultPhoneticThreshold = 0.9
	maxPrefixLen             = 4
	minPrefixLen             = 2
	minPhoneticLen           = 3
)

// function words that are often legitimately followed by a longer word
// starting with the same letters ("to today", "in inside").
var prefixStopwords = map[string]struct{}{
	"an": {}, "as": {}, "at": {}, "be": {}, "by": {}, "do": {}, "go": {},
	"he": {}, "in": {}, "is": {}, "it": {}, "me": {}, "my": {}, "no": {},
	"of": {}, "on": {}, "or": {}, "so": {}, "to": {}, "up": {}, "us": {},
	"we": {}, "the": {}, "and": {}, "for": {}, "not": {}, "you": {},
}

// Option configures a Detector.
type Option func(*Detector)

// WithFillers replaces the filler lexicon. Empty lists are ignored.
func WithFillers(fillers []string) Option {
	return func(d *Detector) {
		if len(fillers) > 0 {
			d.setFillers(fillers)
		}
	}
}

// WithPhoneticThreshold sets the Jaro-Winkler score needed for a phonetic self-correction.
func WithPhoneticThreshold(th float64) Option {
	return func(d *Detector) {
		if th > 0 && th <= 1 {
			d.phoneticThreshold = th
		}
	}
}

// Detector finds disfluencies. It is safe for concurrent use once built.
type Detector struct {
	fillers           [][]string // longest first
	phoneticThreshold float64
}

// NewDetector builds a Detector.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{phoneticThreshold: DefaultPhoneticThreshold}
	d.setFillers(DefaultFillers)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Detector) setFillers(list []string) {
	d.fillers = d.fillers[:0]
	for _, f := range list {
		toks := strings.Fields(strings.ToLower(f))
		if len(toks) > 0 {
			d.fillers = append(d.fillers, toks)
		}
	}
	sort.SliceStable(d.fillers, func(i, j int) bool { return len(d.fillers[i]) > len(d.fillers[j]) })
}

// Normalize lowercases a token and strips surrounding punctuation.
func Normalize(s string) string {
	return strings.TrimFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// IsFragment reports whether a raw token is a cut-off word such as "bec-".
func IsFragment(raw string) bool {
	t := strings.TrimRightFunc(strings.TrimSpace(raw), func(r rune) bool {
		return unicode.IsPunct(r) && r != '-'
	})
	return len(t) > 1 && strings.HasSuffix(t, "-")
}

// Detect returns disfluencies ordered by word index. Each word contributes
// at most one disfluency.
func (d *Detector) Detect(words []model.Word) []model.Disfluency {
	norm := make([]string, len(words))
	for i, w := range words {
		norm[i] = Normalize(w.Text)
	}

	var out []model.Disfluency
	prevContent := ""
	for i := 0; i < len(words); {
		if n := d.matchFiller(norm, i); n > 0 {
			out = append(out, model.Disfluency{
				Kind:      model.Filler,
				WordIndex: i,
				Start:     words[i].Start,
				End:       words[i+n-1].End,
				Text:      strings.Join(norm[i:i+n], " "),
			})
			i += n
			continue
		}

		cur := norm[i]
		switch {
		case cur == "":
		case prevContent != "" && cur == prevContent:
			out = append(out, mark(model.Repetition, i, words[i]))
		case i+1 < len(words) && d.corrected(words[i].Text, cur, norm[i+1]):
			out = append(out, mark(model.SelfCorrection, i, words[i]))
		}
		if cur != "" {
			prevContent = cur
		}
		i++
	}
	return out
}

func mark(kind model.DisfluencyKind, i int, w model.Word) model.Disfluency {
	return model.Disfluency{Kind: kind, WordIndex: i, Start: w.Start, End: w.End, Text: w.Text}
}

// matchFiller returns how many tokens starting at i form a filler, or 0.
func (d *Detector) matchFiller(norm []string, i int) int {
	for _, f := range d.fillers {
		if i+len(f) > len(norm) {
			continue
		}
		ok := true
		for k, tok := range f {
			if norm[i+k] != tok {
				ok = false
				break
			}
		}
		if ok {
			return len(f)
		}
	}
	return 0
}

// corrected reports whether cur was abandoned in favour of next.
func (d *Detector) corrected(raw, cur, next string) bool {
	if next == "" || cur == next {
		return false
	}
	if IsFragment(raw) {
		return true
	}
	if _, stop := prefixStopwords[cur]; !stop {
		l := len([]rune(cur))
		if l >= minPrefixLen && l <= maxPrefixLen && len([]rune(next)) > l && strings.HasPrefix(next, cur) {
			return true
		}
	}
	if len([]rune(cur)) < minPhoneticLen || len([]rune(next)) < minPhoneticLen {
		return false
	}
	if !codesOverlap(cur, next) {
		return false
	}
	return matchr.JaroWinkler(cur, next, false) >= d.phoneticThreshold
}

func codesOverlap(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}
