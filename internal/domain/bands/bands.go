// Package bands implements IELTS band arithmetic.
package bands

import (
	"math"

	"github.com/okian/bandscore/internal/domain/model"
)

// Default band range.
const (
	DefaultMin = 5.0
	DefaultMax = 9.0
)

// Scale rounds and clamps bands into a fixed range.
type Scale struct {
	Min float64
	Max float64
}

// DefaultScale is the 5.0 to 9.0 scale.
var DefaultScale = Scale{Min: DefaultMin, Max: DefaultMax}

// NewScale returns a scale for [lo, hi]. Invalid ranges fall back to the default.
func NewScale(lo, hi float64) Scale {
	if lo <= 0 || hi <= lo || hi > 9 {
		return DefaultScale
	}
	return Scale{Min: lo, Max: hi}
}

func (s Scale) clamp(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return s.Min
	}
	return math.Max(s.Min, math.Min(s.Max, x))
}

// Round rounds x to the nearest half band, ties upward, and clamps it.
func (s Scale) Round(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return s.Min
	}
	return s.clamp(math.Floor(x*2+0.5) / 2)
}

// Overall derives the overall band from the four criteria.
// A mean fraction below .25 rounds down, below .75 rounds to the half band,
// otherwise up to the next whole band.
func (s Scale) Overall(b model.BandScores) float64 {
	sum := 0.0
	for _, c := range model.Criteria {
		v := b.Get(c)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = s.Min
		}
		sum += v
	}
	mean := sum / float64(len(model.Criteria))

	whole := math.Floor(mean)
	frac := mean - whole
	// guard against 6.7499999 style float noise
	frac = math.Round(frac*1e6) / 1e6
	switch {
	case frac < 0.25:
		return s.clamp(whole)
	case frac < 0.75:
		return s.clamp(whole + 0.5)
	default:
		return s.clamp(whole + 1)
	}
}

// Finalize rounds each criterion and recomputes Overall.
func (s Scale) Finalize(b model.BandScores) model.BandScores {
	var out model.BandScores
	for _, c := range model.Criteria {
		out.Set(c, s.Round(b.Get(c)))
	}
	out.Overall = s.Overall(out)
	return out
}

// Round uses DefaultScale.
func Round(x float64) float64 { return DefaultScale.Round(x) }

// Overall uses DefaultScale.
func Overall(b model.BandScores) float64 { return DefaultScale.Overall(b) }

// Finalize uses DefaultScale.
func Finalize(b model.BandScores) model.BandScores { return DefaultScale.Finalize(b) }
