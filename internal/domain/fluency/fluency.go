// Package fluency derives speaking-rate and pause metrics from an alignment.
package fluency

import (
	"math"

	"github.com/okian/bandscore/internal/domain/align"
	"github.com/okian/bandscore/internal/domain/disfluency"
	"github.com/okian/bandscore/internal/domain/model"
)

// DefaultLongPauseMS is the threshold for a long pause.
const DefaultLongPauseMS = 1000

// Compute derives metrics. The result never contains NaN or Inf.
func Compute(al align.Alignment, ds []model.Disfluency, longPauseMS int) model.Metrics {
	if longPauseMS <= 0 {
		longPauseMS = DefaultLongPauseMS
	}
	longPause := float64(longPauseMS) / 1000

	filler := make(map[int]bool)
	m := model.Metrics{
		DurationSec:       al.Duration,
		SpeechDurationSec: al.SpeechDuration,
	}
	for _, d := range ds {
		switch d.Kind {
		case model.Filler:
			m.FillerCount++
			// multi-word fillers cover every word in their span
			for i := d.WordIndex; i < len(al.Words) && al.Words[i].Start < d.End; i++ {
				filler[i] = true
			}
			filler[d.WordIndex] = true
		case model.Repetition:
			m.RepetitionCount++
		case model.SelfCorrection:
			m.SelfCorrectionCount++
		}
	}

	types := make(map[string]struct{})
	confSum, confN := 0.0, 0
	for i, w := range al.Words {
		if w.Confidence > 0 {
			confSum += w.Confidence
			confN++
		}
		if filler[i] {
			continue
		}
		norm := disfluency.Normalize(w.Text)
		if norm == "" {
			continue
		}
		m.WordCount++
		types[norm] = struct{}{}
	}

	m.WordsPerMinute = perMinute(float64(m.WordCount), al.Duration)
	m.ArticulationRate = perMinute(float64(m.WordCount), al.SpeechDuration)
	m.TypeTokenRatio = ratio(float64(len(types)), float64(m.WordCount))
	m.FillersPer100Words = ratio(float64(m.FillerCount)*100, float64(m.WordCount))
	m.MeanWordConfidence = ratio(confSum, float64(confN))

	m.PauseCount = len(al.Pauses)
	total := 0.0
	for _, p := range al.Pauses {
		d := p.Duration()
		total += d
		if d+1e-9 >= longPause {
			m.LongPauseCount++
		}
	}
	m.MeanPauseSec = ratio(total, float64(m.PauseCount))
	m.PauseRatio = ratio(total, al.Duration)
	if len(al.Words) > 0 {
		m.MeanLengthOfRun = float64(len(al.Words)) / float64(m.PauseCount+1)
	}

	round(&m)
	return m
}

func perMinute(n, seconds float64) float64 {
	return ratio(n*60, seconds)
}

func ratio(a, b float64) float64 {
	if b <= 0 {
		return 0
	}
	v := a / b
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func round(m *model.Metrics) {
	r := func(v float64) float64 { return math.Round(v*1000) / 1000 }
	m.DurationSec = r(m.DurationSec)
	m.SpeechDurationSec = r(m.SpeechDurationSec)
	m.WordsPerMinute = r(m.WordsPerMinute)
	m.ArticulationRate = r(m.ArticulationRate)
	m.MeanPauseSec = r(m.MeanPauseSec)
	m.PauseRatio = r(m.PauseRatio)
	m.FillersPer100Words = r(m.FillersPer100Words)
	m.TypeTokenRatio = r(m.TypeTokenRatio)
	m.MeanLengthOfRun = r(m.MeanLengthOfRun)
	m.MeanWordConfidence = r(m.MeanWordConfidence)
}
