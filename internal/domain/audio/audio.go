// Package audio extracts acoustic pause evidence from PCM WAV recordings.
package audio

import (
	"bytes"
	"fmt"
	"math"

	"github.com/go-audio/wav"
)

// Defaults for frame-level silence detection.
const (
	DefaultFrameMS            = 20
	DefaultSilenceThresholdDB = -40.0
	DefaultMinSilenceMS       = 250
)

// Interval is a time span in seconds.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Len returns the interval length in seconds.
func (i Interval) Len() float64 { return i.End - i.Start }

// Analysis is the outcome of acoustic analysis.
type Analysis struct {
	Duration   float64
	SampleRate int
	Channels   int
	Silences   []Interval
	Voiced     []Interval
}

// SilentFraction returns the share of [start, end] covered by silence.
func (a *Analysis) SilentFraction(start, end float64) float64 {
	if a == nil || end <= start {
		return 0
	}
	covered := 0.0
	for _, s := range a.Silences {
		lo := math.Max(start, s.Start)
		hi := math.Min(end, s.End)
		if hi > lo {
			covered += hi - lo
		}
	}
	return covered / (end - start)
}

// VoicedDuration returns the total voiced time in seconds.
func (a *Analysis) VoicedDuration() float64 {
	if a == nil {
		return 0
	}
	total := 0.0
	for _, v := range a.Voiced {
		total += v.Len()
	}
	return total
}

type analyzer struct {
	frameMS      int
	thresholdDB  float64
	minSilenceMS int
}

// Analyze decodes a PCM WAV payload and splits it into voiced and silent intervals.
func Analyze(data []byte, opts ...Option) (*Analysis, error) {
	a := &analyzer{
		frameMS:      DefaultFrameMS,
		thresholdDB:  DefaultSilenceThresholdDB,
		minSilenceMS: DefaultMinSilenceMS,
	}
	for _, opt := range opts {
		opt(a)
	}

	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, ErrUnsupportedFormat
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	rate := int(dec.SampleRate)
	channels := int(dec.NumChans)
	depth := int(dec.BitDepth)
	if rate <= 0 || channels <= 0 || depth <= 0 {
		return nil, ErrUnsupportedFormat
	}
	if len(buf.Data) == 0 {
		return nil, ErrEmptyAudio
	}

	frames := a.silentFrames(buf.Data, rate, channels, depth)
	frameSec := float64(a.frameMS) / 1000
	res := &Analysis{
		Duration:   float64(len(buf.Data)/channels) / float64(rate),
		SampleRate: rate,
		Channels:   channels,
	}
	a.intervals(res, frames, frameSec)
	return res, nil
}

// silentFrames reports, per frame, whether its RMS level is under the threshold.
func (a *analyzer) silentFrames(samples []int, rate, channels, depth int) []bool {
	fullScale := math.Pow(2, float64(depth-1))
	perFrame := rate * a.frameMS / 1000 * channels
	if perFrame <= 0 {
		perFrame = channels
	}

	out := make([]bool, 0, len(samples)/perFrame+1)
	for off := 0; off < len(samples); off += perFrame {
		end := off + perFrame
		if end > len(samples) {
			end = len(samples)
		}
		var sum float64
		for _, s := range samples[off:end] {
			v := float64(s) / fullScale
			sum += v * v
		}
		rms := math.Sqrt(sum / float64(end-off))
		db := math.Inf(-1)
		if rms > 0 {
			db = 20 * math.Log10(rms)
		}
		out = append(out, db < a.thresholdDB)
	}
	return out
}

func (a *analyzer) intervals(res *Analysis, silent []bool, frameSec float64) {
	minFrames := int(math.Ceil(float64(a.minSilenceMS) / float64(a.frameMS)))

	// short silent runs are treated as voiced
	for i := 0; i < len(silent); {
		if !silent[i] {
			i++
			continue
		}
		j := i
		for j < len(silent) && silent[j] {
			j++
		}
		if j-i < minFrames {
			for k := i; k < j; k++ {
				silent[k] = false
			}
		}
		i = j
	}

	for i := 0; i < len(silent); {
		j := i
		for j < len(silent) && silent[j] == silent[i] {
			j++
		}
		iv := Interval{
			Start: float64(i) * frameSec,
			End:   math.Min(float64(j)*frameSec, res.Duration),
		}
		if silent[i] {
			res.Silences = append(res.Silences, iv)
		} else {
			res.Voiced = append(res.Voiced, iv)
		}
		i = j
	}
}
