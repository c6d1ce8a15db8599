package pipeline

import (
	"github.com/okian/bandscore/internal/domain/audio"
	"github.com/okian/bandscore/internal/domain/bands"
	"github.com/okian/bandscore/internal/domain/disfluency"
	"github.com/okian/bandscore/pkg/logger"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithDetector sets the disfluency detector.
func WithDetector(d *disfluency.Detector) Option {
	return func(p *Pipeline) {
		if d != nil {
			p.detector = d
		}
	}
}

// WithScale sets the band scale applied in post-processing.
func WithScale(s bands.Scale) Option {
	return func(p *Pipeline) { p.scale = s }
}

// WithAudioOptions sets acoustic analysis options.
func WithAudioOptions(opts ...audio.Option) Option {
	return func(p *Pipeline) { p.audioOpts = append(p.audioOpts, opts...) }
}

// WithMinPauseMS sets the shortest gap counted as a pause.
func WithMinPauseMS(ms int) Option {
	return func(p *Pipeline) {
		if ms > 0 {
			p.minPauseMS = ms
		}
	}
}

// WithLongPauseMS sets the long pause threshold for metrics and annotations.
func WithLongPauseMS(ms int) Option {
	return func(p *Pipeline) {
		if ms > 0 {
			p.longPauseMS = ms
		}
	}
}

// WithLowConfidence sets the confidence below which words are annotated.
func WithLowConfidence(th float64) Option {
	return func(p *Pipeline) {
		if th > 0 && th <= 1 {
			p.lowConfidence = th
		}
	}
}

// WithMaxFeedbackItems caps strengths and improvements per criterion.
func WithMaxFeedbackItems(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxItems = n
		}
	}
}
