// Package pipeline runs the assessment stages for one recording.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/okian/bandscore/internal/domain/align"
	"github.com/okian/bandscore/internal/domain/audio"
	"github.com/okian/bandscore/internal/domain/bands"
	"github.com/okian/bandscore/internal/domain/disfluency"
	"github.com/okian/bandscore/internal/domain/feedback"
	"github.com/okian/bandscore/internal/domain/fluency"
	"github.com/okian/bandscore/internal/domain/model"
	"github.com/okian/bandscore/internal/domain/scoring"
	"github.com/okian/bandscore/internal/observe"
	"github.com/okian/bandscore/pkg/logger"
	"github.com/okian/bandscore/pkg/metrics"
)

// Stage names, in execution order.
const (
	StageAnalysis       = "analysis"
	StageTranscription  = "transcription"
	StageAlignment      = "alignment"
	StageFillers        = "filler_detection"
	StageMetrics        = "metrics"
	StageScoring        = "scoring"
	StageAnnotation     = "annotation"
	StagePostProcessing = "post_processing"
	StageTotal          = "total"
)

// Transcriber converts audio into a timed transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (model.Transcript, error)
}

// Pipeline runs analysis, transcription, alignment, filler detection,
// metrics, scoring, annotation and post-processing for a job.
type Pipeline struct {
	transcriber   Transcriber
	scorer        scoring.Scorer
	detector      *disfluency.Detector
	scale         bands.Scale
	audioOpts     []audio.Option
	minPauseMS    int
	longPauseMS   int
	lowConfidence float64
	maxItems      int
	log           logger.Logger
}

// New creates a Pipeline.
func New(t Transcriber, s scoring.Scorer, opts ...Option) *Pipeline {
	p := &Pipeline{
		transcriber:   t,
		scorer:        s,
		scale:         bands.DefaultScale,
		minPauseMS:    align.DefaultMinPauseMS,
		longPauseMS:   fluency.DefaultLongPauseMS,
		lowConfidence: feedback.DefaultLowConfidence,
		maxItems:      feedback.DefaultMaxItems,
		log:           logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.detector == nil {
		p.detector = disfluency.NewDetector()
	}
	return p
}

// stageTimer collects per-stage timings from concurrent stages.
type stageTimer struct {
	mu      sync.Mutex
	timings model.Timings
}

func (st *stageTimer) record(stage string, d time.Duration) {
	st.mu.Lock()
	st.timings[stage] = d.Milliseconds()
	st.mu.Unlock()
}

// stage runs fn inside a span and records its latency.
func (p *Pipeline) stage(ctx context.Context, st *stageTimer, name string, fn func(context.Context) error) error {
	ctx, span := observe.StartSpan(ctx, "pipeline."+name, trace.WithAttributes(attribute.String("stage", name)))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	st.record(name, elapsed)
	metrics.RecordStageLatency(name, float64(elapsed.Microseconds())/1000)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordErrorByComponent("pipeline", name)
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Run processes one job and returns its result.
func (p *Pipeline) Run(ctx context.Context, job model.Job) (*model.Result, error) {
	if p.transcriber == nil {
		return nil, ErrNoTranscriber
	}
	if p.scorer == nil {
		return nil, ErrNoScorer
	}

	ctx, span := observe.StartSpan(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("assessment.id", job.AssessmentID),
		attribute.Int("audio.bytes", len(job.Audio)),
	))
	defer span.End()

	log := p.log.With(logger.String("assessment_id", job.AssessmentID))
	st := &stageTimer{timings: model.Timings{}}
	start := time.Now()

	var (
		analysis   *audio.Analysis
		transcript model.Transcript
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.stage(gctx, st, StageAnalysis, func(context.Context) error {
			an, err := audio.Analyze(job.Audio, p.audioOpts...)
			switch {
			case err == nil:
				analysis = an
			case errors.Is(err, audio.ErrUnsupportedFormat):
				log.Debug(gctx, "no acoustic evidence, using transcript timings", logger.String("filename", job.Filename))
			default:
				log.Warn(gctx, "acoustic analysis failed", logger.Error(err))
			}
			return nil
		})
	})
	g.Go(func() error {
		return p.stage(gctx, st, StageTranscription, func(ctx context.Context) error {
			tr, err := p.transcriber.Transcribe(ctx, job.Audio, job.Filename)
			if err != nil {
				return err
			}
			transcript = tr
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var al align.Alignment
	_ = p.stage(ctx, st, StageAlignment, func(context.Context) error {
		al = align.Align(transcript, analysis, align.WithMinPauseMS(p.minPauseMS))
		return nil
	})
	if len(al.Words) == 0 {
		span.SetStatus(codes.Error, ErrNoSpeech.Error())
		return nil, ErrNoSpeech
	}

	var ds []model.Disfluency
	_ = p.stage(ctx, st, StageFillers, func(context.Context) error {
		ds = p.detector.Detect(al.Words)
		return nil
	})

	var m model.Metrics
	_ = p.stage(ctx, st, StageMetrics, func(context.Context) error {
		m = fluency.Compute(al, ds, p.longPauseMS)
		return nil
	})

	if strings.TrimSpace(transcript.Text) == "" {
		words := make([]string, len(al.Words))
		for i, w := range al.Words {
			words[i] = w.Text
		}
		transcript.Text = strings.Join(words, " ")
	}
	transcript.Words = al.Words
	transcript.Duration = al.Duration

	var out scoring.Output
	if err := p.stage(ctx, st, StageScoring, func(ctx context.Context) error {
		var err error
		out, err = p.scorer.Score(ctx, scoring.Input{
			Prompt:       job.Prompt,
			Transcript:   transcript,
			Metrics:      m,
			Disfluencies: ds,
		})
		return err
	}); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var anns []model.Annotation
	_ = p.stage(ctx, st, StageAnnotation, func(context.Context) error {
		anns = feedback.Annotate(al, ds,
			feedback.WithLongPauseMS(p.longPauseMS),
			feedback.WithLowConfidence(p.lowConfidence),
		)
		return nil
	})

	var final model.BandScores
	var fb model.Feedback
	_ = p.stage(ctx, st, StagePostProcessing, func(context.Context) error {
		final = p.scale.Finalize(out.Bands)
		fb = feedback.Normalize(out.Feedback, final, p.maxItems)
		return nil
	})

	total := time.Since(start)
	st.record(StageTotal, total)
	metrics.RecordPipelineLatency(float64(total.Microseconds()) / 1000)
	metrics.RecordScorerResult(out.Scorer)

	span.SetAttributes(
		attribute.Float64("band.overall", final.Overall),
		attribute.String("scorer", out.Scorer),
	)
	log.Info(ctx, "assessment scored",
		logger.Float64("overall", final.Overall),
		logger.String("scorer", out.Scorer),
		logger.Int("words", m.WordCount),
		logger.Int64("total_ms", total.Milliseconds()),
	)

	return &model.Result{
		Bands:       final,
		Metrics:     m,
		Feedback:    fb,
		Transcript:  transcript,
		Annotations: anns,
		Timings:     st.timings,
		Scorer:      out.Scorer,
	}, nil
}
