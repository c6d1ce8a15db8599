package pipeline

import "errors"

var (
	// ErrNoSpeech is returned when transcription yields no words.
	ErrNoSpeech = errors.New("no speech detected")
	// ErrNoTranscriber is returned when the pipeline has no transcriber.
	ErrNoTranscriber = errors.New("transcriber not configured")
	// ErrNoScorer is returned when the pipeline has no scorer.
	ErrNoScorer = errors.New("scorer not configured")
)
