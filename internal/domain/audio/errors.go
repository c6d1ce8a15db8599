package audio

import "errors"

var (
	// ErrEmptyAudio is returned when no audio bytes were supplied.
	ErrEmptyAudio = errors.New("empty audio")
	// ErrUnsupportedFormat is returned for input that is not PCM WAV.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)
