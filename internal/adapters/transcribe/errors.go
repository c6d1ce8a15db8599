package transcribe

import "errors"

var (
	// ErrEmptyCommand is returned when the exec backend has no command.
	ErrEmptyCommand = errors.New("transcription command is empty")
	// ErrMissingAPIKey is returned when the OpenAI backend has no key.
	ErrMissingAPIKey = errors.New("openai api key is empty")
	// ErrDecode is returned when backend output cannot be parsed.
	ErrDecode = errors.New("decode transcription")
)
