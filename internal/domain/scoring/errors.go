package scoring

import "errors"

var (
	// ErrMalformedResponse is returned when an LLM reply cannot be parsed into scores.
	ErrMalformedResponse = errors.New("malformed llm response")
	// ErrInvalidRubric is returned when a rubric is missing criteria or bands.
	ErrInvalidRubric = errors.New("invalid rubric")
	// ErrNoCompleter is returned when an LLM scorer has no completer.
	ErrNoCompleter = errors.New("llm completer not configured")
)
