package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/okian/bandscore/internal/domain/model"
)

// DefaultOpenAIModel is the Whisper model used when none is configured.
const DefaultOpenAIModel = "whisper-1"

// OpenAI transcribes through the OpenAI audio transcription endpoint with
// word-level timestamps.
type OpenAI struct {
	client   oai.Client
	model    string
	language string
}

type openaiConfig struct {
	baseURL    string
	timeout    time.Duration
	language   string
	maxRetries int
}

// OpenAIOption configures the OpenAI backend.
type OpenAIOption func(*openaiConfig)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openaiConfig) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(c *openaiConfig) { c.timeout = d }
}

// WithLanguage sets the ISO-639-1 spoken language hint.
func WithLanguage(lang string) OpenAIOption {
	return func(c *openaiConfig) { c.language = lang }
}

// WithMaxRetries sets how often failed requests are retried.
func WithMaxRetries(n int) OpenAIOption {
	return func(c *openaiConfig) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// NewOpenAI creates an OpenAI transcription backend.
func NewOpenAI(apiKey, model string, opts ...OpenAIOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	cfg := &openaiConfig{maxRetries: 2}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	return &OpenAI{client: oai.NewClient(reqOpts...), model: model, language: cfg.language}, nil
}

// Transcribe implements pipeline.Transcriber.
func (o *OpenAI) Transcribe(ctx context.Context, audio []byte, filename string) (model.Transcript, error) {
	if filename == "" {
		filename = "answer.wav"
	}
	params := oai.AudioTranscriptionNewParams{
		File:                   oai.File(bytes.NewReader(audio), filename, contentType(filename)),
		Model:                  oai.AudioModel(o.model),
		ResponseFormat:         oai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"word", "segment"},
	}
	if o.language != "" {
		params.Language = param.NewOpt(o.language)
	}

	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return model.Transcript{}, fmt.Errorf("openai transcription: %w", err)
	}

	var v verboseResult
	if raw := resp.RawJSON(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return model.Transcript{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}
	if v.Text == "" {
		v.Text = resp.Text
	}
	return v.transcript(), nil
}
