// Package llm provides language model completers for scoring.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/okian/bandscore/pkg/metrics"
)

var (
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("openai api key is empty")
	// ErrMissingModel is returned when no model is configured.
	ErrMissingModel = errors.New("llm model is empty")
	// ErrEmptyResponse is returned when the model returns no choices.
	ErrEmptyResponse = errors.New("empty choices in response")
)

// OpenAI is a chat completion Completer.
type OpenAI struct {
	client      oai.Client
	model       string
	temperature float64
	jsonMode    bool
}

type config struct {
	baseURL     string
	timeout     time.Duration
	temperature float64
	maxRetries  int
	jsonMode    bool
}

// Option configures the OpenAI completer.
type Option func(*config)

// WithBaseURL overrides the API base URL, for OpenAI-compatible servers.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithTemperature sets the sampling temperature. Zero leaves the server default.
func WithTemperature(t float64) Option {
	return func(c *config) {
		if t >= 0 && t <= 2 {
			c.temperature = t
		}
	}
}

// WithMaxRetries sets how often failed requests are retried.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithJSONMode toggles the json_object response format.
func WithJSONMode(on bool) Option {
	return func(c *config) { c.jsonMode = on }
}

// NewOpenAI creates a chat completer.
func NewOpenAI(apiKey, model string, opts ...Option) (*OpenAI, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if model == "" {
		return nil, ErrMissingModel
	}
	cfg := &config{maxRetries: 2, jsonMode: true}
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
	return &OpenAI{
		client:      oai.NewClient(reqOpts...),
		model:       model,
		temperature: cfg.temperature,
		jsonMode:    cfg.jsonMode,
	}, nil
}

// Complete implements scoring.Completer.
func (o *OpenAI) Complete(ctx context.Context, system, user string) (string, error) {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(system),
			oai.UserMessage(user),
		},
	}
	if o.temperature > 0 {
		params.Temperature = param.NewOpt(o.temperature)
	}
	if o.jsonMode {
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		metrics.RecordLLMRequest("error")
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		metrics.RecordLLMRequest("empty")
		return "", ErrEmptyResponse
	}
	metrics.RecordLLMRequest("ok")
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
