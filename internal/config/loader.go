package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every configuration environment variable.
const EnvPrefix = "BANDSCORE_"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if BANDSCORE_CONFIG is set
//  3. env (prefix BANDSCORE_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// BANDSCORE_QUEUE_SIZE -> queue_size. Keys stay flat to match the koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg.FillerWords = splitList(cfg.FillerWords)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// splitList accepts both YAML lists and a single comma-separated value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, strings.ToLower(part))
			}
		}
	}
	return out
}

// Validate reports the first invalid setting wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.QueueSize <= 0:
		return invalid("queue_size must be positive, got %d", c.QueueSize)
	case c.WorkerCount <= 0:
		return invalid("worker_count must be positive, got %d", c.WorkerCount)
	case c.MaxUploadMB <= 0:
		return invalid("max_upload_mb must be positive, got %d", c.MaxUploadMB)
	case c.MaxListLimit <= 0:
		return invalid("max_list_limit must be positive, got %d", c.MaxListLimit)
	case c.SyncTimeoutMS < 0 || c.JobTimeoutMS < 0 || c.LLMTimeoutMS < 0:
		return invalid("timeouts must not be negative")
	case c.MinBand <= 0 || c.MaxBand > 9 || c.MinBand >= c.MaxBand:
		return invalid("band range [%g, %g] must satisfy 0 < min_band < max_band <= 9", c.MinBand, c.MaxBand)
	case c.PauseMS <= 0 || c.LongPauseMS < c.PauseMS:
		return invalid("pause_ms (%d) must be positive and not exceed long_pause_ms (%d)", c.PauseMS, c.LongPauseMS)
	case c.LowConfidence < 0 || c.LowConfidence > 1:
		return invalid("low_confidence must be within [0, 1], got %g", c.LowConfidence)
	case c.RetentionHours < 0:
		return invalid("retention_hours must not be negative")
	}

	if err := oneOf("log_format", c.LogFormat, "text", "json"); err != nil {
		return err
	}
	if err := oneOf("transcriber", c.Transcriber, "openai", "exec"); err != nil {
		return err
	}
	if err := oneOf("scoring_mode", c.ScoringMode, "combined", "split", "heuristic"); err != nil {
		return err
	}
	if err := oneOf("store_driver", c.StoreDriver, "memory", "sqlite"); err != nil {
		return err
	}
	if err := oneOf("trace_exporter", c.TraceExporter, "none", "stdout", "otlp"); err != nil {
		return err
	}

	if c.Transcriber == "exec" && strings.TrimSpace(c.TranscriptionCommand) == "" {
		return invalid("transcription_command is required for the exec transcriber")
	}
	if c.StoreDriver == "sqlite" && c.StorePath == "" {
		return invalid("store_path is required for the sqlite store")
	}
	if c.NATSURL != "" && c.NATSSubject == "" {
		return invalid("nats_subject is required when nats_url is set")
	}
	return nil
}

// NeedsOpenAI reports whether any configured component calls the OpenAI API.
func (c *Config) NeedsOpenAI() bool {
	return c.Transcriber == "openai" || c.ScoringMode != "heuristic"
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be one of %s, got %q", ErrInvalidConfig, key, strings.Join(allowed, "|"), value)
}
