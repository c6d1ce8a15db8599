// Package config defines service configuration structures and loading hooks.
package config

import (
	"context"
	"runtime"
)

// Config contains process configuration. Keys are flat and match the
// BANDSCORE_ environment variables, e.g. BANDSCORE_QUEUE_SIZE -> queue_size.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	QueueSize     int `koanf:"queue_size"`
	WorkerCount   int `koanf:"worker_count"`
	DedupeSize    int `koanf:"dedupe_size"`
	MaxUploadMB   int `koanf:"max_upload_mb"`
	SyncTimeoutMS int `koanf:"sync_timeout_ms"`
	JobTimeoutMS  int `koanf:"job_timeout_ms"`
	MaxListLimit  int `koanf:"max_list_limit"`

	// MinBand and MaxBand bound every reported band.
	MinBand float64 `koanf:"min_band"`
	MaxBand float64 `koanf:"max_band"`

	// Transcriber selects the speech-to-text backend: openai or exec.
	Transcriber           string `koanf:"transcriber"`
	TranscriptionModel    string `koanf:"transcription_model"`
	TranscriptionCommand  string `koanf:"transcription_command"`
	TranscriptionLanguage string `koanf:"transcription_language"`

	// OpenAIAPIKey falls back to OPENAI_API_KEY when empty.
	OpenAIAPIKey  string `koanf:"openai_api_key"`
	OpenAIBaseURL string `koanf:"openai_base_url"`

	LLMModel       string  `koanf:"llm_model"`
	LLMTimeoutMS   int     `koanf:"llm_timeout_ms"`
	LLMTemperature float64 `koanf:"llm_temperature"`
	LLMMaxRetries  int     `koanf:"llm_max_retries"`

	// ScoringMode is combined, split or heuristic.
	ScoringMode string `koanf:"scoring_mode"`
	// ScoringFallback scores with the heuristic scorer when the LLM fails.
	ScoringFallback bool `koanf:"scoring_fallback"`
	// RubricPath points at a YAML rubric replacing the built-in descriptors.
	RubricPath string `koanf:"rubric_path"`

	PauseMS            int      `koanf:"pause_ms"`
	LongPauseMS        int      `koanf:"long_pause_ms"`
	SilenceThresholdDB float64  `koanf:"silence_threshold_db"`
	FillerWords        []string `koanf:"filler_words"`
	LowConfidence      float64  `koanf:"low_confidence"`
	MaxFeedbackItems   int      `koanf:"max_feedback_items"`

	// StoreDriver is memory or sqlite.
	StoreDriver    string `koanf:"store_driver"`
	StorePath      string `koanf:"store_path"`
	RetentionHours int    `koanf:"retention_hours"`

	// NATSURL enables completion events when set.
	NATSURL     string `koanf:"nats_url"`
	NATSSubject string `koanf:"nats_subject"`

	// TraceExporter is none, stdout or otlp.
	TraceExporter string `koanf:"trace_exporter"`
	OTLPEndpoint  string `koanf:"otlp_endpoint"`
	OTLPInsecure  bool   `koanf:"otlp_insecure"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		QueueSize:          256,
		WorkerCount:        runtime.NumCPU(),
		DedupeSize:         50_000,
		MaxUploadMB:        25,
		SyncTimeoutMS:      60_000,
		JobTimeoutMS:       180_000,
		MaxListLimit:       100,
		MinBand:            5,
		MaxBand:            9,
		Transcriber:        "openai",
		TranscriptionModel: "whisper-1",
		LLMModel:           "gpt-4o-mini",
		LLMTimeoutMS:       60_000,
		LLMTemperature:     0.2,
		LLMMaxRetries:      2,
		ScoringMode:        "combined",
		ScoringFallback:    true,
		PauseMS:            250,
		LongPauseMS:        1000,
		SilenceThresholdDB: -40,
		LowConfidence:      0.5,
		MaxFeedbackItems:   3,
		StoreDriver:        "memory",
		StorePath:          "data/bandscore.db",
		NATSSubject:        "bandscore.assessments",
		TraceExporter:      "none",
		OTLPEndpoint:       "localhost:4317",
		OTLPInsecure:       true,
	}
}
