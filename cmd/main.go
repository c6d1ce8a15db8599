package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/bandscore/internal/adapters/http/api"
	"github.com/okian/bandscore/internal/adapters/http/swagger"
	"github.com/okian/bandscore/internal/adapters/llm"
	"github.com/okian/bandscore/internal/adapters/notify"
	"github.com/okian/bandscore/internal/adapters/repository"
	"github.com/okian/bandscore/internal/adapters/transcribe"
	app "github.com/okian/bandscore/internal/app"
	"github.com/okian/bandscore/internal/config"
	"github.com/okian/bandscore/internal/domain/audio"
	"github.com/okian/bandscore/internal/domain/bands"
	"github.com/okian/bandscore/internal/domain/disfluency"
	"github.com/okian/bandscore/internal/domain/scoring"
	"github.com/okian/bandscore/internal/observe"
	"github.com/okian/bandscore/internal/pipeline"
	"github.com/okian/bandscore/pkg/logger"
	"github.com/okian/bandscore/pkg/metrics"
)

// HTTP server timeout constants. Writes are bounded by the sync timeout
// since wait=true responses block on the pipeline.
const (
	readTimeout               = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	writeTimeoutSlack         = 10 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
	serviceName               = "bandscore"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "bandscore exited with error", logger.Error(err))
		_ = logger.Sync()
		stop()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := checkCredentials(cfg); err != nil {
		return err
	}

	// Re-init with the configured format, then apply the level.
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	shutdownTracing, err := observe.Init(ctx, observe.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Exporter:       cfg.TraceExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		OTLPInsecure:   cfg.OTLPInsecure,
	}, log.Named("observe"))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn(ctx, "tracer shutdown failed", logger.Error(err))
		}
	}()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	proc, err := buildPipeline(cfg, log)
	if err != nil {
		_ = store.Close()
		return err
	}
	pub, err := buildPublisher(cfg, log)
	if err != nil {
		_ = store.Close()
		return err
	}

	svc := app.New(
		app.WithLogger(log.Named("service")),
		app.WithStore(store),
		app.WithProcessor(proc),
		app.WithPublisher(pub),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithJobTimeout(time.Duration(cfg.JobTimeoutMS)*time.Millisecond),
		app.WithRetention(time.Duration(cfg.RetentionHours)*time.Hour),
	)
	if err := svc.Start(ctx); err != nil {
		_ = pub.Close()
		_ = store.Close()
		return fmt.Errorf("start service: %w", err)
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	syncTimeout := time.Duration(cfg.SyncTimeoutMS) * time.Millisecond
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc,
		api.WithLogger(log.Named("api")),
		api.WithMaxUploadBytes(int64(cfg.MaxUploadMB)<<20),
		api.WithSyncTimeout(syncTimeout),
		api.WithMaxListLimit(cfg.MaxListLimit),
	).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      syncTimeout + writeTimeoutSlack,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("transcriber", cfg.Transcriber),
			logger.String("scoring_mode", cfg.ScoringMode),
			logger.String("store", cfg.StoreDriver),
			logger.Int("workers", cfg.WorkerCount))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return runErr
}

func buildStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case "sqlite":
		store, err := repository.OpenSQLite(ctx, cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	default:
		return repository.NewMemoryStore(ctx), nil
	}
}

// checkCredentials fails fast when an OpenAI-backed component has no key.
func checkCredentials(cfg *config.Config) error {
	if cfg.NeedsOpenAI() && cfg.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: openai_api_key (or OPENAI_API_KEY) is required for transcriber %q and scoring_mode %q",
			config.ErrInvalidConfig, cfg.Transcriber, cfg.ScoringMode)
	}
	return nil
}

func buildScale(cfg *config.Config) bands.Scale {
	return bands.NewScale(cfg.MinBand, cfg.MaxBand)
}

func buildRubric(cfg *config.Config) (*scoring.Rubric, error) {
	if cfg.RubricPath == "" {
		return scoring.DefaultRubric(), nil
	}
	data, err := os.ReadFile(cfg.RubricPath)
	if err != nil {
		return nil, fmt.Errorf("read rubric: %w", err)
	}
	return scoring.ParseRubric(data)
}

func buildTranscriber(cfg *config.Config) (pipeline.Transcriber, error) {
	if cfg.Transcriber == "exec" {
		tr, err := transcribe.NewExec(cfg.TranscriptionCommand, transcribe.WithExecLanguage(cfg.TranscriptionLanguage))
		if err != nil {
			return nil, err
		}
		return tr, nil
	}
	tr, err := transcribe.NewOpenAI(cfg.OpenAIAPIKey, cfg.TranscriptionModel,
		transcribe.WithBaseURL(cfg.OpenAIBaseURL),
		transcribe.WithLanguage(cfg.TranscriptionLanguage),
		transcribe.WithTimeout(time.Duration(cfg.LLMTimeoutMS)*time.Millisecond),
		transcribe.WithMaxRetries(cfg.LLMMaxRetries),
	)
	if err != nil {
		return nil, err
	}
	return tr, nil
}

func buildScorer(cfg *config.Config, rubric *scoring.Rubric, scale bands.Scale, log logger.Logger) (scoring.Scorer, error) {
	heuristic := scoring.NewHeuristicScorer(scoring.WithHeuristicRubric(rubric), scoring.WithHeuristicScale(scale))
	if cfg.ScoringMode == "heuristic" {
		return heuristic, nil
	}

	client, err := llm.NewOpenAI(cfg.OpenAIAPIKey, cfg.LLMModel,
		llm.WithBaseURL(cfg.OpenAIBaseURL),
		llm.WithTimeout(time.Duration(cfg.LLMTimeoutMS)*time.Millisecond),
		llm.WithTemperature(cfg.LLMTemperature),
		llm.WithMaxRetries(cfg.LLMMaxRetries),
		llm.WithJSONMode(true),
	)
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}
	primary := scoring.NewLLMScorer(client,
		scoring.WithMode(scoring.Mode(cfg.ScoringMode)),
		scoring.WithRubric(rubric),
		scoring.WithScale(scale),
	)
	if !cfg.ScoringFallback {
		return primary, nil
	}
	return scoring.NewFallbackScorer(primary, heuristic, log.Named("scoring")), nil
}

func buildPipeline(cfg *config.Config, log logger.Logger) (*pipeline.Pipeline, error) {
	scale := buildScale(cfg)
	rubric, err := buildRubric(cfg)
	if err != nil {
		return nil, err
	}
	tr, err := buildTranscriber(cfg)
	if err != nil {
		return nil, fmt.Errorf("transcriber: %w", err)
	}
	scorer, err := buildScorer(cfg, rubric, scale, log)
	if err != nil {
		return nil, err
	}

	detectorOpts := []disfluency.Option{}
	if len(cfg.FillerWords) > 0 {
		detectorOpts = append(detectorOpts, disfluency.WithFillers(cfg.FillerWords))
	}

	return pipeline.New(tr, scorer,
		pipeline.WithLogger(log.Named("pipeline")),
		pipeline.WithDetector(disfluency.NewDetector(detectorOpts...)),
		pipeline.WithScale(scale),
		pipeline.WithAudioOptions(audio.WithSilenceThresholdDB(cfg.SilenceThresholdDB)),
		pipeline.WithMinPauseMS(cfg.PauseMS),
		pipeline.WithLongPauseMS(cfg.LongPauseMS),
		pipeline.WithLowConfidence(cfg.LowConfidence),
		pipeline.WithMaxFeedbackItems(cfg.MaxFeedbackItems),
	), nil
}

func buildPublisher(cfg *config.Config, log logger.Logger) (notify.Publisher, error) {
	if cfg.NATSURL == "" {
		return notify.Nop{}, nil
	}
	pub, err := notify.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject,
		notify.WithClientName(serviceName),
		notify.WithLogger(log.Named("notify")),
	)
	if err != nil {
		return nil, fmt.Errorf("nats publisher: %w", err)
	}
	return pub, nil
}

// startSystemMetricsUpdater periodically samples runtime metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater periodically mirrors service stats into gauges.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

func updateServiceMetrics(ctx context.Context, svc *app.Service) {
	stats := svc.GetStats(ctx)
	if !stats.Started {
		return
	}
	metrics.UpdateQueueSize(stats.QueueLength)
	metrics.UpdateWorkerCount(stats.Workers)
	metrics.UpdateStoredAssessments(stats.Assessments)
}
