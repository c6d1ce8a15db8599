package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/bandscore/internal/adapters/notify"
	"github.com/okian/bandscore/internal/adapters/repository"
	app "github.com/okian/bandscore/internal/app"
	"github.com/okian/bandscore/internal/config"
	"github.com/okian/bandscore/internal/domain/scoring"
	"github.com/okian/bandscore/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func testConfig() *config.Config {
	cfg := config.New(context.Background())
	cfg.Transcriber = "exec"
	cfg.TranscriptionCommand = "whisper-cli --json"
	cfg.ScoringMode = "heuristic"
	return cfg
}

func TestBuildComponents(t *testing.T) {
	convey.Convey("Given a configuration", t, func() {
		ctx := context.Background()
		cfg := testConfig()
		log := logger.Nop()

		convey.Convey("When building the store", func() {
			convey.Convey("Then memory is the default", func() {
				store, err := buildStore(ctx, cfg)
				convey.So(err, convey.ShouldBeNil)
				_, ok := store.(*repository.MemoryStore)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(store.Close(), convey.ShouldBeNil)
			})

			convey.Convey("Then sqlite opens a database file", func() {
				cfg.StoreDriver = "sqlite"
				cfg.StorePath = filepath.Join(t.TempDir(), "bandscore.db")
				store, err := buildStore(ctx, cfg)
				convey.So(err, convey.ShouldBeNil)
				_, ok := store.(*repository.SQLiteStore)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(store.Close(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When building the scorer", func() {
			rubric := scoring.DefaultRubric()
			scale := buildScale(cfg)

			convey.Convey("Then heuristic mode needs no LLM", func() {
				s, err := buildScorer(cfg, rubric, scale, log)
				convey.So(err, convey.ShouldBeNil)
				_, ok := s.(*scoring.HeuristicScorer)
				convey.So(ok, convey.ShouldBeTrue)
			})

			convey.Convey("Then LLM modes wrap a fallback by default", func() {
				cfg.ScoringMode = "split"
				cfg.OpenAIAPIKey = "sk-test"
				s, err := buildScorer(cfg, rubric, scale, log)
				convey.So(err, convey.ShouldBeNil)
				_, ok := s.(*scoring.FallbackScorer)
				convey.So(ok, convey.ShouldBeTrue)

				cfg.ScoringFallback = false
				s, err = buildScorer(cfg, rubric, scale, log)
				convey.So(err, convey.ShouldBeNil)
				_, ok = s.(*scoring.LLMScorer)
				convey.So(ok, convey.ShouldBeTrue)
			})

			convey.Convey("Then a missing API key is an error", func() {
				cfg.ScoringMode = "combined"
				cfg.OpenAIAPIKey = ""
				_, err := buildScorer(cfg, rubric, scale, log)
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When building the rubric", func() {
			convey.Convey("Then an unreadable path is an error", func() {
				cfg.RubricPath = filepath.Join(t.TempDir(), "missing.yaml")
				_, err := buildRubric(cfg)
				convey.So(err, convey.ShouldNotBeNil)
			})

			convey.Convey("Then an invalid rubric is rejected", func() {
				cfg.RubricPath = filepath.Join(t.TempDir(), "rubric.yaml")
				convey.So(os.WriteFile(cfg.RubricPath, []byte("criteria: {}\n"), 0o600), convey.ShouldBeNil)
				_, err := buildRubric(cfg)
				convey.So(errors.Is(err, scoring.ErrInvalidRubric), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When building the pipeline", func() {
			cfg.FillerWords = []string{"um", "like"}
			p, err := buildPipeline(cfg, log)
			convey.So(err, convey.ShouldBeNil)
			convey.So(p, convey.ShouldNotBeNil)

			convey.Convey("Then an empty exec command fails", func() {
				cfg.TranscriptionCommand = "  "
				_, err := buildPipeline(cfg, log)
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When no NATS URL is configured", func() {
			pub, err := buildPublisher(cfg, log)
			convey.So(err, convey.ShouldBeNil)
			_, ok := pub.(notify.Nop)
			convey.So(ok, convey.ShouldBeTrue)
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the background metrics updaters", t, func() {
		convey.Convey("Then the system updater should return when ctx ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
			convey.So(func() { updateSystemMetrics() }, convey.ShouldNotPanic)
		})

		convey.Convey("Then the service updater should tolerate a stopped service", func() {
			svc := app.New()
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			convey.So(func() { startServiceMetricsUpdater(ctx, svc) }, convey.ShouldNotPanic)
			convey.So(func() { updateServiceMetrics(context.Background(), svc) }, convey.ShouldNotPanic)
		})
	})
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	convey.Convey("Given an invalid queue size", t, func() {
		_ = os.Setenv("BANDSCORE_QUEUE_SIZE", "0")
		defer func() { _ = os.Unsetenv("BANDSCORE_QUEUE_SIZE") }()

		convey.Convey("Then run should fail before serving", func() {
			err := run(context.Background())
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func TestCheckCredentials(t *testing.T) {
	convey.Convey("Given the default OpenAI-backed configuration", t, func() {
		cfg := config.New(context.Background())
		cfg.OpenAIAPIKey = ""

		convey.Convey("Then a missing key is rejected before any component is built", func() {
			err := checkCredentials(cfg)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "OPENAI_API_KEY")
		})

		convey.Convey("Then a configured key passes", func() {
			cfg.OpenAIAPIKey = "sk-test"
			convey.So(checkCredentials(cfg), convey.ShouldBeNil)
		})

		convey.Convey("Then a fully local setup needs no key", func() {
			convey.So(checkCredentials(testConfig()), convey.ShouldBeNil)
		})
	})
}

func TestBuildScaleHonoursValidatedRange(t *testing.T) {
	convey.Convey("Given a config whose band range passes validation", t, func() {
		cfg := testConfig()
		cfg.MinBand, cfg.MaxBand = 4, 9
		convey.So(cfg.Validate(), convey.ShouldBeNil)

		convey.Convey("Then the scale keeps the configured range", func() {
			s := buildScale(cfg)
			convey.So(s.Min, convey.ShouldEqual, 4)
			convey.So(s.Max, convey.ShouldEqual, 9)
		})
	})

	convey.Convey("Given a zero minimum band", t, func() {
		cfg := testConfig()
		cfg.MinBand = 0

		convey.Convey("Then validation rejects it instead of silently using the default scale", func() {
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}
