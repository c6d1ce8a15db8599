package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/bandscore/internal/domain/model"
	"github.com/okian/bandscore/internal/domain/types"
	"github.com/okian/bandscore/pkg/logger"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	outputPermission    = 0o600
)

// audioExtensions are the file types a batch picks up from directories.
var audioExtensions = map[string]bool{
	".wav": true, ".mp3": true, ".m4a": true, ".ogg": true, ".flac": true, ".webm": true,
}

// BatchConfig describes one bandctl run.
type BatchConfig struct {
	Paths        []string // files or directories
	Prompt       string
	Detail       types.DetailLevel
	Workers      int
	PollInterval time.Duration
	Wait         bool   // let the server hold the request instead of polling
	Output       string // optional JSON file for every finished view
}

// Outcome is what happened to one file.
type Outcome struct {
	File    string                `json:"file"`
	View    *types.AssessmentView `json:"assessment,omitempty"`
	Err     string                `json:"error,omitempty"`
	Latency time.Duration         `json:"latency_ns"`
}

// Summary aggregates a batch.
type Summary struct {
	Files       int
	Completed   int
	Failed      int
	Errors      int
	Duplicates  int
	MeanOverall float64
	MeanLatency time.Duration
	Duration    time.Duration
	Outcomes    []Outcome
}

// Collect expands paths into a sorted list of audio files. Directories are
// walked recursively; explicit files are taken regardless of extension.
func Collect(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(root)
			continue
		}
		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && audioExtensions[strings.ToLower(filepath.Ext(p))] {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if len(out) == 0 {
		return nil, ErrNoFiles
	}
	sort.Strings(out)
	return out, nil
}

// RunBatch submits every file concurrently, waits for each result and
// returns the summary. Per-file failures are recorded, not returned.
func RunBatch(ctx context.Context, c *Client, cfg BatchConfig, log logger.Logger) (*Summary, error) {
	log = logger.OrNop(log)
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	files, err := Collect(cfg.Paths)
	if err != nil {
		return nil, err
	}
	if err := c.Health(ctx); err != nil {
		return nil, err
	}

	log.Info(ctx, "submitting batch",
		logger.Int("files", len(files)),
		logger.Int("workers", cfg.Workers),
		logger.String("detail", string(cfg.Detail)),
		logger.Bool("wait", cfg.Wait))

	start := time.Now()
	outcomes := make([]Outcome, len(files))
	var dupMu sync.Mutex
	duplicates := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, file := range files {
		g.Go(func() error {
			out, dup := assessFile(gctx, c, cfg, file)
			outcomes[i] = out
			if dup {
				dupMu.Lock()
				duplicates++
				dupMu.Unlock()
			}
			if out.Err != "" {
				log.Warn(gctx, "assessment failed", logger.String("file", file), logger.String("error", out.Err))
			} else {
				log.Debug(gctx, "assessment finished", logger.String("file", file), logger.Duration("latency", out.Latency))
			}
			return nil
		})
	}
	_ = g.Wait()

	s := summarize(outcomes)
	s.Duplicates = duplicates
	s.Duration = time.Since(start)

	if cfg.Output != "" {
		if err := writeOutcomes(cfg.Output, outcomes); err != nil {
			return s, err
		}
		log.Info(ctx, "results saved", logger.String("file", cfg.Output))
	}
	return s, ctx.Err()
}

func assessFile(ctx context.Context, c *Client, cfg BatchConfig, file string) (Outcome, bool) {
	out := Outcome{File: file}
	start := time.Now()

	audio, err := os.ReadFile(file)
	if err != nil {
		out.Err = err.Error()
		return out, false
	}
	res, err := c.Submit(ctx, SubmitRequest{
		Audio:    audio,
		Filename: filepath.Base(file),
		Prompt:   cfg.Prompt,
		Detail:   cfg.Detail,
		Wait:     cfg.Wait,
	})
	if err != nil {
		out.Err = err.Error()
		out.Latency = time.Since(start)
		return out, false
	}
	dup := res.Accepted != nil && res.Accepted.Duplicate

	view := res.View
	if view == nil {
		v, err := c.Poll(ctx, res.ID(), cfg.Detail, cfg.PollInterval)
		if err != nil {
			out.Err = err.Error()
			out.Latency = time.Since(start)
			return out, dup
		}
		view = &v
	}
	out.View = view
	if view.Status == model.StatusFailed {
		out.Err = view.Error
	}
	out.Latency = time.Since(start)
	return out, dup
}

func summarize(outcomes []Outcome) *Summary {
	s := &Summary{Files: len(outcomes), Outcomes: outcomes}
	var overall float64
	var latency time.Duration
	for _, o := range outcomes {
		latency += o.Latency
		switch {
		case o.View != nil && o.View.Status == model.StatusCompleted && o.View.BandScores != nil:
			s.Completed++
			overall += o.View.BandScores.Overall
		case o.View != nil && o.View.Status == model.StatusFailed:
			s.Failed++
		default:
			s.Errors++
		}
	}
	if s.Completed > 0 {
		s.MeanOverall = overall / float64(s.Completed)
	}
	if s.Files > 0 {
		s.MeanLatency = latency / time.Duration(s.Files)
	}
	return s
}

func writeOutcomes(path string, outcomes []Outcome) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(outcomes, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, outputPermission)
}
