// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	assessmentqueue "github.com/okian/bandscore/internal/adapters/mq/queue"
	workerpool "github.com/okian/bandscore/internal/adapters/mq/worker"
	"github.com/okian/bandscore/internal/adapters/notify"
	repository "github.com/okian/bandscore/internal/adapters/repository"
	"github.com/okian/bandscore/internal/domain/dedupe"
	"github.com/okian/bandscore/internal/domain/model"
	"github.com/okian/bandscore/pkg/logger"
	"github.com/okian/bandscore/pkg/metrics"
)

const (
	defaultQueueSize     = 256
	defaultDedupeSize    = 50000
	defaultPruneInterval = 10 * time.Minute
)

// namespace derives assessment IDs from idempotency keys (UUIDv5).
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://bandscore.dev/assessments"))

// Submission is one spoken answer to assess.
type Submission struct {
	Audio    []byte
	Filename string
	Prompt   string
	Key      string // optional idempotency key
}

// SubmitResult reports the assessment a submission resolved to.
type SubmitResult struct {
	Assessment model.Assessment
	Duplicate  bool
}

// Stats is a point-in-time view of the service.
type Stats struct {
	Started       bool   `json:"started"`
	Workers       int    `json:"workers"`
	QueueLength   int    `json:"queue_length"`
	QueueCapacity int    `json:"queue_capacity"`
	DedupeSize    int64  `json:"dedupe_size"`
	Assessments   int    `json:"assessments"`
	Waiters       int    `json:"waiters"`
	Uptime        string `json:"uptime"`
}

// Service owns the assessment lifecycle: submission, queueing, worker
// updates, waiting and retention.
type Service struct {
	mu       sync.RWMutex
	submitMu sync.Mutex

	store     repository.Store
	deduper   dedupe.Deduper
	queue     assessmentqueue.Queue
	processor workerpool.Processor
	publisher notify.Publisher
	pool      *workerpool.Pool
	waiters   *waiters

	workerCount   int
	queueSize     int
	dedupeSize    int
	jobTimeout    time.Duration
	retention     time.Duration
	pruneInterval time.Duration

	started   bool
	startedAt time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup

	now    func() time.Time
	logger logger.Logger
}

// New constructs a Service. Start must be called before use.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:   runtime.NumCPU(),
		queueSize:     defaultQueueSize,
		dedupeSize:    defaultDedupeSize,
		pruneInterval: defaultPruneInterval,
		publisher:     notify.Nop{},
		waiters:       newWaiters(),
		stopCh:        make(chan struct{}),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the queue and worker pool and begins processing.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	if s.processor == nil {
		return ErrNoProcessor
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore(ctx)
		s.logger.Info(ctx, "using in-memory assessment store")
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = assessmentqueue.NewInMemoryQueue(assessmentqueue.WithCapacity(s.queueSize))

	wopts := []workerpool.Option{workerpool.WithJobTimeout(s.jobTimeout)}
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.processor, s, wopts...)
	s.pool.Start(context.WithoutCancel(ctx))

	if s.retention > 0 {
		s.wg.Add(1)
		go s.pruneLoop(context.WithoutCancel(ctx))
	}

	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "assessment service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
		logger.Duration("retention", s.retention),
	)
	return nil
}

// Stop drains queued work, then releases the store and publisher.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping assessment service")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	close(s.stopCh)
	s.wg.Wait()

	if err := s.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.started = false
	s.logger.Info(ctx, "assessment service stopped")
	return errors.Join(errs...)
}

func (s *Service) running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// KeyFor returns the idempotency key for a submission without one.
func KeyFor(audio []byte, prompt string) string {
	h := sha256.New()
	h.Write(audio)
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// IDFor returns the assessment ID derived from an idempotency key.
func IDFor(key string) string {
	return uuid.NewSHA1(namespace, []byte(key)).String()
}

// Submit creates an assessment and queues it. A submission whose key
// resolves to a queued, processing or completed assessment returns that
// assessment with Duplicate set. A failed assessment is retried.
func (s *Service) Submit(ctx context.Context, sub Submission) (SubmitResult, error) {
	if !s.running() {
		return SubmitResult{}, ErrNotStarted
	}
	if len(sub.Audio) == 0 {
		metrics.RecordSubmission("invalid")
		return SubmitResult{}, ErrEmptyAudio
	}

	key := sub.Key
	if key == "" {
		key = KeyFor(sub.Audio, sub.Prompt)
	}
	id := IDFor(key)
	log := s.logger.With(logger.String("assessment_id", id))

	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	if s.deduper.SeenAndRecord(ctx, key) {
		existing, err := s.store.Get(ctx, id)
		switch {
		case err == nil && existing.Status == model.StatusFailed:
			// retried below
		case err == nil:
			metrics.RecordSubmission("duplicate")
			log.Debug(ctx, "duplicate submission", logger.String("status", string(existing.Status)))
			return SubmitResult{Assessment: existing, Duplicate: true}, nil
		case errors.Is(err, repository.ErrNotFound):
			// pruned since it was recorded
		default:
			return SubmitResult{}, fmt.Errorf("lookup %s: %w", id, err)
		}
	}

	now := s.now()
	a := model.Assessment{
		ID:        id,
		Key:       key,
		Prompt:    sub.Prompt,
		Filename:  sub.Filename,
		Status:    model.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	existing, err := s.store.Get(ctx, id)
	switch {
	case err == nil && existing.Status != model.StatusFailed:
		metrics.RecordSubmission("duplicate")
		return SubmitResult{Assessment: existing, Duplicate: true}, nil
	case err == nil:
		a, err = s.transition(ctx, id, model.StatusQueued, func(cur *model.Assessment) {
			cur.Prompt = sub.Prompt
			cur.Filename = sub.Filename
			cur.Error = ""
			cur.Result = nil
			cur.CompletedAt = time.Time{}
		})
		if err != nil {
			s.deduper.Unrecord(ctx, key)
			return SubmitResult{}, fmt.Errorf("reset %s: %w", id, err)
		}
		log.Info(ctx, "retrying failed assessment")
	case errors.Is(err, repository.ErrNotFound):
		if err := s.store.Create(ctx, a); err != nil {
			s.deduper.Unrecord(ctx, key)
			return SubmitResult{}, fmt.Errorf("create %s: %w", id, err)
		}
	default:
		s.deduper.Unrecord(ctx, key)
		return SubmitResult{}, fmt.Errorf("lookup %s: %w", id, err)
	}

	job := model.Job{
		AssessmentID: id,
		Key:          key,
		Prompt:       sub.Prompt,
		Filename:     sub.Filename,
		Audio:        sub.Audio,
		Submitted:    now,
	}
	if !s.queue.Enqueue(ctx, job) {
		s.deduper.Unrecord(ctx, key)
		if _, err := s.transition(ctx, id, model.StatusFailed, func(cur *model.Assessment) {
			cur.Error = ErrBackpressure.Error()
		}); err != nil {
			log.Error(ctx, "failed to record rejected assessment", logger.Error(err))
		}
		metrics.RecordSubmission("rejected")
		log.Warn(ctx, "queue full, submission rejected", logger.Int("queue_length", s.queue.Len(ctx)))
		return SubmitResult{}, ErrBackpressure
	}

	metrics.RecordSubmission("accepted")
	log.Debug(ctx, "assessment queued",
		logger.String("filename", sub.Filename),
		logger.Int("audio_bytes", len(sub.Audio)),
	)
	return SubmitResult{Assessment: a}, nil
}

// Get returns the assessment with id.
func (s *Service) Get(ctx context.Context, id string) (model.Assessment, error) {
	if !s.running() {
		return model.Assessment{}, ErrNotStarted
	}
	return s.store.Get(ctx, id)
}

// List returns up to limit assessments, newest first, and the total count.
func (s *Service) List(ctx context.Context, limit int) ([]model.Assessment, int, error) {
	if !s.running() {
		return nil, 0, ErrNotStarted
	}
	items, err := s.store.List(ctx, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Wait blocks until the assessment is completed or failed, or ctx is done.
// On ctx expiry it returns the latest state together with ctx.Err().
func (s *Service) Wait(ctx context.Context, id string) (model.Assessment, error) {
	if !s.running() {
		return model.Assessment{}, ErrNotStarted
	}
	wake, cancel := s.waiters.add(id)
	defer cancel()

	a, err := s.store.Get(ctx, id)
	if err != nil || a.Status.Terminal() {
		return a, err
	}

	select {
	case <-wake:
		return s.store.Get(ctx, id)
	case <-ctx.Done():
		latest, err := s.store.Get(context.WithoutCancel(ctx), id)
		if err != nil {
			return a, ctx.Err()
		}
		return latest, ctx.Err()
	}
}

// MarkProcessing moves a queued assessment to processing.
func (s *Service) MarkProcessing(ctx context.Context, id string) error {
	_, err := s.transition(ctx, id, model.StatusProcessing, func(*model.Assessment) {})
	return err
}

// Complete stores the result of a successful run.
func (s *Service) Complete(ctx context.Context, id string, result *model.Result) error {
	a, err := s.transition(ctx, id, model.StatusCompleted, func(a *model.Assessment) {
		a.Result = result
		a.CompletedAt = s.now()
	})
	if err != nil {
		return err
	}
	if result != nil {
		metrics.RecordOverallBand(result.Bands.Overall)
	}
	s.finish(ctx, a)
	return nil
}

// Fail records cause and releases the idempotency key so the same
// submission can be retried.
func (s *Service) Fail(ctx context.Context, id string, cause error) error {
	if cause == nil {
		cause = errors.New("unknown failure")
	}
	a, err := s.transition(ctx, id, model.StatusFailed, func(a *model.Assessment) {
		a.Error = cause.Error()
		a.CompletedAt = s.now()
	})
	if err != nil {
		return err
	}
	s.deduper.Unrecord(ctx, a.Key)
	s.finish(ctx, a)
	return nil
}

func (s *Service) transition(ctx context.Context, id string, next model.Status, apply func(*model.Assessment)) (model.Assessment, error) {
	return s.store.Update(ctx, id, func(a *model.Assessment) error {
		if !a.Status.CanTransition(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, next)
		}
		a.Status = next
		apply(a)
		return nil
	})
}

func (s *Service) finish(ctx context.Context, a model.Assessment) {
	metrics.RecordAssessmentFinished(string(a.Status))
	if err := s.publisher.Publish(ctx, a); err != nil {
		s.logger.Warn(ctx, "failed to publish assessment event",
			logger.String("assessment_id", a.ID),
			logger.Error(err),
		)
	}
	s.waiters.wake(a.ID)
}

func (s *Service) pruneLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.Prune(ctx); err != nil {
				s.logger.Error(ctx, "retention prune failed", logger.Error(err))
			}
		}
	}
}

// Prune deletes finished assessments older than the retention window.
func (s *Service) Prune(ctx context.Context) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	n, err := s.store.Prune(ctx, s.now().Add(-s.retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info(ctx, "pruned finished assessments", logger.Int("count", n))
	}
	return n, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Started:       s.started,
		Workers:       s.workerCount,
		QueueCapacity: s.queueSize,
	}
	if !s.started {
		return stats
	}

	stats.QueueLength = s.queue.Len(ctx)
	stats.DedupeSize = s.deduper.Size()
	stats.Waiters = s.waiters.len()
	stats.Uptime = s.now().Sub(s.startedAt).Round(time.Second).String()
	if n, err := s.store.Count(ctx); err == nil {
		stats.Assessments = n
		metrics.UpdateStoredAssessments(n)
	}
	metrics.UpdateQueueSize(stats.QueueLength)
	return stats
}
