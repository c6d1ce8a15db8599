package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/bandscore/internal/domain/model"
	"github.com/okian/bandscore/pkg/metrics"
)

// MemoryStore keeps assessments in a map. Contents are lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]model.Assessment
	opts  storeOptions
	stats statsLoop
}

// NewMemoryStore creates an in-memory store and starts its metrics updater.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{byID: make(map[string]model.Assessment), opts: defaultOptions()}
	for _, opt := range opts {
		opt(&s.opts)
	}
	s.stats.start(ctx, s.opts.metricsUpdateInterval, s.Count)
	return s
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, a model.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[a.ID]; ok {
		return ErrExists
	}
	s.byID[a.ID] = a
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (model.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return model.Assessment{}, ErrNotFound
	}
	return a, nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, id string, fn func(*model.Assessment) error) (model.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return model.Assessment{}, ErrNotFound
	}
	if err := fn(&a); err != nil {
		return model.Assessment{}, err
	}
	a.UpdatedAt = s.opts.clock()
	s.byID[id] = a
	return a, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, limit int) ([]model.Assessment, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	out := make([]model.Assessment, 0, len(s.byID))
	for _, a := range s.byID {
		out = append(out, a)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

// Prune implements Store.
func (s *MemoryStore) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, a := range s.byID {
		if a.Status.Terminal() && a.UpdatedAt.Before(before) {
			delete(s.byID, id)
			n++
		}
	}
	return n, nil
}

// Close stops the metrics updater.
func (s *MemoryStore) Close() error {
	s.stats.stop()
	return nil
}

// statsLoop periodically publishes the stored assessment count.
type statsLoop struct {
	wg       sync.WaitGroup
	once     sync.Once
	stopChan chan struct{}
}

func (l *statsLoop) start(ctx context.Context, interval time.Duration, count func(context.Context) (int, error)) {
	l.stopChan = make(chan struct{})
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stopChan:
				return
			case <-ticker.C:
				if n, err := count(ctx); err == nil {
					metrics.UpdateStoredAssessments(n)
				}
			}
		}
	}()
}

func (l *statsLoop) stop() {
	l.once.Do(func() {
		if l.stopChan != nil {
			close(l.stopChan)
		}
	})
	l.wg.Wait()
}
