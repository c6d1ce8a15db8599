// Package dedupe tracks idempotency keys of submissions that are queued,
// processing or completed.
package dedupe

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxSize = 50000

// Deduper records idempotency keys so a repeated submission resolves to the
// assessment it already created.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// It returns true when key was already recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so the next submission with it is processed again.
	// Used for failed assessments and rejected enqueues.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// NewInMemoryDeduper creates an in-memory deduper. With a positive max size
// the least recently seen key is evicted once the bound is reached; evicted
// keys fall through to the assessment store. A max size of zero or less
// keeps every key.
func NewInMemoryDeduper(opts ...Option) Deduper {
	o := options{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxSize <= 0 {
		return &unboundedDeduper{seen: make(map[string]struct{})}
	}
	cache, err := lru.New[string, struct{}](o.maxSize)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &lruDeduper{cache: cache}
}

type lruDeduper struct {
	cache *lru.Cache[string, struct{}]
}

func (d *lruDeduper) SeenAndRecord(_ context.Context, key string) bool {
	if seen, _ := d.cache.ContainsOrAdd(key, struct{}{}); seen {
		d.cache.Get(key) // refresh recency
		return true
	}
	return false
}

func (d *lruDeduper) Unrecord(_ context.Context, key string) {
	d.cache.Remove(key)
}

func (d *lruDeduper) Size() int64 {
	return int64(d.cache.Len())
}

type unboundedDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func (d *unboundedDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = struct{}{}
	return false
}

func (d *unboundedDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}

func (d *unboundedDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
