// Package repository stores assessments.
package repository

import (
	"context"
	"time"

	"github.com/okian/bandscore/internal/domain/model"
)

// Store provides read/write access to assessments.
type Store interface {
	// Create inserts a new assessment. Returns ErrExists if the ID is taken.
	Create(ctx context.Context, a model.Assessment) error

	// Get returns the assessment with id, or ErrNotFound.
	Get(ctx context.Context, id string) (model.Assessment, error)

	// Update applies fn to the stored assessment atomically and persists the
	// result. If fn returns an error nothing is written.
	Update(ctx context.Context, id string, fn func(*model.Assessment) error) (model.Assessment, error)

	// List returns up to limit assessments, newest first.
	List(ctx context.Context, limit int) ([]model.Assessment, error)

	// Count returns the number of stored assessments.
	Count(ctx context.Context) (int, error)

	// Prune deletes finished assessments last updated before the cutoff and
	// returns how many were removed.
	Prune(ctx context.Context, before time.Time) (int, error)

	// Close releases resources.
	Close() error
}
