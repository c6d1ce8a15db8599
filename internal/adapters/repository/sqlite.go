package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/bandscore/internal/domain/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    idem_key TEXT NOT NULL,
    prompt TEXT NOT NULL DEFAULT '',
    filename TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    completed_at INTEGER NOT NULL DEFAULT 0,
    result TEXT
);
CREATE INDEX IF NOT EXISTS idx_assessments_created ON assessments(created_at DESC, id);
CREATE INDEX IF NOT EXISTS idx_assessments_status_updated ON assessments(status, updated_at);
`

const selectColumns = `id, idem_key, prompt, filename, status, error, created_at, updated_at, completed_at, result`

// SQLiteStore persists assessments in a SQLite database. Results are
// stored as JSON.
type SQLiteStore struct {
	db    *sql.DB
	opts  storeOptions
	stats statsLoop
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	s := &SQLiteStore{db: db, opts: defaultOptions()}
	for _, opt := range opts {
		opt(&s.opts)
	}
	s.stats.start(ctx, s.opts.metricsUpdateInterval, s.Count)
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssessment(r rowScanner) (model.Assessment, error) {
	var (
		a                           model.Assessment
		status                      string
		created, updated, completed int64
		result                      sql.NullString
	)
	if err := r.Scan(&a.ID, &a.Key, &a.Prompt, &a.Filename, &status, &a.Error, &created, &updated, &completed, &result); err != nil {
		return model.Assessment{}, err
	}
	a.Status = model.Status(status)
	a.CreatedAt = fromNanos(created)
	a.UpdatedAt = fromNanos(updated)
	a.CompletedAt = fromNanos(completed)
	if result.Valid && result.String != "" {
		var res model.Result
		if err := json.Unmarshal([]byte(result.String), &res); err != nil {
			return model.Assessment{}, fmt.Errorf("decode result for %s: %w", a.ID, err)
		}
		a.Result = &res
	}
	return a, nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func encodeResult(r *model.Result) (sql.NullString, error) {
	if r == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode result: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, a model.Assessment) error {
	result, err := encodeResult(a.Result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO assessments(`+selectColumns+`) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Key, a.Prompt, a.Filename, string(a.Status), a.Error,
		toNanos(a.CreatedAt), toNanos(a.UpdatedAt), toNanos(a.CompletedAt), result)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrExists
		}
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (model.Assessment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM assessments WHERE id = ?`, id)
	a, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Assessment{}, ErrNotFound
	}
	return a, err
}

// Update implements Store.
func (s *SQLiteStore) Update(ctx context.Context, id string, fn func(*model.Assessment) error) (out model.Assessment, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Assessment{}, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	a, err := scanAssessment(tx.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM assessments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Assessment{}, ErrNotFound
	}
	if err != nil {
		return model.Assessment{}, err
	}
	if err = fn(&a); err != nil {
		return model.Assessment{}, err
	}
	a.UpdatedAt = s.opts.clock()

	result, err := encodeResult(a.Result)
	if err != nil {
		return model.Assessment{}, err
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE assessments SET prompt = ?, filename = ?, status = ?, error = ?, updated_at = ?, completed_at = ?, result = ? WHERE id = ?`,
		a.Prompt, a.Filename, string(a.Status), a.Error, toNanos(a.UpdatedAt), toNanos(a.CompletedAt), result, id); err != nil {
		return model.Assessment{}, fmt.Errorf("update assessment: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return model.Assessment{}, fmt.Errorf("commit: %w", err)
	}
	return a, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]model.Assessment, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM assessments ORDER BY created_at DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()

	out := make([]model.Assessment, 0, limit)
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assessments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count assessments: %w", err)
	}
	return n, nil
}

// Prune implements Store.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM assessments WHERE status IN (?, ?) AND updated_at < ?`,
		string(model.StatusCompleted), string(model.StatusFailed), toNanos(before))
	if err != nil {
		return 0, fmt.Errorf("prune assessments: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close stops background work and closes the database.
func (s *SQLiteStore) Close() error {
	s.stats.stop()
	return s.db.Close()
}
