// Package store persists scraped text fragments in SQLite. Fragments are
// append-only: they are created by a successful scrape and never updated or
// deleted.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"chathud/internal/logging"
	"chathud/internal/metrics"

	_ "modernc.org/sqlite"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Fragment is one stored piece of scraped text.
type Fragment struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Site      string    `json:"site,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LocalStore is the fragment database.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	closed bool
	now    func() time.Time
}

// NewLocalStore opens (creating if needed) the database at path and brings
// its schema up to date.
func NewLocalStore(path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	logging.Store("Opening fragment store at %s", path)

	if path != MemoryPath {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: an in-memory database is per connection, and a
	// single writer keeps IDs in commit order.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if path != MemoryPath {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
		}
		if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
			logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
		}
	}

	if _, err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &LocalStore{db: db, dbPath: path, now: time.Now}, nil
}

// Path returns the database path.
func (s *LocalStore) Path() string {
	return s.dbPath
}

// GetDB exposes the underlying handle for maintenance commands.
func (s *LocalStore) GetDB() *sql.DB {
	return s.db
}

// Close closes the database connection. Closing twice is a no-op.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Append stores texts in one transaction and returns the new fragments in
// insertion order. Nothing is written for an empty slice.
func (s *LocalStore) Append(ctx context.Context, site string, texts []string) ([]Fragment, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	timer := logging.StartTimer(logging.CategoryStore, "Append")
	defer timer.StopWithThreshold(500 * time.Millisecond)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO fragments (text, site, created_at) VALUES (?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("prepare append: %w", err)
	}
	defer stmt.Close()

	now := s.now()
	created := now.UnixMilli()
	out := make([]Fragment, 0, len(texts))
	for _, text := range texts {
		res, err := stmt.ExecContext(ctx, text, site, created)
		if err != nil {
			return nil, fmt.Errorf("insert fragment: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("fragment id: %w", err)
		}
		out = append(out, Fragment{ID: id, Text: text, Site: site, CreatedAt: time.UnixMilli(created)})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}

	metrics.FragmentsStored.Add(float64(len(out)))
	logging.Store("Appended %d fragments from %s", len(out), site)
	return out, nil
}

// All returns every fragment ordered by id.
func (s *LocalStore) All(ctx context.Context) ([]Fragment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, text, site, created_at FROM fragments ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query fragments: %w", err)
	}
	defer rows.Close()

	var out []Fragment
	for rows.Next() {
		var f Fragment
		var created int64
		if err := rows.Scan(&f.ID, &f.Text, &f.Site, &created); err != nil {
			return nil, fmt.Errorf("scan fragment: %w", err)
		}
		f.CreatedAt = time.UnixMilli(created)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fragments: %w", err)
	}
	return out, nil
}

// Count returns the number of stored fragments.
func (s *LocalStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fragments").Scan(&n); err != nil {
		return 0, fmt.Errorf("count fragments: %w", err)
	}
	return n, nil
}

// GetStats returns row counts per site.
func (s *LocalStore) GetStats(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, "SELECT site, COUNT(*) FROM fragments GROUP BY site ORDER BY site")
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var site string
		var n int
		if err := rows.Scan(&site, &n); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[site] = n
	}
	return stats, rows.Err()
}
