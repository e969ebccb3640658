// Package duckstore is the persistent-storage collaborator outside
// the segmentation core: an embedded DuckDB database backing (a)
// internal/discover's content-hash index, so re-runs can skip files
// whose hash hasn't changed, and (b) the core's optional oracle.Cache
// capability, so LLM responses survive process restarts.
package duckstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/duckdb/duckdb-go/v2"
)

// Store wraps a DuckDB connection providing the file index and LLM
// response cache tables.
type Store struct {
	db *sql.DB
}

// Open creates or attaches the DuckDB database at dbPath and ensures
// both tables exist.
func Open(dbPath string) (*Store, error) {
	connector, err := duckdb.NewConnector(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("duckstore: connector: %w", err)
	}

	db := sql.OpenDB(connector)

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS files (
			path              VARCHAR PRIMARY KEY,
			content_hash      VARCHAR,
			size_bytes        BIGINT,
			mtime             TIMESTAMP,
			last_segmented_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS llm_cache (
			cache_key VARCHAR PRIMARY KEY,
			value     VARCHAR
		);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("duckstore: schema: %w", err)
		}
	}

	return nil
}

// FileRecord is one row of the content-hash index.
type FileRecord struct {
	Path            string
	ContentHash     string
	SizeBytes       int64
	Mtime           time.Time
	LastSegmentedAt *time.Time
}

// Lookup returns the indexed record for path, if any.
func (s *Store) Lookup(ctx context.Context, path string) (FileRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT path, content_hash, size_bytes, mtime, last_segmented_at
		FROM files WHERE path = ?`, path)

	var rec FileRecord
	var lastSeg sql.NullTime
	if err := row.Scan(&rec.Path, &rec.ContentHash, &rec.SizeBytes, &rec.Mtime, &lastSeg); err != nil {
		if err == sql.ErrNoRows {
			return FileRecord{}, false, nil
		}
		return FileRecord{}, false, fmt.Errorf("duckstore: lookup: %w", err)
	}
	if lastSeg.Valid {
		rec.LastSegmentedAt = &lastSeg.Time
	}

	return rec, true, nil
}

// Upsert records or updates a file's index row.
func (s *Store) Upsert(ctx context.Context, rec FileRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (path, content_hash, size_bytes, mtime, last_segmented_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			size_bytes = EXCLUDED.size_bytes,
			mtime = EXCLUDED.mtime,
			last_segmented_at = EXCLUDED.last_segmented_at`,
		rec.Path, rec.ContentHash, rec.SizeBytes, rec.Mtime, rec.LastSegmentedAt)
	if err != nil {
		return fmt.Errorf("duckstore: upsert: %w", err)
	}

	return nil
}

// MarkSegmented stamps last_segmented_at for path to now.
func (s *Store) MarkSegmented(ctx context.Context, path string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE files SET last_segmented_at = ? WHERE path = ?`, at, path)
	if err != nil {
		return fmt.Errorf("duckstore: mark segmented: %w", err)
	}
	return nil
}

// Get implements oracle.Cache.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM llm_cache WHERE cache_key = ?`, key)

	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("duckstore: cache get: %w", err)
	}

	return value, true, nil
}

// Put implements oracle.Cache. DuckDB's upsert is a single
// transactional statement, so concurrent readers never observe a
// torn cache entry.
func (s *Store) Put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_cache (cache_key, value) VALUES (?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET value = EXCLUDED.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("duckstore: cache put: %w", err)
	}

	return nil
}
