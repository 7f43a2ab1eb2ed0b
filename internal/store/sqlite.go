package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	seekerrors "github.com/seekstack/codeseek/internal/errors"
)

const sqliteDBFile = "vectors.db"

// SQLiteStore implements VectorStore on a single SQLite file. Queries
// scan all rows with brute-force cosine similarity, which stays fast
// enough for small and medium workspaces and keeps the index file
// portable and inspectable.
type SQLiteStore struct {
	mu   sync.RWMutex
	db   *sql.DB
	dir  string
	dims int

	closed bool
}

var _ VectorStore = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id         TEXT PRIMARY KEY,
	file_path  TEXT NOT NULL,
	content    TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line   INTEGER NOT NULL,
	vector     BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_file_path ON chunks(file_path);
`

// NewSQLiteStore creates a SQLite store persisting under dir.
func NewSQLiteStore(dir string, dims int) *SQLiteStore {
	return &SQLiteStore{dir: dir, dims: dims}
}

// Initialize opens the database and applies the schema. createdNew is
// true when the database file did not exist.
func (s *SQLiteStore) Initialize(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, fmt.Errorf("store is closed")
	}
	if s.db != nil {
		return false, nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return false, seekerrors.New(seekerrors.ErrCodeStoreCorrupt,
			"failed to create store directory", err)
	}

	path := filepath.Join(s.dir, sqliteDBFile)
	_, statErr := os.Stat(path)
	createdNew := os.IsNotExist(statErr)

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return false, seekerrors.New(seekerrors.ErrCodeStoreCorrupt,
			"failed to open vector database", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return false, seekerrors.New(seekerrors.ErrCodeStoreCorrupt,
			"failed to apply vector database schema", err).
			WithSuggestion("delete the .codeseek directory and re-index")
	}

	s.db = db
	return createdNew, nil
}

// Upsert inserts or replaces records by ID in one transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if s.db == nil {
		return fmt.Errorf("store is not initialized")
	}

	if s.dims == 0 {
		s.dims = len(records[0].Vector)
	}
	for _, r := range records {
		if len(r.Vector) != s.dims {
			return seekerrors.Newf(seekerrors.ErrCodeDimensionMismatch,
				"expected %d dimensions, got %d for record %s", s.dims, len(r.Vector), r.ID)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return seekerrors.New(seekerrors.ErrCodeUpsertFailed, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, file_path, content, start_line, end_line, vector)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_path = excluded.file_path,
			content = excluded.content,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			vector = excluded.vector`)
	if err != nil {
		return seekerrors.New(seekerrors.ErrCodeUpsertFailed, "failed to prepare upsert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		normalizeVectorInPlace(vec)

		if _, err := stmt.ExecContext(ctx, r.ID, r.Payload.FilePath, r.Payload.Content,
			r.Payload.StartLine, r.Payload.EndLine, encodeVector(vec)); err != nil {
			return seekerrors.New(seekerrors.ErrCodeUpsertFailed,
				fmt.Sprintf("failed to upsert record %s", r.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return seekerrors.New(seekerrors.ErrCodeUpsertFailed, "failed to commit upsert", err)
	}
	return nil
}

// Search scans all rows and scores them by cosine similarity.
func (s *SQLiteStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if s.db == nil {
		return nil, fmt.Errorf("store is not initialized")
	}
	if s.dims != 0 && len(query) != s.dims {
		return nil, seekerrors.Newf(seekerrors.ErrCodeDimensionMismatch,
			"query has %d dimensions, store expects %d", len(query), s.dims)
	}

	maxResults := opts.MaxResults
	if maxResults == 0 {
		maxResults = 10
	}
	minScore := opts.MinScore
	if minScore < 0 {
		minScore = 0
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeVectorInPlace(normalized)

	q := `SELECT id, file_path, content, start_line, end_line, vector FROM chunks`
	var args []any
	if opts.PathPrefix != "" {
		q += ` WHERE file_path = ? OR file_path LIKE ?`
		prefix := strings.TrimSuffix(opts.PathPrefix, "/")
		args = append(args, prefix, prefix+"/%")
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, seekerrors.New(seekerrors.ErrCodeSearchFailed, "vector scan failed", err)
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var (
			res SearchResult
			raw []byte
		)
		if err := rows.Scan(&res.ID, &res.Payload.FilePath, &res.Payload.Content,
			&res.Payload.StartLine, &res.Payload.EndLine, &raw); err != nil {
			return nil, seekerrors.New(seekerrors.ErrCodeSearchFailed, "failed to scan row", err)
		}

		vec, err := decodeVector(raw)
		if err != nil {
			return nil, seekerrors.New(seekerrors.ErrCodeStoreCorrupt,
				fmt.Sprintf("corrupt vector for record %s", res.ID), err)
		}
		if len(vec) != len(normalized) {
			continue
		}

		res.Score = (cosineSimilarity(normalized, vec) + 1) / 2
		if res.Score >= minScore {
			results = append(results, res)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, seekerrors.New(seekerrors.ErrCodeSearchFailed, "vector scan failed", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// DeletePathRecords removes all records for the given paths.
func (s *SQLiteStore) DeletePathRecords(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if s.db == nil {
		return fmt.Errorf("store is not initialized")
	}

	placeholders := strings.Repeat("?,", len(paths))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(paths))
	for i, p := range paths {
		args[i] = p
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE file_path IN (`+placeholders+`)`, args...)
	if err != nil {
		return seekerrors.New(seekerrors.ErrCodeUpsertFailed, "failed to delete path records", err)
	}
	return nil
}

// Clear removes all records.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if s.db == nil {
		return fmt.Errorf("store is not initialized")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return seekerrors.New(seekerrors.ErrCodeUpsertFailed, "failed to clear store", err)
	}
	return nil
}

// Drop closes the database and removes the file.
func (s *SQLiteStore) Drop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
		s.db = nil
	}

	path := filepath.Join(s.dir, sqliteDBFile)
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	s.closed = true
	return nil
}

// Count returns the number of records.
func (s *SQLiteStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed || s.db == nil {
		return 0
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// encodeVector packs a float32 slice as little-endian bytes.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a little-endian float32 blob.
func decodeVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(raw))
	}
	v := make([]float32, len(raw)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return v, nil
}
