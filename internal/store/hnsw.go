package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	seekerrors "github.com/seekstack/codeseek/internal/errors"
)

const (
	hnswIndexFile = "vectors.hnsw"
	hnswMetaFile  = "vectors.hnsw.meta"
)

// HNSWStore implements VectorStore with a pure Go HNSW graph.
// Deletions are lazy: the node stays in the graph but loses its ID
// mapping, so it never surfaces in results.
type HNSWStore struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]

	dir  string
	dims int

	idMap    map[string]uint64 // record ID -> graph key
	keyMap   map[uint64]string // graph key -> record ID
	payloads map[string]Payload
	byPath   map[string]map[string]struct{} // file path -> record IDs
	nextKey  uint64

	dirty       bool
	closed      bool
	initialized bool
}

// hnswMetadata is the gob-persisted sidecar next to the graph file.
type hnswMetadata struct {
	IDMap      map[string]uint64
	Payloads   map[string]Payload
	NextKey    uint64
	Dimensions int
}

var _ VectorStore = (*HNSWStore)(nil)

// NewHNSWStore creates an HNSW store persisting under dir.
func NewHNSWStore(dir string, dims int) *HNSWStore {
	return &HNSWStore{
		graph:    newGraph(),
		dir:      dir,
		dims:     dims,
		idMap:    make(map[string]uint64),
		keyMap:   make(map[uint64]string),
		payloads: make(map[string]Payload),
		byPath:   make(map[string]map[string]struct{}),
	}
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 20
	g.Ml = 0.25
	return g
}

// Initialize loads the persisted graph if present. createdNew is true
// when starting from an empty index.
func (s *HNSWStore) Initialize(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, fmt.Errorf("store is closed")
	}
	if s.initialized {
		return false, nil
	}

	indexPath := filepath.Join(s.dir, hnswIndexFile)
	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return false, seekerrors.New(seekerrors.ErrCodeStoreCorrupt,
				"failed to create store directory", err)
		}
		s.initialized = true
		return true, nil
	}

	if err := s.load(indexPath); err != nil {
		return false, seekerrors.New(seekerrors.ErrCodeStoreCorrupt,
			"failed to load vector index", err).
			WithSuggestion("run a full re-index to rebuild the store")
	}
	s.initialized = true
	return false, nil
}

// load restores the graph and its metadata sidecar.
func (s *HNSWStore) load(indexPath string) error {
	metaFile, err := os.Open(filepath.Join(s.dir, hnswMetaFile))
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer func() { _ = metaFile.Close() }()

	var meta hnswMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	file, err := os.Open(indexPath)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// Import requires an io.ByteReader
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	s.idMap = meta.IDMap
	s.payloads = meta.Payloads
	s.nextKey = meta.NextKey
	if meta.Dimensions != 0 {
		s.dims = meta.Dimensions
	}

	s.keyMap = make(map[uint64]string, len(s.idMap))
	s.byPath = make(map[string]map[string]struct{})
	for id, key := range s.idMap {
		s.keyMap[key] = id
		s.indexPath(id, s.payloads[id].FilePath)
	}
	return nil
}

// indexPath records id under its file path. Caller holds the lock.
func (s *HNSWStore) indexPath(id, path string) {
	if path == "" {
		return
	}
	ids, ok := s.byPath[path]
	if !ok {
		ids = make(map[string]struct{})
		s.byPath[path] = ids
	}
	ids[id] = struct{}{}
}

// Upsert inserts or replaces records. Existing IDs are lazily deleted
// and re-added under a fresh graph key.
func (s *HNSWStore) Upsert(_ context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
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

	for _, r := range records {
		if existingKey, exists := s.idMap[r.ID]; exists {
			delete(s.keyMap, existingKey)
			s.forgetPath(r.ID)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		normalizeVectorInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))

		s.idMap[r.ID] = key
		s.keyMap[key] = r.ID
		s.payloads[r.ID] = r.Payload
		s.indexPath(r.ID, r.Payload.FilePath)
	}

	s.dirty = true
	return nil
}

// forgetPath removes id from the path index. Caller holds the lock.
func (s *HNSWStore) forgetPath(id string) {
	path := s.payloads[id].FilePath
	if ids, ok := s.byPath[path]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.byPath, path)
		}
	}
}

// Search returns the best matches for query, best first. The graph is
// over-queried to compensate for lazily deleted nodes and post-filters.
func (s *HNSWStore) Search(_ context.Context, query []float32, opts SearchOptions) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if s.dims == 0 || s.graph.Len() == 0 || len(s.idMap) == 0 {
		return []SearchResult{}, nil
	}
	if len(query) != s.dims {
		return nil, seekerrors.Newf(seekerrors.ErrCodeDimensionMismatch,
			"query has %d dimensions, store expects %d", len(query), s.dims)
	}

	maxResults := opts.MaxResults
	if maxResults == 0 {
		maxResults = 10
	}
	if maxResults < 0 || maxResults > len(s.idMap) {
		maxResults = len(s.idMap)
	}
	minScore := opts.MinScore
	if minScore < 0 {
		minScore = 0
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeVectorInPlace(normalized)

	// Fetch extra candidates: orphaned nodes and filtered paths eat
	// into the result budget
	k := maxResults * 4
	if k < 32 {
		k = 32
	}
	nodes := s.graph.Search(normalized, k)

	results := make([]SearchResult, 0, maxResults)
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue // lazily deleted
		}

		payload := s.payloads[id]
		if opts.PathPrefix != "" && !hasPathPrefix(payload.FilePath, opts.PathPrefix) {
			continue
		}

		score := distanceToScore(s.graph.Distance(normalized, node.Value))
		if score < minScore {
			continue
		}

		results = append(results, SearchResult{ID: id, Score: score, Payload: payload})
	}

	// Graph traversal order is approximate; callers rely on a strict
	// best-first order.
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// hasPathPrefix reports whether path is prefix itself or lives under it.
func hasPathPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		return path[len(prefix)] == '/' || prefix[len(prefix)-1] == '/'
	}
	return false
}

// DeletePathRecords lazily deletes all records for the given paths.
func (s *HNSWStore) DeletePathRecords(_ context.Context, paths ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, path := range paths {
		for id := range s.byPath[path] {
			if key, exists := s.idMap[id]; exists {
				delete(s.keyMap, key)
				delete(s.idMap, id)
			}
			delete(s.payloads, id)
		}
		delete(s.byPath, path)
	}

	s.dirty = true
	return nil
}

// Clear drops all records but keeps the store usable.
func (s *HNSWStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	s.graph = newGraph()
	s.idMap = make(map[string]uint64)
	s.keyMap = make(map[uint64]string)
	s.payloads = make(map[string]Payload)
	s.byPath = make(map[string]map[string]struct{})
	s.nextKey = 0
	s.dirty = true
	return nil
}

// Drop removes the on-disk index files.
func (s *HNSWStore) Drop(ctx context.Context) error {
	if err := s.Clear(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range []string{hnswIndexFile, hnswMetaFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}
	s.dirty = false
	return nil
}

// Count returns the number of live records.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Flush persists the graph and metadata atomically (temp file + rename).
func (s *HNSWStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *HNSWStore) flushLocked() error {
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if !s.dirty {
		return nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	indexPath := filepath.Join(s.dir, hnswIndexFile)
	tmpIndex := indexPath + ".tmp"
	file, err := os.Create(tmpIndex)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpIndex)
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpIndex)
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tmpIndex, indexPath); err != nil {
		_ = os.Remove(tmpIndex)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	metaPath := filepath.Join(s.dir, hnswMetaFile)
	tmpMeta := metaPath + ".tmp"
	metaFile, err := os.Create(tmpMeta)
	if err != nil {
		return fmt.Errorf("failed to create metadata file: %w", err)
	}
	meta := hnswMetadata{
		IDMap:      s.idMap,
		Payloads:   s.payloads,
		NextKey:    s.nextKey,
		Dimensions: s.dims,
	}
	if err := gob.NewEncoder(metaFile).Encode(meta); err != nil {
		_ = metaFile.Close()
		_ = os.Remove(tmpMeta)
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := metaFile.Close(); err != nil {
		_ = os.Remove(tmpMeta)
		return fmt.Errorf("failed to close metadata file: %w", err)
	}
	if err := os.Rename(tmpMeta, metaPath); err != nil {
		_ = os.Remove(tmpMeta)
		return fmt.Errorf("failed to rename metadata file: %w", err)
	}

	s.dirty = false
	return nil
}

// Close flushes pending changes and releases the graph.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	var flushErr error
	if s.dirty {
		flushErr = s.flushLocked()
	}

	s.closed = true
	s.graph = nil
	return flushErr
}
