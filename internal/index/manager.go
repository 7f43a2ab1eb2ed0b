// Package index coordinates scanning, embedding, and vector storage
// behind a small state machine, and keeps the index synchronized with
// the file system.
package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"github.com/seekstack/codeseek/internal/cache"
	"github.com/seekstack/codeseek/internal/config"
	"github.com/seekstack/codeseek/internal/embed"
	seekerrors "github.com/seekstack/codeseek/internal/errors"
	"github.com/seekstack/codeseek/internal/ignore"
	"github.com/seekstack/codeseek/internal/scanner"
	"github.com/seekstack/codeseek/internal/store"
	"github.com/seekstack/codeseek/internal/watcher"
)

const (
	lockFileName  = "codeseek.lock"
	cacheFileName = "changes.db"

	// statusEvery is how many files pass between progress updates.
	statusEvery = 25
)

// Manager owns the indexing pipeline for one workspace. All mutating
// work is tagged with a generation number; Recreate and Clear bump the
// generation so in-flight work from the old configuration is discarded
// before it can touch the store.
type Manager struct {
	root string

	mu       sync.Mutex
	cfg      *config.Config
	resolver *ignore.Resolver
	scanner  *scanner.Scanner
	embedder embed.Embedder
	store    store.VectorStore
	cache    *cache.ChangeCache

	fileLock *flock.Flock

	state   State
	lastErr error

	generation atomic.Uint64
	processed  atomic.Int64
	total      atomic.Int64

	recreating atomic.Bool

	hub *statusHub

	watchMu     sync.Mutex
	watch       *watcher.HybridWatcher
	watchCancel context.CancelFunc
	watchDone   chan struct{}

	closed bool
}

// NewManager builds the pipeline from configuration and takes the
// single-instance lock on the data directory.
func NewManager(root string, cfg *config.Config) (*Manager, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, seekerrors.New(seekerrors.ErrCodeInternal, "failed to resolve workspace root", err)
	}

	dataDir := cfg.DataDir(absRoot)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, seekerrors.New(seekerrors.ErrCodeInternal, "failed to create data directory", err)
	}

	m := &Manager{
		root:  absRoot,
		cfg:   cfg,
		state: StateStandby,
		hub:   newStatusHub(),
	}

	// The lock must come first: opening the change cache on a locked
	// data directory would block on bbolt instead of reporting the
	// other process.
	m.fileLock = flock.New(filepath.Join(dataDir, lockFileName))
	locked, err := m.fileLock.TryLock()
	if err != nil {
		return nil, seekerrors.New(seekerrors.ErrCodeInternal, "failed to acquire data directory lock", err)
	}
	if !locked {
		return nil, seekerrors.Newf(seekerrors.ErrCodeInternal,
			"data directory %s is locked by another codeseek process", dataDir).
			WithSuggestion("stop the other process or point store.path elsewhere")
	}

	if err := m.buildComponents(cfg); err != nil {
		_ = m.fileLock.Unlock()
		return nil, err
	}

	return m, nil
}

// buildComponents constructs resolver, scanner, embedder, store, and
// cache from cfg. Caller holds m.mu (or the manager is not yet shared).
func (m *Manager) buildComponents(cfg *config.Config) error {
	dataDir := cfg.DataDir(m.root)

	if m.resolver == nil {
		// The resolver instance survives recreates so watcher filters
		// stay valid; only its rule set is reloaded.
		resolver, err := ignore.NewResolver(m.root)
		if err != nil {
			return err
		}
		m.resolver = resolver
	} else if err := m.resolver.Reload(); err != nil {
		return err
	}

	sc, err := scanner.New(m.root, m.resolver, scanner.Options{
		ChunkLines:   cfg.Scan.ChunkLines,
		OverlapLines: cfg.Scan.OverlapLines,
		MaxFileSize:  cfg.Scan.MaxFileSize,
		Workers:      cfg.Scan.Workers,
	})
	if err != nil {
		return err
	}

	embedder, err := embed.New(cfg.Embedder)
	if err != nil {
		return err
	}

	st, err := store.New(cfg.Store.Backend, dataDir, cfg.Embedder.Dimensions)
	if err != nil {
		_ = embedder.Close()
		return err
	}

	// Load the persisted index up front so read-only paths (search,
	// status, clear) see prior data without running a full pass.
	if _, err := st.Initialize(context.Background()); err != nil {
		_ = embedder.Close()
		_ = st.Close()
		return err
	}

	ch, err := cache.Open(filepath.Join(dataDir, cacheFileName))
	if err != nil {
		_ = embedder.Close()
		_ = st.Close()
		return err
	}

	m.cfg = cfg
	m.scanner = sc
	m.embedder = embedder
	m.store = st
	m.cache = ch
	return nil
}

// closeComponents releases embedder, store, and cache. Caller holds m.mu
// (or the manager is not yet shared).
func (m *Manager) closeComponents() {
	if m.embedder != nil {
		_ = m.embedder.Close()
		m.embedder = nil
	}
	if m.store != nil {
		_ = m.store.Close()
		m.store = nil
	}
	if m.cache != nil {
		_ = m.cache.Close()
		m.cache = nil
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns a snapshot of the current progress.
func (m *Manager) Status() StatusUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return StatusUpdate{
		State:      m.state,
		Processed:  int(m.processed.Load()),
		Total:      int(m.total.Load()),
		Generation: m.generation.Load(),
		Err:        m.lastErr,
	}
}

// Subscribe returns a channel of status updates. The channel is closed
// when the manager stops.
func (m *Manager) Subscribe() <-chan StatusUpdate {
	return m.hub.subscribe()
}

// Count returns the number of records in the vector store.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store == nil {
		return 0
	}
	return m.store.Count()
}

// setState transitions the state machine and publishes the update.
func (m *Manager) setState(state State, err error) {
	m.mu.Lock()
	m.state = state
	m.lastErr = err
	update := StatusUpdate{
		State:      state,
		Processed:  int(m.processed.Load()),
		Total:      int(m.total.Load()),
		Generation: m.generation.Load(),
		Err:        err,
	}
	m.mu.Unlock()

	m.hub.publish(update)
}

// publishProgress emits a progress update without a state change.
func (m *Manager) publishProgress() {
	m.hub.publish(m.Status())
}

// Start validates the configuration and the embedding backend, runs a
// full indexing pass, and starts the file watcher. Validation failure
// routes to the error state without touching the store.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	cfg := m.cfg
	embedder := m.embedder
	m.mu.Unlock()

	if !cfg.IsEnabled() {
		m.setState(StateStandby, nil)
		return seekerrors.New(seekerrors.ErrCodeConfigDisabled, "semantic indexing is disabled", nil)
	}
	if err := cfg.Validate(); err != nil {
		m.setState(StateStandby, err)
		return err
	}

	if err := embedder.Validate(ctx); err != nil {
		m.setState(StateError, err)
		return err
	}

	gen := m.generation.Load()
	if err := m.fullPass(ctx, gen); err != nil {
		m.setState(StateError, err)
		return err
	}

	m.startWatcher()
	return nil
}

// fullPass scans the whole workspace, indexes changed files, and
// removes records for files that disappeared since the last pass.
func (m *Manager) fullPass(ctx context.Context, gen uint64) error {
	m.setState(StateIndexing, nil)
	m.processed.Store(0)
	m.total.Store(0)

	m.mu.Lock()
	sc, ch := m.scanner, m.cache
	m.mu.Unlock()

	seen := make(map[string]struct{})
	var changed []scanner.FileResult

	for res := range sc.Scan(ctx, nil) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.stale(gen) {
			return nil
		}

		m.total.Add(1)

		if res.Err != nil {
			slog.Warn("skipping file",
				slog.String("path", res.Path),
				slog.String("error", res.Err.Error()))
			// The file is still on disk; keep its existing records.
			// Only files that actually vanished get purged below.
			if seekerrors.GetCode(res.Err) != seekerrors.ErrCodeFileNotFound {
				seen[res.Path] = struct{}{}
			}
			m.processed.Add(1)
			continue
		}

		seen[res.Path] = struct{}{}

		if entry, ok := ch.Get(res.Path); ok && entry.ContentHash == res.ContentHash {
			m.processed.Add(1)
			continue
		}
		if len(res.Chunks) == 0 {
			m.processed.Add(1)
			continue
		}
		changed = append(changed, res)
	}

	if err := m.removeVanished(ctx, gen, seen); err != nil {
		return err
	}

	if err := m.indexResults(ctx, gen, changed); err != nil {
		return err
	}

	m.flushStore()
	if !m.stale(gen) {
		m.setState(StateIndexed, nil)
	}
	return nil
}

// removeVanished deletes records and cache entries for files that were
// indexed previously but no longer exist on disk.
func (m *Manager) removeVanished(ctx context.Context, gen uint64, seen map[string]struct{}) error {
	m.mu.Lock()
	st, ch := m.store, m.cache
	m.mu.Unlock()

	known, err := ch.Paths()
	if err != nil {
		return err
	}

	var vanished []string
	for _, path := range known {
		if _, ok := seen[path]; !ok {
			vanished = append(vanished, path)
		}
	}
	if len(vanished) == 0 {
		return nil
	}
	if m.stale(gen) {
		return nil
	}

	if err := st.DeletePathRecords(ctx, vanished...); err != nil {
		return err
	}
	for _, path := range vanished {
		if err := ch.Remove(path); err != nil {
			slog.Warn("failed to drop cache entry",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}

	slog.Info("removed vanished files", slog.Int("count", len(vanished)))
	return nil
}

// indexResults embeds and upserts the chunks of changed files. The
// change cache is updated per file only after every chunk of that file
// has been committed to the store.
func (m *Manager) indexResults(ctx context.Context, gen uint64, results []scanner.FileResult) error {
	if len(results) == 0 {
		return nil
	}

	m.mu.Lock()
	cfg, embedder, st, ch := m.cfg, m.embedder, m.store, m.cache
	m.mu.Unlock()

	var chunks []scanner.Chunk
	pending := make(map[string]int, len(results))
	hashes := make(map[string]string, len(results))
	for _, res := range results {
		chunks = append(chunks, res.Chunks...)
		pending[res.Path] = len(res.Chunks)
		hashes[res.Path] = res.ContentHash
	}

	batches, stats := scanner.BuildBatches(chunks, cfg.Embedder.MaxItemBytes, cfg.Embedder.MaxBatchBytes)
	if stats.Oversized > 0 {
		slog.Warn("oversized chunks excluded from embedding",
			slog.Int("count", stats.Oversized))
	}

	// Files that had stale records replaced need the old chunk set gone
	// first, or renamed ranges leave orphans behind.
	paths := make([]string, 0, len(pending))
	for path := range pending {
		paths = append(paths, path)
	}
	if m.stale(gen) {
		return nil
	}
	if err := st.DeletePathRecords(ctx, paths...); err != nil {
		return err
	}

	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.stale(gen) {
			return nil
		}

		texts := make([]string, len(batch.Chunks))
		for i, c := range batch.Chunks {
			texts[i] = c.Content
		}

		vectors, usage, err := embedder.Embed(ctx, texts)
		if err != nil {
			return err
		}

		records := make([]store.Record, 0, len(batch.Chunks))
		for i, c := range batch.Chunks {
			records = append(records, store.Record{
				ID:     c.ID,
				Vector: vectors[i],
				Payload: store.Payload{
					FilePath:  c.FilePath,
					Content:   c.Content,
					StartLine: c.StartLine,
					EndLine:   c.EndLine,
				},
			})
		}

		if m.stale(gen) {
			return nil
		}
		if err := st.Upsert(ctx, records); err != nil {
			return err
		}

		slog.Debug("indexed batch",
			slog.Int("chunks", len(records)),
			slog.Int("prompt_tokens", usage.PromptTokens))

		for _, c := range batch.Chunks {
			pending[c.FilePath]--
			if pending[c.FilePath] == 0 {
				if err := ch.Put(c.FilePath, hashes[c.FilePath]); err != nil {
					slog.Warn("failed to record file hash",
						slog.String("path", c.FilePath),
						slog.String("error", err.Error()))
				}
				if n := m.processed.Add(1); n%statusEvery == 0 {
					m.publishProgress()
				}
			}
		}
	}

	// Oversized-only files never reach the store; their chunks were
	// skipped deliberately but the file still counts as visited.
	for _, left := range pending {
		if left > 0 {
			m.processed.Add(1)
		}
	}

	return nil
}

// stale reports whether gen is no longer the active generation.
func (m *Manager) stale(gen uint64) bool {
	return m.generation.Load() != gen
}

// flushStore persists buffering backends.
func (m *Manager) flushStore() {
	m.mu.Lock()
	st := m.store
	m.mu.Unlock()

	if f, ok := st.(store.Flusher); ok {
		if err := f.Flush(); err != nil {
			slog.Warn("failed to flush vector store", slog.String("error", err.Error()))
		}
	}
}

// Search embeds the query and runs a similarity search. Zero-valued
// options fall back to the configured score floor and result cap;
// negative values request an unfiltered search.
func (m *Manager) Search(ctx context.Context, query string, opts store.SearchOptions) ([]store.SearchResult, error) {
	if query == "" {
		return nil, seekerrors.New(seekerrors.ErrCodeInvalidQuery, "query must not be empty", nil)
	}

	m.mu.Lock()
	cfg, embedder, st := m.cfg, m.embedder, m.store
	m.mu.Unlock()

	if opts.MinScore == 0 {
		opts.MinScore = float32(cfg.Search.MinScore)
	}
	if opts.MaxResults == 0 {
		opts.MaxResults = cfg.Search.MaxResults
	}

	vectors, _, err := embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, seekerrors.Newf(seekerrors.ErrCodeEmbeddingFailed,
			"expected 1 query vector, got %d", len(vectors))
	}

	results, err := st.Search(ctx, vectors[0], opts)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Clear bumps the generation, empties the store and the change cache,
// and returns to standby. In-flight work from the old generation is
// discarded before it can commit.
func (m *Manager) Clear(ctx context.Context) error {
	m.generation.Add(1)

	m.mu.Lock()
	st, ch := m.store, m.cache
	m.mu.Unlock()

	if err := st.Clear(ctx); err != nil {
		return err
	}
	if err := ch.Clear(); err != nil {
		return err
	}
	m.flushStore()

	m.processed.Store(0)
	m.total.Store(0)
	m.setState(StateStandby, nil)
	return nil
}

// Recreate tears the pipeline down, rebuilds every component from
// fresh configuration, and runs a new full pass. Only one recreate
// runs at a time; concurrent calls return immediately.
func (m *Manager) Recreate(ctx context.Context, clearIndex bool) error {
	if !m.recreating.CompareAndSwap(false, true) {
		return nil
	}
	defer m.recreating.Store(false)

	m.generation.Add(1)
	m.stopWatcher()

	cfg, err := config.Load(m.root)
	if err != nil {
		m.setState(StateError, err)
		return err
	}

	m.mu.Lock()
	m.closeComponents()
	err = m.buildComponents(cfg)
	m.mu.Unlock()
	if err != nil {
		m.setState(StateError, err)
		return err
	}

	if clearIndex {
		m.mu.Lock()
		st, ch := m.store, m.cache
		m.mu.Unlock()

		if err := st.Clear(ctx); err != nil {
			m.setState(StateError, err)
			return err
		}
		if err := ch.Clear(); err != nil {
			m.setState(StateError, err)
			return err
		}
	}

	return m.Start(ctx)
}

// Stop shuts the pipeline down and releases the data directory lock.
// Safe to call multiple times.
func (m *Manager) Stop() error {
	m.stopWatcher()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.closeComponents()
	m.mu.Unlock()

	m.hub.close()
	if err := m.fileLock.Unlock(); err != nil {
		slog.Warn("failed to release data directory lock", slog.String("error", err.Error()))
	}
	return nil
}
