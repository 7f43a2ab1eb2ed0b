package index

import (
	"context"
	"log/slog"

	"github.com/seekstack/codeseek/internal/config"
	"github.com/seekstack/codeseek/internal/scanner"
	"github.com/seekstack/codeseek/internal/watcher"
)

// startWatcher launches the file watcher and the event loop. No-op if
// a watcher is already running.
func (m *Manager) startWatcher() {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()

	if m.watch != nil {
		return
	}

	m.mu.Lock()
	cfg, resolver := m.cfg, m.resolver
	m.mu.Unlock()

	w, err := watcher.NewHybridWatcher(resolver, watcher.Options{
		DebounceWindow: cfg.DebounceDuration(),
	})
	if err != nil {
		slog.Warn("failed to create file watcher, incremental updates disabled",
			slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.watch = w
	m.watchCancel = cancel
	m.watchDone = done

	go func() { _ = w.Start(ctx, m.root) }()

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-w.Events():
				if !ok {
					return
				}
				m.handleEvents(ctx, batch)
			case err, ok := <-w.Errors():
				if !ok {
					return
				}
				slog.Warn("watcher error", slog.String("error", err.Error()))
			}
		}
	}()
}

// stopWatcher stops the watcher and waits for the event loop to exit.
func (m *Manager) stopWatcher() {
	m.watchMu.Lock()
	w, cancel, done := m.watch, m.watchCancel, m.watchDone
	m.watch = nil
	m.watchCancel = nil
	m.watchDone = nil
	m.watchMu.Unlock()

	if w == nil {
		return
	}
	cancel()
	_ = w.Stop()
	<-done
}

// handleEvents processes one debounced batch. Ignore rule and config
// changes take a reconciliation path; plain file events are indexed or
// removed one by one. Per-file failures are logged and skipped so one
// bad file cannot stall the batch.
func (m *Manager) handleEvents(ctx context.Context, events []watcher.FileEvent) {
	gen := m.generation.Load()

	for _, event := range events {
		if m.stale(gen) {
			return
		}

		switch event.Operation {
		case watcher.OpIgnoreChange:
			m.handleIgnoreChange(ctx, gen, event.Path)
			return // reconciliation covers the rest of the batch

		case watcher.OpConfigChange:
			m.handleConfigChange()
			return

		case watcher.OpCreate, watcher.OpModify:
			if event.IsDir {
				continue
			}
			if err := m.indexOne(ctx, gen, event.Path); err != nil {
				slog.Warn("failed to index file",
					slog.String("path", event.Path),
					slog.String("error", err.Error()))
			}

		case watcher.OpDelete, watcher.OpRename:
			// Renames surface as delete + create pairs; the delete leg
			// cleans up the old path.
			if err := m.removeOne(ctx, gen, event.Path); err != nil {
				slog.Warn("failed to remove file from index",
					slog.String("path", event.Path),
					slog.String("error", err.Error()))
			}
		}
	}

	m.flushStore()
	if m.State() == StateIndexing && !m.stale(gen) {
		m.setState(StateIndexed, nil)
	}
}

// indexOne re-indexes a single file if its content hash changed.
func (m *Manager) indexOne(ctx context.Context, gen uint64, relPath string) error {
	m.mu.Lock()
	sc, ch := m.scanner, m.cache
	m.mu.Unlock()

	res := sc.ScanFile(relPath)
	if res.Err != nil {
		return res.Err
	}

	if entry, ok := ch.Get(res.Path); ok && entry.ContentHash == res.ContentHash {
		return nil
	}
	if len(res.Chunks) == 0 {
		// Emptied or binary now; drop whatever was indexed before
		return m.removeOne(ctx, gen, res.Path)
	}

	return m.indexResults(ctx, gen, []scanner.FileResult{res})
}

// removeOne deletes a file's records and cache entry.
func (m *Manager) removeOne(ctx context.Context, gen uint64, relPath string) error {
	m.mu.Lock()
	st, ch := m.store, m.cache
	m.mu.Unlock()

	if m.stale(gen) {
		return nil
	}
	if err := st.DeletePathRecords(ctx, relPath); err != nil {
		return err
	}
	return ch.Remove(relPath)
}

// handleIgnoreChange reloads ignore rules and reconciles the whole
// index against the new rule set: newly ignored files drop out, newly
// allowed files are picked up by the full pass.
func (m *Manager) handleIgnoreChange(ctx context.Context, gen uint64, path string) {
	slog.Info("ignore rules changed, reconciling index", slog.String("trigger", path))

	m.mu.Lock()
	resolver := m.resolver
	m.mu.Unlock()

	if err := resolver.Reload(); err != nil {
		slog.Warn("failed to reload ignore rules", slog.String("error", err.Error()))
		return
	}

	if m.stale(gen) {
		return
	}
	if err := m.fullPass(ctx, gen); err != nil {
		m.setState(StateError, err)
	}
}

// handleConfigChange reloads configuration. Identity-changing edits
// (provider, model, dimensions, store identity, chunking) trigger a
// full recreate; cosmetic edits apply in place.
func (m *Manager) handleConfigChange() {
	newCfg, err := config.Load(m.root)
	if err != nil {
		slog.Warn("ignoring invalid config change", slog.String("error", err.Error()))
		return
	}

	m.mu.Lock()
	oldCfg := m.cfg
	m.mu.Unlock()

	if !newCfg.IsEnabled() {
		slog.Info("indexing disabled by config change")
		m.generation.Add(1)
		m.mu.Lock()
		m.cfg = newCfg
		m.mu.Unlock()
		// stopWatcher waits for the event loop that delivered this
		// event, so it must not run on that goroutine.
		go func() {
			m.stopWatcher()
			m.setState(StateStandby, nil)
		}()
		return
	}

	if newCfg.RequiresRecreate(oldCfg) {
		slog.Info("config change requires index recreation")
		// Recreate stops the watcher whose context delivered this
		// event, so it must not run on that context.
		go func() {
			if err := m.Recreate(context.Background(), true); err != nil {
				slog.Warn("recreate after config change failed", slog.String("error", err.Error()))
			}
		}()
		return
	}

	slog.Info("applied cosmetic config change")
	m.mu.Lock()
	m.cfg = newCfg
	m.mu.Unlock()
}
