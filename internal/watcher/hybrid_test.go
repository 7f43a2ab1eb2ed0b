package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allowAllFilter admits every path except an optional denied prefix.
type allowAllFilter struct {
	denyPrefix string
}

func (f allowAllFilter) IsAllowed(path string) bool {
	if f.denyPrefix != "" && strings.HasPrefix(path, f.denyPrefix) {
		return false
	}
	return true
}

func (f allowAllFilter) IsIgnoreFile(path string) bool {
	name := filepath.Base(path)
	return name == ".codeseekignore" || name == ".gitignore"
}

// startWatcher runs the watcher in the background and waits briefly for
// the directory registrations to settle.
func startWatcher(t *testing.T, h *HybridWatcher, root string) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.Start(ctx, root) }()
	time.Sleep(100 * time.Millisecond)
	return cancel
}

// waitForEvent waits until an event matching pred arrives.
func waitForEvent(t *testing.T, h *HybridWatcher, timeout time.Duration, pred func(FileEvent) bool) (FileEvent, bool) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case batch, ok := <-h.Events():
			if !ok {
				return FileEvent{}, false
			}
			for _, e := range batch {
				if pred(e) {
					return e, true
				}
			}
		case <-deadline:
			return FileEvent{}, false
		}
	}
}

func TestHybridWatcherDetectsCreate(t *testing.T) {
	root := t.TempDir()

	h, err := NewHybridWatcher(allowAllFilter{}, Options{DebounceWindow: 50 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = h.Stop() }()

	cancel := startWatcher(t, h, root)
	defer cancel()

	// When a new file appears
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644))

	// Then a create event surfaces
	event, found := waitForEvent(t, h, 3*time.Second, func(e FileEvent) bool {
		return e.Path == "main.go"
	})
	require.True(t, found, "expected an event for main.go")
	assert.Equal(t, OpCreate, event.Operation)
}

func TestHybridWatcherDetectsDelete(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "gone.go")
	require.NoError(t, os.WriteFile(target, []byte("package gone\n"), 0o644))

	h, err := NewHybridWatcher(allowAllFilter{}, Options{DebounceWindow: 50 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = h.Stop() }()

	cancel := startWatcher(t, h, root)
	defer cancel()

	require.NoError(t, os.Remove(target))

	event, found := waitForEvent(t, h, 3*time.Second, func(e FileEvent) bool {
		return e.Path == "gone.go"
	})
	require.True(t, found, "expected an event for gone.go")
	assert.Equal(t, OpDelete, event.Operation)
}

func TestHybridWatcherFiltersDeniedPaths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "vendor"), 0o755))

	h, err := NewHybridWatcher(allowAllFilter{denyPrefix: "vendor"}, Options{DebounceWindow: 50 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = h.Stop() }()

	cancel := startWatcher(t, h, root)
	defer cancel()

	// Given one denied write and one allowed write
	require.NoError(t, os.WriteFile(filepath.Join(root, "vendor", "dep.go"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.go"), []byte("y"), 0o644))

	// Then only the allowed path surfaces
	event, found := waitForEvent(t, h, 3*time.Second, func(e FileEvent) bool {
		return strings.HasPrefix(e.Path, "vendor") || e.Path == "app.go"
	})
	require.True(t, found)
	assert.Equal(t, "app.go", event.Path)
}

func TestHybridWatcherEmitsIgnoreChange(t *testing.T) {
	root := t.TempDir()

	h, err := NewHybridWatcher(allowAllFilter{}, Options{DebounceWindow: 50 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = h.Stop() }()

	cancel := startWatcher(t, h, root)
	defer cancel()

	// When the primary ignore file changes
	require.NoError(t, os.WriteFile(filepath.Join(root, ".codeseekignore"), []byte("*.log\n"), 0o644))

	// Then an ignore change event surfaces instead of a create
	event, found := waitForEvent(t, h, 3*time.Second, func(e FileEvent) bool {
		return e.Path == ".codeseekignore"
	})
	require.True(t, found)
	assert.Equal(t, OpIgnoreChange, event.Operation)
}

func TestHybridWatcherEmitsConfigChange(t *testing.T) {
	root := t.TempDir()

	h, err := NewHybridWatcher(allowAllFilter{}, Options{DebounceWindow: 50 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = h.Stop() }()

	cancel := startWatcher(t, h, root)
	defer cancel()

	require.NoError(t, os.WriteFile(filepath.Join(root, ".codeseek.yaml"), []byte("version: 1\n"), 0o644))

	event, found := waitForEvent(t, h, 3*time.Second, func(e FileEvent) bool {
		return e.Path == ".codeseek.yaml"
	})
	require.True(t, found)
	assert.Equal(t, OpConfigChange, event.Operation)
}

func TestHybridWatcherWatchesNewSubdirectories(t *testing.T) {
	root := t.TempDir()

	h, err := NewHybridWatcher(allowAllFilter{}, Options{DebounceWindow: 50 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = h.Stop() }()

	cancel := startWatcher(t, h, root)
	defer cancel()

	// Given a directory created after Start
	sub := filepath.Join(root, "pkg")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	time.Sleep(200 * time.Millisecond)

	// When a file lands inside it
	require.NoError(t, os.WriteFile(filepath.Join(sub, "util.go"), []byte("package pkg\n"), 0o644))

	// Then the file event surfaces
	_, found := waitForEvent(t, h, 3*time.Second, func(e FileEvent) bool {
		return e.Path == "pkg/util.go"
	})
	assert.True(t, found, "expected an event for pkg/util.go")
}

func TestHybridWatcherStopIsIdempotent(t *testing.T) {
	h, err := NewHybridWatcher(allowAllFilter{}, Options{})
	require.NoError(t, err)

	require.NoError(t, h.Stop())
	require.NoError(t, h.Stop())

	_, open := <-h.Events()
	assert.False(t, open)
}

func TestPollingWatcherDetectsChanges(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "old.go")
	require.NoError(t, os.WriteFile(existing, []byte("package old\n"), 0o644))

	p := NewPollingWatcher(allowAllFilter{}, 50*time.Millisecond)
	defer func() { _ = p.Stop() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Start(ctx, root) }()
	time.Sleep(100 * time.Millisecond)

	// When a file is added after the baseline scan
	require.NoError(t, os.WriteFile(filepath.Join(root, "new.go"), []byte("package new\n"), 0o644))

	deadline := time.After(3 * time.Second)
	for {
		select {
		case e := <-p.Events():
			if e.Path == "new.go" {
				assert.Equal(t, OpCreate, e.Operation)
				return
			}
		case <-deadline:
			t.Fatal("expected a create event for new.go")
		}
	}
}

func TestPollingWatcherPrunesIgnoredDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "vendor"), 0o755))

	p := NewPollingWatcher(allowAllFilter{denyPrefix: "vendor"}, 50*time.Millisecond)
	defer func() { _ = p.Stop() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Start(ctx, root) }()
	time.Sleep(100 * time.Millisecond)

	// Given one write inside the pruned subtree and one outside it
	require.NoError(t, os.WriteFile(filepath.Join(root, "vendor", "dep.go"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.go"), []byte("y"), 0o644))

	// Then only the outside write ever surfaces
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e := <-p.Events():
			require.False(t, strings.HasPrefix(e.Path, "vendor"),
				"pruned subtree leaked event for %s", e.Path)
			if e.Path == "app.go" {
				return
			}
		case <-deadline:
			t.Fatal("expected a create event for app.go")
		}
	}
}
