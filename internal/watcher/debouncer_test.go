package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectBatch(t *testing.T, d *Debouncer, timeout time.Duration) []FileEvent {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(timeout):
		return nil
	}
}

func TestDebouncerEmitsAfterWindow(t *testing.T) {
	// Given a debouncer with a short window
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	// When adding a single event
	d.Add(FileEvent{Path: "a.go", Operation: OpModify, Timestamp: time.Now()})

	// Then the event is emitted after the window elapses
	batch := collectBatch(t, d, time.Second)
	require.Len(t, batch, 1)
	assert.Equal(t, "a.go", batch[0].Path)
	assert.Equal(t, OpModify, batch[0].Operation)
}

func TestDebouncerCoalescesCreateModify(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	// Given a create followed by a modify for the same path
	d.Add(FileEvent{Path: "a.go", Operation: OpCreate})
	d.Add(FileEvent{Path: "a.go", Operation: OpModify})

	// Then the pair collapses to a single create
	batch := collectBatch(t, d, time.Second)
	require.Len(t, batch, 1)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestDebouncerCancelsCreateDelete(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	// Given a create followed by a delete for the same path
	d.Add(FileEvent{Path: "a.go", Operation: OpCreate})
	d.Add(FileEvent{Path: "a.go", Operation: OpDelete})

	// Then nothing is emitted
	batch := collectBatch(t, d, 200*time.Millisecond)
	assert.Empty(t, batch)
}

func TestDebouncerDeleteCreateBecomesModify(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	// Given a delete followed by a create (file replaced)
	d.Add(FileEvent{Path: "a.go", Operation: OpDelete})
	d.Add(FileEvent{Path: "a.go", Operation: OpCreate})

	// Then the pair collapses to a modify
	batch := collectBatch(t, d, time.Second)
	require.Len(t, batch, 1)
	assert.Equal(t, OpModify, batch[0].Operation)
}

func TestDebouncerModifyDeleteBecomesDelete(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "a.go", Operation: OpModify})
	d.Add(FileEvent{Path: "a.go", Operation: OpDelete})

	batch := collectBatch(t, d, time.Second)
	require.Len(t, batch, 1)
	assert.Equal(t, OpDelete, batch[0].Operation)
}

func TestDebouncerBatchesDistinctPaths(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	// Given events on three distinct paths within one window
	d.Add(FileEvent{Path: "a.go", Operation: OpModify})
	d.Add(FileEvent{Path: "b.go", Operation: OpCreate})
	d.Add(FileEvent{Path: "c.go", Operation: OpDelete})

	// Then they arrive as one batch
	batch := collectBatch(t, d, time.Second)
	require.Len(t, batch, 3)

	paths := make(map[string]Operation, len(batch))
	for _, e := range batch {
		paths[e.Path] = e.Operation
	}
	assert.Equal(t, OpModify, paths["a.go"])
	assert.Equal(t, OpCreate, paths["b.go"])
	assert.Equal(t, OpDelete, paths["c.go"])
}

func TestDebouncerStopIsIdempotent(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	d.Stop()
	d.Stop()

	// Adds after stop are dropped silently
	d.Add(FileEvent{Path: "a.go", Operation: OpModify})

	_, open := <-d.Output()
	assert.False(t, open)
}
