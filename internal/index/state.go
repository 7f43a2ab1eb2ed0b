package index

import (
	"sync"
)

// State is the lifecycle state of the index manager.
type State int

const (
	// StateStandby means the manager is constructed but not indexing.
	// Configuration problems keep the manager here.
	StateStandby State = iota
	// StateIndexing means a full or incremental pass is in progress.
	StateIndexing
	// StateIndexed means the index is built and serving searches.
	StateIndexed
	// StateError means validation or an indexing pass failed.
	StateError
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStandby:
		return "standby"
	case StateIndexing:
		return "indexing"
	case StateIndexed:
		return "indexed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// StatusUpdate is an immutable snapshot of indexing progress. Updates
// are emitted on every state transition and periodically while a pass
// is running.
type StatusUpdate struct {
	State      State
	Processed  int
	Total      int
	Generation uint64
	Err        error
}

// statusHub fans StatusUpdate snapshots out to subscribers. Slow
// subscribers miss intermediate updates rather than blocking the
// indexing path.
type statusHub struct {
	mu     sync.Mutex
	subs   []chan StatusUpdate
	closed bool
}

func newStatusHub() *statusHub {
	return &statusHub{}
}

// subscribe registers a new subscriber channel.
func (h *statusHub) subscribe() <-chan StatusUpdate {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan StatusUpdate, 16)
	if h.closed {
		close(ch)
		return ch
	}
	h.subs = append(h.subs, ch)
	return ch
}

// publish sends an update to all subscribers without blocking.
func (h *statusHub) publish(update StatusUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	for _, ch := range h.subs {
		select {
		case ch <- update:
		default:
		}
	}
}

// close closes all subscriber channels.
func (h *statusHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for _, ch := range h.subs {
		close(ch)
	}
	h.subs = nil
}
