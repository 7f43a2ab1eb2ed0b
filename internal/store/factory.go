package store

import (
	seekerrors "github.com/seekstack/codeseek/internal/errors"
)

// Supported backends.
const (
	BackendHNSW   = "hnsw"
	BackendSQLite = "sqlite"
)

// Flusher is implemented by backends that buffer writes in memory and
// persist on demand. Callers should flush after each indexing pass.
type Flusher interface {
	Flush() error
}

// New creates a VectorStore for the given backend, persisting under dir.
// dims may be zero; the store then adopts the dimensionality of the
// first upserted record.
func New(backend, dir string, dims int) (VectorStore, error) {
	switch backend {
	case BackendHNSW, "":
		return NewHNSWStore(dir, dims), nil
	case BackendSQLite:
		return NewSQLiteStore(dir, dims), nil
	default:
		return nil, seekerrors.Newf(seekerrors.ErrCodeConfigInvalid,
			"unknown store backend %q (supported: hnsw, sqlite)", backend)
	}
}
