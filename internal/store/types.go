// Package store persists chunk vectors and serves similarity queries.
package store

import (
	"context"
	"math"
)

// Payload is the chunk metadata stored alongside each vector.
type Payload struct {
	FilePath  string
	Content   string
	StartLine int
	EndLine   int
}

// Record is a vector with its chunk payload.
type Record struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// SearchResult is a scored match.
type SearchResult struct {
	ID      string
	Score   float32
	Payload Payload
}

// SearchOptions narrows a similarity query.
type SearchOptions struct {
	// PathPrefix restricts results to files under the given prefix.
	PathPrefix string

	// MinScore drops results below this similarity score. Negative
	// disables the floor.
	MinScore float32

	// MaxResults caps the number of results. 0 means the backend
	// default of 10; negative returns every match.
	MaxResults int
}

// VectorStore persists chunk vectors and serves similarity queries.
type VectorStore interface {
	// Initialize opens or creates the backing storage. createdNew is
	// true when no prior index existed.
	Initialize(ctx context.Context) (createdNew bool, err error)

	// Upsert inserts or replaces records by ID.
	Upsert(ctx context.Context, records []Record) error

	// Search returns the best matches for query, best first.
	Search(ctx context.Context, query []float32, opts SearchOptions) ([]SearchResult, error)

	// DeletePathRecords removes all records belonging to the given
	// file paths. Missing paths are no-ops.
	DeletePathRecords(ctx context.Context, paths ...string) error

	// Clear removes all records but keeps the store usable.
	Clear(ctx context.Context) error

	// Drop removes the store's on-disk data entirely.
	Drop(ctx context.Context) error

	// Count returns the number of live records.
	Count() int

	// Close flushes and releases resources.
	Close() error
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// distanceToScore converts a cosine distance (0..2) to a similarity
// score in 0..1.
func distanceToScore(distance float32) float32 {
	return 1.0 - distance/2.0
}

// cosineSimilarity computes the cosine similarity of two unit vectors.
func cosineSimilarity(a, b []float32) float32 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot)
}
