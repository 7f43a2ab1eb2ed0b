// Package embed generates vector embeddings for text chunks.
package embed

import (
	"context"
	"math"
	"time"
)

// Common embedding constants.
const (
	// DefaultBatchSize is the default number of texts per request.
	DefaultBatchSize = 32

	// MaxBatchSize caps the number of texts per request.
	MaxBatchSize = 256

	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the default number of retry attempts.
	DefaultMaxRetries = 3

	// DefaultItemTokenLimit is the per-text token ceiling.
	DefaultItemTokenLimit = 2048

	// DefaultBatchTokenBudget is the cumulative token budget per request.
	DefaultBatchTokenBudget = 65536
)

// Static embedder constants.
const (
	// StaticDimensions is the embedding dimension for the static embedder.
	StaticDimensions = 256
)

// Usage reports token consumption for an embedding call. When the
// provider doesn't report usage, PromptTokens carries a best-effort
// estimate.
type Usage struct {
	PromptTokens int
}

// Add accumulates usage from another call.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
}

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embeddings for texts. The result has one vector
	// per input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, Usage, error)

	// Validate checks that the backend is reachable and the configured
	// model is available.
	Validate(ctx context.Context) error

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}

// estimateTokens is a cheap length-based token estimate, roughly four
// bytes per token for code and prose alike.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // zero vector stays as-is
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
