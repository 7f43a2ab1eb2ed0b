package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize is the default number of embeddings kept
// in memory. At 768 dimensions * 4 bytes * 4096 entries that is about
// 12MB.
const DefaultEmbeddingCacheSize = 4096

// CachedEmbedder wraps an Embedder with an LRU cache keyed by text and
// model. Unchanged chunks and repeated queries skip the provider call.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder creates a cached embedder wrapping inner.
func NewCachedEmbedder(inner Embedder, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedEmbedder{inner: inner, cache: cache}
}

// cacheKey derives the cache key from text and model so a model switch
// never serves stale vectors.
func (c *CachedEmbedder) cacheKey(text string) string {
	combined := text + "\x00" + c.inner.ModelName()
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// Embed returns cached vectors where available and forwards only the
// misses to the wrapped embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, Usage, error) {
	if len(texts) == 0 {
		return [][]float32{}, Usage{}, nil
	}

	results := make([][]float32, len(texts))
	missIndices := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			results[i] = vec
		} else {
			missIndices = append(missIndices, i)
			missTexts = append(missTexts, text)
		}
	}

	if len(missTexts) == 0 {
		return results, Usage{}, nil
	}

	vectors, usage, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, Usage{}, err
	}

	for i, idx := range missIndices {
		results[idx] = vectors[i]
		c.cache.Add(c.cacheKey(missTexts[i]), vectors[i])
	}

	return results, usage, nil
}

// Validate forwards to the wrapped embedder.
func (c *CachedEmbedder) Validate(ctx context.Context) error {
	return c.inner.Validate(ctx)
}

// Dimensions returns the wrapped embedder's dimension.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// ModelName returns the wrapped embedder's model identifier.
func (c *CachedEmbedder) ModelName() string {
	return c.inner.ModelName()
}

// Purge empties the cache.
func (c *CachedEmbedder) Purge() {
	c.cache.Purge()
}

// Close closes the wrapped embedder.
func (c *CachedEmbedder) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}
