package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// StaticEmbedder generates embeddings using a hash-based approach.
// It works without external dependencies, producing deterministic
// vectors with reduced semantic quality. Useful offline and in tests.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// programmingStopWords are common keywords filtered before hashing.
var programmingStopWords = map[string]bool{
	"func": true, "function": true, "def": true, "class": true,
	"return": true, "import": true, "const": true, "var": true,
	"let": true, "int": true, "string": true, "bool": true,
	"void": true, "true": true, "false": true, "nil": true,
	"null": true, "this": true, "self": true, "new": true,
}

// Weights for vector generation.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// NewStaticEmbedder creates a new static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed generates deterministic embeddings for texts.
func (e *StaticEmbedder) Embed(_ context.Context, texts []string) ([][]float32, Usage, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, Usage{}, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	results := make([][]float32, len(texts))
	var usage Usage
	for i, text := range texts {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			results[i] = make([]float32, StaticDimensions)
			continue
		}
		results[i] = normalizeVector(e.generateVector(trimmed))
		usage.PromptTokens += estimateTokens(text)
	}
	return results, usage, nil
}

// Validate always succeeds: the static embedder has no dependencies.
func (e *StaticEmbedder) Validate(_ context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return fmt.Errorf("embedder is closed")
	}
	return nil
}

// generateVector creates a hash-based vector from text. Tokens carry
// most of the weight; character trigrams add robustness to identifier
// variations.
func (e *StaticEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, StaticDimensions)

	tokens := filterStopWords(tokenize(text))
	for _, token := range tokens {
		vector[hashToIndex(token, StaticDimensions)] += tokenWeight
	}

	for _, token := range tokens {
		for _, ngram := range ngrams(token, ngramSize) {
			vector[hashToIndex(ngram, StaticDimensions)] += ngramWeight
		}
	}

	return vector
}

// tokenize splits text into lowercase alphanumeric tokens, splitting
// camelCase identifiers.
func tokenize(text string) []string {
	raw := tokenRegex.FindAllString(text, -1)
	var tokens []string
	for _, t := range raw {
		for _, part := range splitCamelCase(t) {
			tokens = append(tokens, strings.ToLower(part))
		}
	}
	return tokens
}

// splitCamelCase splits identifiers like parseHTTPResponse into words.
func splitCamelCase(s string) []string {
	var words []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			next := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && next) {
				if current.Len() > 0 {
					words = append(words, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}
	return words
}

// filterStopWords removes common programming keywords.
func filterStopWords(tokens []string) []string {
	filtered := tokens[:0]
	for _, t := range tokens {
		if !programmingStopWords[t] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// ngrams returns character n-grams of s.
func ngrams(s string, n int) []string {
	if len(s) < n {
		return nil
	}
	grams := make([]string, 0, len(s)-n+1)
	for i := 0; i+n <= len(s); i++ {
		grams = append(grams, s[i:i+n])
	}
	return grams
}

// hashToIndex maps a string to a vector index.
func hashToIndex(s string, dims int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(dims))
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int {
	return StaticDimensions
}

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string {
	return "static-hash-v1"
}

// Close releases resources.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
