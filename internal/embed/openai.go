package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	seekerrors "github.com/seekstack/codeseek/internal/errors"
)

// DefaultOpenAIEndpoint is the hosted OpenAI API address. Any
// OpenAI-compatible server (LM Studio, vLLM, llama.cpp) works by
// overriding the endpoint.
const DefaultOpenAIEndpoint = "https://api.openai.com"

// OpenAIConfig configures the OpenAI-compatible embedder.
type OpenAIConfig struct {
	Endpoint         string
	Model            string
	APIKey           string
	Dimensions       int
	BatchSize        int
	Timeout          time.Duration
	ItemTokenLimit   int
	BatchTokenBudget int
	Retry            seekerrors.RetryConfig
}

// OpenAIEmbedder generates embeddings via the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OpenAIConfig

	mu     sync.RWMutex
	closed bool
	dims   int
}

var _ Embedder = (*OpenAIEmbedder)(nil)

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
	} `json:"usage"`
}

// NewOpenAIEmbedder creates an OpenAI-compatible embedder. Connectivity
// is not checked here; call Validate before indexing.
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultOpenAIEndpoint
	}
	cfg.Endpoint = strings.TrimSuffix(cfg.Endpoint, "/")
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = seekerrors.DefaultRetryConfig()
	}

	transport := &http.Transport{
		MaxIdleConns:        8,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     10 * time.Second,
	}

	return &OpenAIEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		dims:      cfg.Dimensions,
	}
}

// Embed generates embeddings for texts. Empty texts and texts above
// the per-item token ceiling become zero vectors.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, Usage, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, Usage{}, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	results := make([][]float32, len(texts))
	var usage Usage

	batches, _ := buildTokenBatches(texts,
		e.config.BatchSize, e.config.ItemTokenLimit, e.config.BatchTokenBudget)

	for _, batch := range batches {
		batchTexts := make([]string, len(batch.indices))
		for i, idx := range batch.indices {
			batchTexts[i] = texts[idx]
		}

		res, err := seekerrors.RetryWithResult(ctx, e.config.Retry,
			func() (embedResult, error) {
				return e.doEmbed(ctx, batchTexts)
			})
		if err != nil {
			return nil, usage, err
		}
		vectors, batchUsage := res.vectors, res.usage
		if len(vectors) != len(batch.indices) {
			return nil, usage, seekerrors.Newf(seekerrors.ErrCodeEmbeddingFailed,
				"provider returned %d embeddings for %d inputs", len(vectors), len(batch.indices))
		}

		for i, idx := range batch.indices {
			results[idx] = vectors[i]
		}
		usage.Add(batchUsage)
	}

	for i, v := range results {
		if v == nil {
			results[i] = make([]float32, e.Dimensions())
		}
	}

	return results, usage, nil
}

// embedResult pairs vectors with usage through the generic retry helper.
type embedResult struct {
	vectors [][]float32
	usage   Usage
}

// doEmbed performs a single embeddings API request.
func (e *OpenAIEmbedder) doEmbed(ctx context.Context, texts []string) (embedResult, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(openAIEmbedRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return embedResult{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		e.config.Endpoint+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return embedResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return embedResult{}, classifyTransportError(e.config.Endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return embedResult{}, classifyStatusError(resp.StatusCode, string(respBody))
	}

	var apiResult openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
		return embedResult{}, seekerrors.New(seekerrors.ErrCodeEmbeddingFailed,
			"failed to decode embedding response", err)
	}

	// The API may return data out of order; index is authoritative
	vectors := make([][]float32, len(apiResult.Data))
	for _, item := range apiResult.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return embedResult{}, seekerrors.Newf(seekerrors.ErrCodeEmbeddingFailed,
				"embedding response index %d out of range", item.Index)
		}
		vec := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float32(v)
		}
		vectors[item.Index] = normalizeVector(vec)
	}

	e.rememberDimensions(vectors)

	usage := Usage{PromptTokens: apiResult.Usage.PromptTokens}
	if usage.PromptTokens == 0 {
		for _, t := range texts {
			usage.PromptTokens += estimateTokens(t)
		}
	}

	return embedResult{vectors: vectors, usage: usage}, nil
}

// Validate checks connectivity and credentials with a one-item probe.
func (e *OpenAIEmbedder) Validate(ctx context.Context) error {
	res, err := e.doEmbed(ctx, []string{"validation probe"})
	if err != nil {
		return err
	}
	if len(res.vectors) == 0 || len(res.vectors[0]) == 0 {
		return seekerrors.New(seekerrors.ErrCodeValidationFailed,
			"provider returned an empty embedding for the validation probe", nil)
	}
	if e.config.Dimensions != 0 && len(res.vectors[0]) != e.config.Dimensions {
		return seekerrors.Newf(seekerrors.ErrCodeDimensionMismatch,
			"provider returned %d dimensions, configuration expects %d",
			len(res.vectors[0]), e.config.Dimensions)
	}
	return nil
}

// rememberDimensions records the vector width from the first response.
func (e *OpenAIEmbedder) rememberDimensions(vectors [][]float32) {
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return
	}
	e.mu.Lock()
	if e.dims == 0 {
		e.dims = len(vectors[0])
	}
	e.mu.Unlock()
}

// Dimensions returns the embedding dimension, 0 until detected.
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
