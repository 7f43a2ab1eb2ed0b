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

// DefaultOllamaEndpoint is the standard local Ollama API address.
const DefaultOllamaEndpoint = "http://localhost:11434"

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	Endpoint         string
	Model            string
	Dimensions       int
	BatchSize        int
	Timeout          time.Duration
	ItemTokenLimit   int
	BatchTokenBudget int
	Retry            seekerrors.RetryConfig
}

// OllamaEmbedder generates embeddings using Ollama's HTTP API.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig

	mu     sync.RWMutex
	closed bool
	dims   int
}

var _ Embedder = (*OllamaEmbedder)(nil)

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings      [][]float64 `json:"embeddings"`
	PromptEvalCount int         `json:"prompt_eval_count"`
}

type ollamaModelInfo struct {
	Name string `json:"name"`
}

type ollamaModelListResponse struct {
	Models []ollamaModelInfo `json:"models"`
}

// NewOllamaEmbedder creates an Ollama embedder. Connectivity is not
// checked here; call Validate before indexing.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultOllamaEndpoint
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

	// Short idle timeout: indexing runs are short-lived and connections
	// should drop quickly after interrupt.
	transport := &http.Transport{
		MaxIdleConns:        8,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     10 * time.Second,
	}

	return &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		dims:      cfg.Dimensions,
	}
}

// Embed generates embeddings for texts. Empty texts and texts above
// the per-item token ceiling become zero vectors.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, Usage, error) {
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

		vectors, err := seekerrors.RetryWithResult(ctx, e.config.Retry, func() ([][]float32, error) {
			return e.doEmbed(ctx, batchTexts)
		})
		if err != nil {
			return nil, usage, err
		}
		if len(vectors) != len(batch.indices) {
			return nil, usage, seekerrors.Newf(seekerrors.ErrCodeEmbeddingFailed,
				"provider returned %d embeddings for %d inputs", len(vectors), len(batch.indices))
		}

		for i, idx := range batch.indices {
			results[idx] = vectors[i]
		}
		usage.Add(Usage{PromptTokens: batch.tokens})
	}

	// Positions skipped as empty or oversized get zero vectors
	for i, v := range results {
		if v == nil {
			results[i] = make([]float32, e.Dimensions())
		}
	}

	return results, usage, nil
}

// doEmbed performs a single embedding request. The HTTP call runs in a
// goroutine so cancellation unblocks immediately instead of waiting out
// the transport.
func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	var input any
	if len(texts) == 1 {
		input = texts[0]
	} else {
		input = texts
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		e.config.Endpoint+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	type result struct {
		embeddings [][]float32
		err        error
	}
	resultCh := make(chan result, 1)

	go func() {
		resp, err := e.client.Do(req)
		if err != nil {
			resultCh <- result{nil, classifyTransportError(e.config.Endpoint, err)}
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			resultCh <- result{nil, classifyStatusError(resp.StatusCode, string(respBody))}
			return
		}

		var apiResult ollamaEmbedResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
			resultCh <- result{nil, seekerrors.New(seekerrors.ErrCodeEmbeddingFailed,
				"failed to decode embedding response", err)}
			return
		}

		embeddings := make([][]float32, len(apiResult.Embeddings))
		for i, emb := range apiResult.Embeddings {
			vec := make([]float32, len(emb))
			for j, v := range emb {
				vec[j] = float32(v)
			}
			embeddings[i] = normalizeVector(vec)
		}
		resultCh <- result{embeddings, nil}
	}()

	select {
	case <-reqCtx.Done():
		e.forceCloseConnections()
		select {
		case <-resultCh:
		case <-time.After(100 * time.Millisecond):
		}
		return nil, reqCtx.Err()
	case r := <-resultCh:
		if r.err != nil {
			return nil, r.err
		}
		e.rememberDimensions(r.embeddings)
		return r.embeddings, nil
	}
}

// Validate checks connectivity and that the configured model is pulled.
func (e *OllamaEmbedder) Validate(ctx context.Context) error {
	models, err := e.listModels(ctx)
	if err != nil {
		return err
	}

	available := make(map[string]bool, len(models)*2)
	for _, m := range models {
		name := strings.ToLower(m.Name)
		available[name] = true
		available[strings.Split(name, ":")[0]] = true
	}

	want := strings.ToLower(e.config.Model)
	if !available[want] && !available[strings.Split(want, ":")[0]] {
		return seekerrors.Newf(seekerrors.ErrCodeModelNotFound,
			"model %q is not available on the Ollama server", e.config.Model).
			WithSuggestion(fmt.Sprintf("run: ollama pull %s", e.config.Model))
	}

	// Detect dimensions up front so stores initialize with the right width
	if e.Dimensions() == 0 {
		if _, err := e.doEmbed(ctx, []string{"dimension probe"}); err != nil {
			return seekerrors.New(seekerrors.ErrCodeValidationFailed,
				"failed to probe embedding dimensions", err)
		}
	}

	return nil
}

// listModels queries the Ollama tags endpoint.
func (e *OllamaEmbedder) listModels(ctx context.Context) ([]ollamaModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Endpoint+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(e.config.Endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, classifyStatusError(resp.StatusCode, string(body))
	}

	var result ollamaModelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, seekerrors.New(seekerrors.ErrCodeValidationFailed,
			"failed to decode model list", err)
	}
	return result.Models, nil
}

// rememberDimensions records the vector width from the first response.
func (e *OllamaEmbedder) rememberDimensions(embeddings [][]float32) {
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return
	}
	e.mu.Lock()
	if e.dims == 0 {
		e.dims = len(embeddings[0])
	}
	e.mu.Unlock()
}

// Dimensions returns the embedding dimension, 0 until detected.
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the model identifier.
func (e *OllamaEmbedder) ModelName() string {
	return e.config.Model
}

// Close releases resources.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}

// forceCloseConnections closes active connections so in-flight reads
// fail instead of blocking shutdown.
func (e *OllamaEmbedder) forceCloseConnections() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.transport.CloseIdleConnections()
	e.transport = &http.Transport{
		MaxIdleConns:      8,
		IdleConnTimeout:   10 * time.Second,
		DisableKeepAlives: true,
	}
	e.client.Transport = e.transport
}
