package embed

import (
	"log/slog"
	"strings"

	"github.com/seekstack/codeseek/internal/config"
	seekerrors "github.com/seekstack/codeseek/internal/errors"
)

// New builds an Embedder from configuration. The result is wrapped
// with an LRU cache unless caching is disabled.
func New(cfg config.EmbedderConfig) (Embedder, error) {
	var inner Embedder

	switch strings.ToLower(cfg.Provider) {
	case "ollama":
		inner = NewOllamaEmbedder(OllamaConfig{
			Endpoint:         cfg.Endpoint,
			Model:            cfg.Model,
			Dimensions:       cfg.Dimensions,
			BatchSize:        cfg.BatchSize,
			Timeout:          cfg.Timeout,
			ItemTokenLimit:   cfg.MaxItemBytes / 4,
			BatchTokenBudget: cfg.MaxBatchBytes / 4,
		})
	case "openai":
		inner = NewOpenAIEmbedder(OpenAIConfig{
			Endpoint:         cfg.Endpoint,
			Model:            cfg.Model,
			APIKey:           cfg.APIKey,
			Dimensions:       cfg.Dimensions,
			BatchSize:        cfg.BatchSize,
			Timeout:          cfg.Timeout,
			ItemTokenLimit:   cfg.MaxItemBytes / 4,
			BatchTokenBudget: cfg.MaxBatchBytes / 4,
		})
	case "static":
		inner = NewStaticEmbedder()
	default:
		return nil, seekerrors.Newf(seekerrors.ErrCodeConfigInvalid,
			"unknown embedder provider %q", cfg.Provider)
	}

	slog.Debug("embedder created",
		slog.String("provider", cfg.Provider),
		slog.String("model", inner.ModelName()))

	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(inner, cfg.CacheSize), nil
	}
	return inner, nil
}
