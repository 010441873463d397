package embedding

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/docuchat/internal/config"
)

// New builds the embedder selected by cfg.Provider ("openai", "onnx" or "mock") and wraps it in
// an LRU cache when cfg.CacheSize is positive.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case "openai", "":
		e, err = NewOpenAIEmbedder(cfg.Host, cfg.Model, cfg.APIKey, cfg.Dimensions,
			WithLogger(logger), WithBatchSize(cfg.BatchSize))
	case "onnx":
		if cfg.ModelPath == "" {
			return nil, fmt.Errorf("embedding.model_path is required for the onnx provider")
		}
		e, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
	case "mock":
		e = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		e = NewCachedEmbedder(e, cfg.CacheSize)
	}
	return e, nil
}
