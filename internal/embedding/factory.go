package embedding

import (
	"fmt"
	"time"

	"github.com/hyperjump/kotae/internal/apperr"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/storage"
	"go.uber.org/zap"
)

// NewFromConfig creates the configured embedder wrapped in a CachedEmbedder.
// store may be nil; it is not closed by the returned embedder.
func NewFromConfig(cfg *config.Config, store storage.EmbeddingStore, logger *zap.Logger) (*CachedEmbedder, error) {
	var inner Embedder
	ec := cfg.Embedding
	switch ec.Provider {
	case config.ProviderOpenAI, "":
		e, err := NewOpenAIEmbedder(OpenAIConfig{
			APIKey:            cfg.EmbeddingAPIKey(),
			BaseURL:           ec.BaseURL,
			Model:             ec.Model,
			Dimensions:        ec.Dimensions,
			PassageInputType:  ec.PassageInputType,
			QueryInputType:    ec.QueryInputType,
			Truncate:          ec.Truncate,
			BatchSize:         ec.BatchSize,
			Concurrency:       ec.Concurrency,
			RequestsPerSecond: ec.RequestsPerSecond,
			Burst:             ec.Burst,
			Timeout:           time.Duration(ec.TimeoutSeconds) * time.Second,
			MaxRetries:        ec.MaxRetriesOrDefault(),
		}, logger)
		if err != nil {
			return nil, err
		}
		inner = e
	case config.ProviderONNX:
		e, err := NewONNXEmbedder(ONNXConfig{
			ModelPath:  ec.ModelPath,
			Dimensions: ec.Dimensions,
			MaxTokens:  ec.MaxTokens,
		})
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeEmbeddingConfigInvalid, "failed to load ONNX model",
				apperr.Field("model_path", ec.ModelPath))
		}
		inner = e
	case config.ProviderMock:
		inner = NewMockEmbedder(ec.Dimensions)
	default:
		return nil, apperr.New(apperr.CodeEmbeddingConfigInvalid, fmt.Sprintf("unknown embedding provider: %s", ec.Provider))
	}
	return NewCachedEmbedder(inner, NewEmbeddingCache(cfg.Cache.Size), store, logger), nil
}
