package embeddings

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrieverd/internal/config"
)

// NewFromConfig constructs the configured embedding gateway.
func NewFromConfig(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	switch cfg.Provider {
	case "tei":
		return NewTEIService(TEIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}, logger)
	case "openai":
		return NewOpenAIService(OpenAIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
