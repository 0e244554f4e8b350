package generation

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/apperr"
	"github.com/hyperjump/kotae/internal/config"
	"go.uber.org/zap"
)

// Generator produces an answer to a question from retrieved context.
type Generator interface {
	Generate(ctx context.Context, question, contextText string) (string, error)
	Model() string
	Close() error
}

// UserMessage formats the prompt sent as the user turn.
func UserMessage(question, contextText string) string {
	return question + "\nContext: " + contextText
}

// NewFromConfig creates the configured generator.
func NewFromConfig(cfg *config.Config, logger *zap.Logger) (Generator, error) {
	gc := cfg.Generation
	switch gc.Provider {
	case config.ProviderOpenAI, "":
		g, err := NewOpenAIGenerator(OpenAIConfig{
			APIKey:            cfg.GenerationAPIKey(),
			BaseURL:           gc.BaseURL,
			Model:             gc.Model,
			SystemPrompt:      gc.SystemPrompt,
			Temperature:       gc.Temperature,
			TopP:              gc.TopP,
			MaxTokens:         gc.MaxTokens,
			MinThinkingTokens: gc.MinThinkingTokens,
			MaxThinkingTokens: gc.MaxThinkingTokens,
			TimeoutSeconds:    gc.TimeoutSeconds,
			MaxRetries:        gc.MaxRetriesOrDefault(),
		}, logger)
		if err != nil {
			return nil, err
		}
		return g, nil
	case config.ProviderStub:
		return NewStubGenerator(), nil
	default:
		return nil, apperr.New(apperr.CodeGenerationConfigInvalid, fmt.Sprintf("unknown generation provider: %s", gc.Provider))
	}
}
