package generation

import (
	"context"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/apperr"
	"github.com/hyperjump/kotae/pkg/utils"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"
)

// OpenAIConfig configures an OpenAI-compatible chat completion client.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	// Temperature is left to the endpoint when nil.
	Temperature *float64
	TopP        float64
	MaxTokens   int
	// Thinking budgets are sent as extra body fields when positive.
	MinThinkingTokens int
	MaxThinkingTokens int
	TimeoutSeconds    int
	MaxRetries        int
}

// OpenAIGenerator answers questions with a single non-streaming chat completion.
type OpenAIGenerator struct {
	client openai.Client
	cfg    OpenAIConfig
	logger *zap.Logger
}

// NewOpenAIGenerator creates a generator. Returns an error if the API key or model is missing.
func NewOpenAIGenerator(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, apperr.New(apperr.CodeGenerationConfigInvalid, "generation API key is not set")
	}
	if cfg.Model == "" {
		return nil, apperr.New(apperr.CodeGenerationConfigInvalid, "generation model is not set")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	if cfg.TimeoutSeconds > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
	}

	return &OpenAIGenerator{
		client: openai.NewClient(opts...),
		cfg:    cfg,
		logger: utils.LoggerOrNop(logger),
	}, nil
}

func (g *OpenAIGenerator) buildParams(question, contextText string) openai.ChatCompletionNewParams {
	var msgs []openai.ChatCompletionMessageParamUnion
	if g.cfg.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(g.cfg.SystemPrompt))
	}
	msgs = append(msgs, openai.UserMessage(UserMessage(question, contextText)))

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(g.cfg.Model),
		Messages: msgs,
	}
	if g.cfg.Temperature != nil {
		params.Temperature = param.NewOpt(*g.cfg.Temperature)
	}
	if g.cfg.TopP > 0 {
		params.TopP = param.NewOpt(g.cfg.TopP)
	}
	if g.cfg.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(g.cfg.MaxTokens))
	}
	return params
}

func (g *OpenAIGenerator) extraFields() []option.RequestOption {
	var opts []option.RequestOption
	if g.cfg.MinThinkingTokens > 0 {
		opts = append(opts, option.WithJSONSet("min_thinking_tokens", g.cfg.MinThinkingTokens))
	}
	if g.cfg.MaxThinkingTokens > 0 {
		opts = append(opts, option.WithJSONSet("max_thinking_tokens", g.cfg.MaxThinkingTokens))
	}
	return opts
}

// Generate returns the model's answer with surrounding whitespace removed.
func (g *OpenAIGenerator) Generate(ctx context.Context, question, contextText string) (string, error) {
	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, g.buildParams(question, contextText), g.extraFields()...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", apperr.Wrap(err, apperr.CodeGenerationUpstreamFailure, "chat completion failed",
			apperr.Field("model", g.cfg.Model))
	}
	if len(resp.Choices) == 0 {
		return "", apperr.New(apperr.CodeGenerationUpstreamEmpty, "chat completion returned no choices",
			apperr.Field("model", g.cfg.Model))
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	g.logger.Debug("chat completion finished",
		zap.String("model", g.cfg.Model),
		zap.String("finish_reason", resp.Choices[0].FinishReason),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("took", time.Since(start)),
	)
	return answer, nil
}

// Model returns the configured model name.
func (g *OpenAIGenerator) Model() string {
	return g.cfg.Model
}

func (g *OpenAIGenerator) Close() error { return nil }
