package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/apperr"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Temperature       *float64 `json:"temperature"`
	TopP              float64  `json:"top_p"`
	MaxTokens         int      `json:"max_tokens"`
	MinThinkingTokens int      `json:"min_thinking_tokens"`
	MaxThinkingTokens int      `json:"max_thinking_tokens"`
}

func chatServer(t *testing.T, answer string, got *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if got != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": answer},
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) OpenAIConfig {
	temperature := 0.6
	return OpenAIConfig{
		APIKey:            "test-key",
		BaseURL:           baseURL,
		Model:             "test-model",
		SystemPrompt:      "be brief",
		Temperature:       &temperature,
		TopP:              0.95,
		MaxTokens:         4096,
		MinThinkingTokens: 500,
		MaxThinkingTokens: 2000,
	}
}

func TestOpenAIGenerator_Generate(t *testing.T) {
	var req chatRequest
	srv := chatServer(t, "\n  Paris.  \n", &req)
	g, err := NewOpenAIGenerator(testConfig(srv.URL+"/v1"), nil)
	require.NoError(t, err)

	answer, err := g.Generate(context.Background(), "Where is the Eiffel Tower?", "It is in Paris.")
	require.NoError(t, err)
	assert.Equal(t, "Paris.", answer)

	assert.Equal(t, "test-model", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "be brief", req.Messages[0].Content)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "Where is the Eiffel Tower?\nContext: It is in Paris.", req.Messages[1].Content)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.6, *req.Temperature, 1e-9)
	assert.InDelta(t, 0.95, req.TopP, 1e-9)
	assert.Equal(t, 4096, req.MaxTokens)
	assert.Equal(t, 500, req.MinThinkingTokens)
	assert.Equal(t, 2000, req.MaxThinkingTokens)
}

func TestOpenAIGenerator_ZeroTemperatureIsSent(t *testing.T) {
	var req chatRequest
	srv := chatServer(t, "ok", &req)
	cfg := testConfig(srv.URL + "/v1")
	zero := 0.0
	cfg.Temperature = &zero
	g, err := NewOpenAIGenerator(cfg, nil)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "q", "c")
	require.NoError(t, err)
	require.NotNil(t, req.Temperature)
	assert.Zero(t, *req.Temperature)

	cfg.Temperature = nil
	g, err = NewOpenAIGenerator(cfg, nil)
	require.NoError(t, err)
	req = chatRequest{}
	_, err = g.Generate(context.Background(), "q", "c")
	require.NoError(t, err)
	assert.Nil(t, req.Temperature)
}

func TestOpenAIGenerator_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(testConfig(srv.URL+"/v1"), nil)
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), "q", "c")
	assert.True(t, apperr.HasCode(err, apperr.CodeGenerationUpstreamEmpty), "got %v", err)
}

func TestOpenAIGenerator_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"auth"}}`))
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(testConfig(srv.URL+"/v1"), nil)
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), "q", "c")
	require.Error(t, err)
	assert.True(t, apperr.IsUpstreamFailure(err))
	assert.NotContains(t, apperr.FieldsOf(err), "api_key")
}

func TestNewOpenAIGenerator_Validation(t *testing.T) {
	_, err := NewOpenAIGenerator(OpenAIConfig{Model: "m"}, nil)
	assert.True(t, apperr.HasCode(err, apperr.CodeGenerationConfigInvalid))
	_, err = NewOpenAIGenerator(OpenAIConfig{APIKey: "k"}, nil)
	assert.True(t, apperr.HasCode(err, apperr.CodeGenerationConfigInvalid))
}

func TestStubGenerator(t *testing.T) {
	g := NewStubGenerator()
	answer, err := g.Generate(context.Background(), "q", "  some context ")
	require.NoError(t, err)
	assert.Equal(t, "some context", answer)

	answer, err = g.Generate(context.Background(), "q", "")
	require.NoError(t, err)
	assert.Equal(t, "No context was provided.", answer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Generate(ctx, "q", "c")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Generation.Provider = config.ProviderStub
	g, err := NewFromConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "stub", g.Model())

	cfg.Generation.Provider = "carrier-pigeon"
	_, err = NewFromConfig(cfg, nil)
	assert.True(t, apperr.HasCode(err, apperr.CodeGenerationConfigInvalid))

	cfg.Generation.Provider = config.ProviderOpenAI
	cfg.Generation.APIKey = "k"
	cfg.Generation.APIKeyEnv = "KOTAE_TEST_UNSET_KEY"
	g, err = NewFromConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultGenerationModel, g.Model())
}
