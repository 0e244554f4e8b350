// Package config provides configuration loading and structs for the kotae server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kotae/internal/apperr"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Cache      CacheConfig      `yaml:"cache"`
	Library    LibraryConfig    `yaml:"library"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host                  string   `yaml:"host"`
	Port                  int      `yaml:"port"`
	AllowedOrigins        []string `yaml:"allowed_origins"`
	RequestTimeoutSeconds int      `yaml:"request_timeout_seconds"`
	MaxBodyBytes          int64    `yaml:"max_body_bytes"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is one of "openai" (any OpenAI-compatible endpoint), "onnx" or "mock".
	Provider          string  `yaml:"provider"`
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	APIKey            string  `yaml:"api_key,omitempty"`
	Dimensions        int     `yaml:"dimensions"`
	PassageInputType  string  `yaml:"passage_input_type"`
	QueryInputType    string  `yaml:"query_input_type"`
	Truncate          string  `yaml:"truncate"`
	BatchSize         int     `yaml:"batch_size"`
	Concurrency       int     `yaml:"concurrency"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	MaxRetries        *int    `yaml:"max_retries"`
	// ONNX provider settings.
	ModelPath string `yaml:"model_path"`
	MaxTokens int    `yaml:"max_tokens"`
}

// GenerationConfig configures the chat model that writes answers.
type GenerationConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "stub".
	Provider          string   `yaml:"provider"`
	BaseURL           string   `yaml:"base_url"`
	Model             string   `yaml:"model"`
	APIKeyEnv         string   `yaml:"api_key_env"`
	APIKey            string   `yaml:"api_key,omitempty"`
	SystemPrompt      string   `yaml:"system_prompt"`
	Temperature       *float64 `yaml:"temperature"`
	TopP              float64  `yaml:"top_p"`
	MaxTokens         int      `yaml:"max_tokens"`
	MinThinkingTokens int      `yaml:"min_thinking_tokens"`
	MaxThinkingTokens int      `yaml:"max_thinking_tokens"`
	TimeoutSeconds    int      `yaml:"timeout_seconds"`
	MaxRetries        *int     `yaml:"max_retries"`
}

// RetrievalConfig holds chunking and ranking settings.
type RetrievalConfig struct {
	MaxChars       int      `yaml:"max_chars"`
	TopK           int      `yaml:"top_k"`
	MinScore       *float64 `yaml:"min_score"`
	IndexType      string   `yaml:"index_type"`
	Hybrid         bool     `yaml:"hybrid"`
	KeywordWeight  float64  `yaml:"keyword_weight"`
	SemanticWeight float64  `yaml:"semantic_weight"`
	FuzzyKeywords  bool     `yaml:"fuzzy_keywords"`
	// Fuzziness is the edit distance for fuzzy keyword terms.
	Fuzziness int `yaml:"fuzziness"`
	// PhraseBoost multiplies keyword scores of passages containing the exact question.
	PhraseBoost float64 `yaml:"phrase_boost"`
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	Size int `yaml:"size"`
	// DatabasePath enables the persistent SQLite cache when non-empty.
	DatabasePath string `yaml:"database_path"`
	MaxAgeDays   int    `yaml:"max_age_days"`
}

// LibraryConfig holds reference document directories.
type LibraryConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
	Watch       bool     `yaml:"watch"`
	MaxFileSize int64    `yaml:"max_file_size"`
}

// MaxRetriesOrDefault returns the retry count; 0 disables retries.
func (e *EmbeddingConfig) MaxRetriesOrDefault() int {
	if e.MaxRetries != nil {
		return *e.MaxRetries
	}
	return DefaultMaxRetries
}

// TemperatureOrDefault returns the sampling temperature; 0 is kept as an explicit setting.
func (g *GenerationConfig) TemperatureOrDefault() float64 {
	if g.Temperature != nil {
		return *g.Temperature
	}
	return DefaultTemperature
}

// MaxRetriesOrDefault returns the retry count; 0 disables retries.
func (g *GenerationConfig) MaxRetriesOrDefault() int {
	if g.MaxRetries != nil {
		return *g.MaxRetries
	}
	return DefaultMaxRetries
}

// MinScoreOrDefault returns the minimum cosine similarity; -1 keeps every passage.
func (r *RetrievalConfig) MinScoreOrDefault() float64 {
	if r.MinScore != nil {
		return *r.MinScore
	}
	return DefaultMinScore
}

// RecursiveOrDefault returns whether to scan recursively; defaults to true when unset.
func (l *LibraryConfig) RecursiveOrDefault() bool {
	if l.Recursive != nil {
		return *l.Recursive
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeConfigLoadReadFailure, "failed to read config", apperr.Field("path", path))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeConfigParseInvalidFormat, "failed to parse config", apperr.Field("path", path))
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Cache.DatabasePath = expandPath(cfg.Cache.DatabasePath, configDir)
	for i := range cfg.Library.Directories {
		cfg.Library.Directories[i] = expandPath(cfg.Library.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path. API keys read from the environment are not written.
func Save(path string, cfg *Config) error {
	out := *cfg
	out.Embedding.APIKey = ""
	out.Generation.APIKey = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	invalid := func(field string, value any) error {
		return apperr.New(apperr.CodeConfigValidateInvalidValue,
			fmt.Sprintf("invalid %s: %v", field, value), apperr.Field("field", field))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return invalid("server.port", c.Server.Port)
	}
	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderONNX, ProviderMock:
	default:
		return invalid("embedding.provider", c.Embedding.Provider)
	}
	switch c.Generation.Provider {
	case ProviderOpenAI, ProviderStub:
	default:
		return invalid("generation.provider", c.Generation.Provider)
	}
	if c.Retrieval.MaxChars <= 0 {
		return invalid("retrieval.max_chars", c.Retrieval.MaxChars)
	}
	if c.Retrieval.TopK <= 0 {
		return invalid("retrieval.top_k", c.Retrieval.TopK)
	}
	if c.Retrieval.KeywordWeight < 0 || c.Retrieval.SemanticWeight < 0 {
		return invalid("retrieval weights", fmt.Sprintf("%v/%v", c.Retrieval.KeywordWeight, c.Retrieval.SemanticWeight))
	}
	if r := c.Retrieval.MinScoreOrDefault(); r < -1 || r > 1 {
		return invalid("retrieval.min_score", r)
	}
	if c.Retrieval.Fuzziness < 0 || c.Retrieval.Fuzziness > 2 {
		return invalid("retrieval.fuzziness", c.Retrieval.Fuzziness)
	}
	if c.Retrieval.PhraseBoost < 0 {
		return invalid("retrieval.phrase_boost", c.Retrieval.PhraseBoost)
	}
	if c.Embedding.MaxRetriesOrDefault() < 0 {
		return invalid("embedding.max_retries", *c.Embedding.MaxRetries)
	}
	if c.Generation.MaxRetriesOrDefault() < 0 {
		return invalid("generation.max_retries", *c.Generation.MaxRetries)
	}
	if t := c.Generation.TemperatureOrDefault(); t < 0 || t > 2 {
		return invalid("generation.temperature", t)
	}
	if c.Cache.MaxAgeDays < 0 {
		return invalid("cache.max_age_days", c.Cache.MaxAgeDays)
	}
	if c.Embedding.Dimensions < 0 {
		return invalid("embedding.dimensions", c.Embedding.Dimensions)
	}
	if c.Embedding.Provider == ProviderONNX && c.Embedding.Dimensions == 0 {
		return invalid("embedding.dimensions", "required for the onnx provider")
	}
	return nil
}

// EmbeddingAPIKey returns the configured embedding API key, preferring the environment.
func (c *Config) EmbeddingAPIKey() string {
	return resolveKey(c.Embedding.APIKeyEnv, c.Embedding.APIKey)
}

// GenerationAPIKey returns the configured generation API key, preferring the environment.
func (c *Config) GenerationAPIKey() string {
	return resolveKey(c.Generation.APIKeyEnv, c.Generation.APIKey)
}

func resolveKey(envName, fallback string) string {
	if envName != "" {
		if v := strings.TrimSpace(os.Getenv(envName)); v != "" {
			return v
		}
	}
	return fallback
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if strings.HasPrefix(path, "~/") {
		path = path[2:]
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
