package config

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderONNX   = "onnx"
	ProviderMock   = "mock"
	ProviderStub   = "stub"
)

const (
	DefaultEmbeddingBaseURL  = "https://integrate.api.nvidia.com/v1"
	DefaultEmbeddingModel    = "nvidia/llama-3.2-nemoretriever-300m-embed-v1"
	DefaultGenerationBaseURL = "https://integrate.api.nvidia.com/v1"
	DefaultGenerationModel   = "nvidia/nvidia-nemotron-nano-9b-v2"

	DefaultSystemPrompt = "/think\nYou are an assistant. Respond in plain text only. " +
		"Do not use Markdown formatting, bullet points, or special characters. " +
		"Use only the following pieces of context to answer the question. " +
		"Don't make up any new information"

	DefaultMaxRetries  = 2
	DefaultTemperature = 0.6
	DefaultMinScore    = -1.0
	DefaultFuzziness   = 1
	DefaultPhraseBoost = 1.5
)

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
// Settings where zero is meaningful are pointers and defaulted only when nil.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.AllowedOrigins == nil {
		cfg.Server.AllowedOrigins = []string{"chrome-extension://*", "http://localhost:*", "http://127.0.0.1:*"}
	}
	if cfg.Server.RequestTimeoutSeconds == 0 {
		cfg.Server.RequestTimeoutSeconds = 180
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 4 << 20
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderOpenAI
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = DefaultEmbeddingBaseURL
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = DefaultEmbeddingModel
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "NVIDIA_API_KEY"
	}
	if cfg.Embedding.PassageInputType == "" {
		cfg.Embedding.PassageInputType = "passage"
	}
	if cfg.Embedding.QueryInputType == "" {
		cfg.Embedding.QueryInputType = "query"
	}
	if cfg.Embedding.Truncate == "" {
		cfg.Embedding.Truncate = "NONE"
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 16
	}
	if cfg.Embedding.Concurrency == 0 {
		cfg.Embedding.Concurrency = 4
	}
	if cfg.Embedding.RequestsPerSecond == 0 {
		cfg.Embedding.RequestsPerSecond = 10
	}
	if cfg.Embedding.Burst == 0 {
		cfg.Embedding.Burst = 4
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Embedding.MaxRetries == nil {
		cfg.Embedding.MaxRetries = intPtr(DefaultMaxRetries)
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}

	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = ProviderOpenAI
	}
	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = DefaultGenerationBaseURL
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = DefaultGenerationModel
	}
	if cfg.Generation.APIKeyEnv == "" {
		cfg.Generation.APIKeyEnv = "NVIDIA_LLM_API_KEY"
	}
	if cfg.Generation.SystemPrompt == "" {
		cfg.Generation.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Generation.Temperature == nil {
		cfg.Generation.Temperature = floatPtr(DefaultTemperature)
	}
	if cfg.Generation.TopP == 0 {
		cfg.Generation.TopP = 0.95
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 4096
	}
	if cfg.Generation.MinThinkingTokens == 0 {
		cfg.Generation.MinThinkingTokens = 500
	}
	if cfg.Generation.MaxThinkingTokens == 0 {
		cfg.Generation.MaxThinkingTokens = 2000
	}
	if cfg.Generation.TimeoutSeconds == 0 {
		cfg.Generation.TimeoutSeconds = 120
	}
	if cfg.Generation.MaxRetries == nil {
		cfg.Generation.MaxRetries = intPtr(DefaultMaxRetries)
	}

	if cfg.Retrieval.MaxChars == 0 {
		cfg.Retrieval.MaxChars = 1000
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Retrieval.MinScore == nil {
		cfg.Retrieval.MinScore = floatPtr(DefaultMinScore)
	}
	if cfg.Retrieval.IndexType == "" {
		cfg.Retrieval.IndexType = "memory"
	}
	if cfg.Retrieval.KeywordWeight == 0 && cfg.Retrieval.SemanticWeight == 0 {
		cfg.Retrieval.KeywordWeight = 0.3
		cfg.Retrieval.SemanticWeight = 0.7
	}
	if cfg.Retrieval.Fuzziness == 0 {
		cfg.Retrieval.Fuzziness = DefaultFuzziness
	}
	if cfg.Retrieval.PhraseBoost == 0 {
		cfg.Retrieval.PhraseBoost = DefaultPhraseBoost
	}

	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = 10000
	}

	if cfg.Library.Extensions == nil {
		cfg.Library.Extensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".xlsx", ".pptx", ".odt", ".ods", ".odp"}
	}
	if cfg.Library.MaxFileSize == 0 {
		cfg.Library.MaxFileSize = 20 << 20
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Library.Directories) > 0 && cfg.Library.Recursive == nil {
		t := true
		cfg.Library.Recursive = &t
	}
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
