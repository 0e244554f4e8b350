package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kotae/internal/apperr"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "0.0.0.0"
  port: 9000
retrieval:
  max_chars: 500
  top_k: 5
generation:
  model: "meta/llama-3.1-8b-instruct"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Retrieval.MaxChars != 500 || cfg.Retrieval.TopK != 5 {
		t.Errorf("unexpected retrieval config: %+v", cfg.Retrieval)
	}
	if cfg.Generation.Model != "meta/llama-3.1-8b-instruct" {
		t.Errorf("generation model = %s", cfg.Generation.Model)
	}
	if cfg.Embedding.Model != DefaultEmbeddingModel {
		t.Errorf("embedding model should default, got %s", cfg.Embedding.Model)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_explicitZerosSurvive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
embedding:
  max_retries: 0
generation:
  temperature: 0
  max_retries: 0
retrieval:
  min_score: 0
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Retrieval.MinScoreOrDefault(); got != 0 {
		t.Errorf("min_score = %v, want 0", got)
	}
	if got := cfg.Generation.TemperatureOrDefault(); got != 0 {
		t.Errorf("temperature = %v, want 0", got)
	}
	if got := cfg.Generation.MaxRetriesOrDefault(); got != 0 {
		t.Errorf("generation max_retries = %d, want 0", got)
	}
	if got := cfg.Embedding.MaxRetriesOrDefault(); got != 0 {
		t.Errorf("embedding max_retries = %d, want 0", got)
	}
}

func TestLoad_unsetPointerSettingsDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("retrieval:\n  top_k: 4\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Retrieval.MinScoreOrDefault(); got != DefaultMinScore {
		t.Errorf("min_score = %v, want %v", got, DefaultMinScore)
	}
	if got := cfg.Generation.TemperatureOrDefault(); got != DefaultTemperature {
		t.Errorf("temperature = %v, want %v", got, DefaultTemperature)
	}
	if got := cfg.Generation.MaxRetriesOrDefault(); got != DefaultMaxRetries {
		t.Errorf("max_retries = %d, want %d", got, DefaultMaxRetries)
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("debug: true\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
cache:
  database_path: "./data/embeddings.db"
library:
  directories: ["./docs"]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "embeddings.db")
	if cfg.Cache.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Cache.DatabasePath, wantDB)
	}
	if len(cfg.Library.Directories) != 1 {
		t.Fatalf("library directories: got %d", len(cfg.Library.Directories))
	}
	if want := filepath.Join(dir, "docs"); cfg.Library.Directories[0] != want {
		t.Errorf("library directory = %s, want %s", cfg.Library.Directories[0], want)
	}
}

func TestLoad_errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	if !apperr.HasCode(err, apperr.CodeConfigLoadReadFailure) {
		t.Errorf("missing file: err = %v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("server: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err = Load(bad)
	if !apperr.HasCode(err, apperr.CodeConfigParseInvalidFormat) {
		t.Errorf("bad yaml: err = %v", err)
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("embedding:\n  provider: carrier-pigeon\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err = Load(invalid)
	if !apperr.IsInvalidInput(err) {
		t.Errorf("invalid provider: err = %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Retrieval.MaxChars != 1000 || cfg.Retrieval.TopK != 3 {
		t.Errorf("retrieval defaults: %+v", cfg.Retrieval)
	}
	if cfg.Embedding.Provider != ProviderOpenAI || cfg.Embedding.BaseURL != DefaultEmbeddingBaseURL {
		t.Errorf("embedding defaults: %+v", cfg.Embedding)
	}
	if cfg.Embedding.APIKeyEnv != "NVIDIA_API_KEY" || cfg.Generation.APIKeyEnv != "NVIDIA_LLM_API_KEY" {
		t.Errorf("api key env defaults: %s, %s", cfg.Embedding.APIKeyEnv, cfg.Generation.APIKeyEnv)
	}
	if cfg.Generation.TemperatureOrDefault() != 0.6 || cfg.Generation.TopP != 0.95 || cfg.Generation.MaxTokens != 4096 {
		t.Errorf("generation sampling defaults: %+v", cfg.Generation)
	}
	if cfg.Retrieval.KeywordWeight+cfg.Retrieval.SemanticWeight != 1 {
		t.Errorf("weights should sum to 1: %v + %v", cfg.Retrieval.KeywordWeight, cfg.Retrieval.SemanticWeight)
	}
	if cfg.Retrieval.MinScore == nil || *cfg.Retrieval.MinScore != -1 {
		t.Errorf("min score default: got %v", cfg.Retrieval.MinScore)
	}
	if cfg.Retrieval.Fuzziness != 1 || cfg.Retrieval.PhraseBoost != 1.5 {
		t.Errorf("keyword defaults: fuzziness %d, phrase boost %v", cfg.Retrieval.Fuzziness, cfg.Retrieval.PhraseBoost)
	}
	if len(cfg.Library.Extensions) == 0 || cfg.Library.Extensions[0] != ".txt" {
		t.Errorf("library extensions: got %v", cfg.Library.Extensions)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults_LibraryRecursiveWhenDirectoriesSet(t *testing.T) {
	cfg := &Config{Library: LibraryConfig{Directories: []string{"/tmp/docs"}}}
	ApplyDefaults(cfg)
	if cfg.Library.Recursive == nil || !*cfg.Library.Recursive {
		t.Error("recursive should default to true when directories are set")
	}
}

func TestLibraryConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		l := &LibraryConfig{}
		if got := l.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		l := &LibraryConfig{Recursive: &f}
		if got := l.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"bad generation provider", func(c *Config) { c.Generation.Provider = "telepathy" }},
		{"negative max chars", func(c *Config) { c.Retrieval.MaxChars = -1 }},
		{"negative top k", func(c *Config) { c.Retrieval.TopK = -2 }},
		{"negative weight", func(c *Config) { c.Retrieval.KeywordWeight = -0.1 }},
		{"onnx without dimensions", func(c *Config) { c.Embedding.Provider = ProviderONNX }},
		{"min score above one", func(c *Config) { c.Retrieval.MinScore = floatPtr(1.5) }},
		{"negative retries", func(c *Config) { c.Generation.MaxRetries = intPtr(-1) }},
		{"fuzziness too large", func(c *Config) { c.Retrieval.Fuzziness = 3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !apperr.HasCode(err, apperr.CodeConfigValidateInvalidValue) {
				t.Errorf("Validate() = %v, want invalid value error", err)
			}
		})
	}
}

func TestAPIKeysPreferEnvironment(t *testing.T) {
	cfg := Default()
	cfg.Embedding.APIKeyEnv = "KOTAE_TEST_EMBED_KEY"
	cfg.Embedding.APIKey = "from-file"
	if got := cfg.EmbeddingAPIKey(); got != "from-file" {
		t.Errorf("EmbeddingAPIKey() = %q, want file fallback", got)
	}
	t.Setenv("KOTAE_TEST_EMBED_KEY", "from-env")
	if got := cfg.EmbeddingAPIKey(); got != "from-env" {
		t.Errorf("EmbeddingAPIKey() = %q, want from-env", got)
	}
	cfg.Generation.APIKeyEnv = "KOTAE_TEST_LLM_KEY"
	t.Setenv("KOTAE_TEST_LLM_KEY", " llm ")
	if got := cfg.GenerationAPIKey(); got != "llm" {
		t.Errorf("GenerationAPIKey() = %q", got)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := Default()
	cfg.Server.Port = 9090
	cfg.Generation.APIKey = "secret"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Generation.APIKey != "" {
		t.Error("api key should not be written to disk")
	}
	if cfg.Generation.APIKey != "secret" {
		t.Error("Save should not modify the given config")
	}
}
