package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hybridsearch-mcp/internal/embedder"
)

func envMap(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultDBPath, cfg.Database.Path)
	assert.Equal(t, embedder.ProviderLocal, cfg.Embedding.Provider)
	assert.Equal(t, embedder.DefaultCacheSize, cfg.Embedding.CacheSize)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, 0.5, cfg.Search.SimilarityThreshold)
	assert.Equal(t, 0.5, cfg.Search.SemanticWeight)
	assert.Equal(t, 0.5, cfg.Search.TextWeight)
	assert.Equal(t, "embedding", cfg.Search.VectorColumn)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadFile(t *testing.T) {
	t.Setenv("TEST_HS_KEY", "sk-from-file")
	t.Setenv("HYBRIDSEARCH_DB_PATH", "")

	path := filepath.Join(t.TempDir(), "hybridsearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /tmp/notes.db
embedding:
  provider: OpenAI
  model: text-embedding-3-large
  api_key: ${TEST_HS_KEY}
  base_url: ${TEST_HS_MISSING:-https://api.example.com/v1}
search:
  semantic_weight: 0.7
  text_weight: 0.3
logging:
  level: debug
  format: json
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/notes.db", cfg.Database.Path)
	assert.Equal(t, embedder.ProviderOpenAI, cfg.Embedding.Provider)
	assert.Equal(t, "sk-from-file", cfg.Embedding.APIKey)
	assert.Equal(t, "https://api.example.com/v1", cfg.Embedding.BaseURL)
	assert.Equal(t, 0.7, cfg.Search.SemanticWeight)
	assert.Equal(t, 0.3, cfg.Search.TextWeight)
	assert.Equal(t, "json", cfg.Logging.Format)

	ec := cfg.EmbedderConfig()
	assert.Equal(t, "text-embedding-3-large", ec.Model)
	assert.Equal(t, embedder.MaxRetries, ec.Retry.MaxRetries)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	var cfg Config
	err := cfg.ApplyEnv(envMap(map[string]string{
		"HYBRIDSEARCH_DB_PATH":    "env.db",
		"HYBRIDSEARCH_PROVIDER":   "ollama",
		"HYBRIDSEARCH_DIMENSIONS": "768",
		"HYBRIDSEARCH_WORKERS":    "3",
		"OPENAI_API_KEY":          "sk-env",
	}))
	require.NoError(t, err)

	assert.Equal(t, "env.db", cfg.Database.Path)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
	assert.Equal(t, 3, cfg.Indexer.Workers)
	assert.Equal(t, "sk-env", cfg.Embedding.APIKey)

	// A configured key wins over OPENAI_API_KEY
	cfg = Config{Embedding: EmbeddingConfig{APIKey: "sk-file"}}
	require.NoError(t, cfg.ApplyEnv(envMap(map[string]string{"OPENAI_API_KEY": "sk-env"})))
	assert.Equal(t, "sk-file", cfg.Embedding.APIKey)

	err = cfg.ApplyEnv(envMap(map[string]string{"HYBRIDSEARCH_CACHE_SIZE": "lots"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HYBRIDSEARCH_CACHE_SIZE")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "jina" }, "embedding.provider"},
		{"negative dimensions", func(c *Config) { c.Embedding.Dimensions = -1 }, "embedding.dimensions"},
		{"threshold above 1", func(c *Config) { c.Search.SimilarityThreshold = 2 }, "similarity_threshold"},
		{"negative weight", func(c *Config) { c.Search.TextWeight = -0.5 }, "weights"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"negative workers", func(c *Config) { c.Indexer.Workers = -2 }, "indexer.workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestEmbedderConfigCacheDisabled(t *testing.T) {
	cfg := Default()
	cfg.Embedding.CacheSize = -1
	assert.Zero(t, cfg.EmbedderConfig().CacheSize)
}
