package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/hybridsearch-mcp/internal/embedder"
)

// DefaultDBPath is used when neither the config file nor the environment names a database
const DefaultDBPath = "hybridsearch.db"

// Config holds the hybridsearch configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Search    SearchConfig    `yaml:"search"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig holds the SQLite location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EmbeddingConfig selects the default embedding model.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // local, openai, ollama, none (default: local)
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"` // 0 = default, negative disables
	MaxRetries int    `yaml:"max_retries"`
}

// IndexerConfig controls provisioning throughput.
type IndexerConfig struct {
	Workers   int `yaml:"workers"`
	BatchSize int `yaml:"batch_size"`
}

// SearchConfig holds per-call defaults applied when a caller omits an option.
type SearchConfig struct {
	DefaultLimit        int     `yaml:"default_limit"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"` // semantic search only; 0 = default
	SemanticWeight      float64 `yaml:"semantic_weight"`
	TextWeight          float64 `yaml:"text_weight"`
	VectorColumn        string  `yaml:"vector_column"`
}

// MetricsConfig holds the optional Prometheus listener.
type MetricsConfig struct {
	Addr            string `yaml:"addr"` // empty disables the listener
	ShutdownTimeout int    `yaml:"shutdown_timeout_sec"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: info)
	Format string `yaml:"format"` // console or json (default: console)
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// Load reads a YAML file (when path is non-empty), applies environment
// overrides and defaults, then validates the result.
func Load(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}

		// Substitute env variables of the form ${VAR}
		data = expandEnvVars(data)

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from HYBRIDSEARCH_* variables. OPENAI_API_KEY
// fills the API key when none is configured.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	integer := func(name string, dst *int) error {
		v, ok := lookup(name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", name, v)
		}
		*dst = n
		return nil
	}

	str("HYBRIDSEARCH_DB_PATH", &c.Database.Path)
	str("HYBRIDSEARCH_PROVIDER", &c.Embedding.Provider)
	str("HYBRIDSEARCH_MODEL", &c.Embedding.Model)
	str("HYBRIDSEARCH_API_KEY", &c.Embedding.APIKey)
	str("HYBRIDSEARCH_BASE_URL", &c.Embedding.BaseURL)
	str("HYBRIDSEARCH_METRICS_ADDR", &c.Metrics.Addr)
	str("HYBRIDSEARCH_LOG_LEVEL", &c.Logging.Level)
	str("HYBRIDSEARCH_LOG_FORMAT", &c.Logging.Format)
	if c.Embedding.APIKey == "" {
		str("OPENAI_API_KEY", &c.Embedding.APIKey)
	}

	if err := integer("HYBRIDSEARCH_DIMENSIONS", &c.Embedding.Dimensions); err != nil {
		return err
	}
	if err := integer("HYBRIDSEARCH_CACHE_SIZE", &c.Embedding.CacheSize); err != nil {
		return err
	}
	return integer("HYBRIDSEARCH_WORKERS", &c.Indexer.Workers)
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = DefaultDBPath
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = embedder.ProviderLocal
	}
	c.Embedding.Provider = strings.ToLower(c.Embedding.Provider)
	if c.Embedding.CacheSize == 0 {
		c.Embedding.CacheSize = embedder.DefaultCacheSize
	}
	if c.Embedding.MaxRetries <= 0 {
		c.Embedding.MaxRetries = embedder.MaxRetries
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 10
	}
	if c.Search.SimilarityThreshold == 0 {
		c.Search.SimilarityThreshold = 0.5
	}
	if c.Search.SemanticWeight == 0 && c.Search.TextWeight == 0 {
		c.Search.SemanticWeight = 0.5
		c.Search.TextWeight = 0.5
	}
	if c.Search.VectorColumn == "" {
		c.Search.VectorColumn = "embedding"
	}
	if c.Metrics.ShutdownTimeout <= 0 {
		c.Metrics.ShutdownTimeout = 5
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case embedder.ProviderLocal, embedder.ProviderOpenAI, embedder.ProviderOllama, embedder.ProviderNone:
	default:
		return fmt.Errorf("embedding.provider must be one of local, openai, ollama, none, got %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions)
	}
	if c.Indexer.Workers < 0 || c.Indexer.BatchSize < 0 {
		return fmt.Errorf("indexer.workers and indexer.batch_size must not be negative")
	}
	if c.Search.SimilarityThreshold < 0 || c.Search.SimilarityThreshold > 1 {
		return fmt.Errorf("search.similarity_threshold must be within [0,1], got %v", c.Search.SimilarityThreshold)
	}
	if c.Search.SemanticWeight < 0 || c.Search.TextWeight < 0 {
		return fmt.Errorf("search weights must not be negative")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	return nil
}

// EmbedderConfig converts the embedding section for embedder.New
func (c *Config) EmbedderConfig() embedder.Config {
	retry := embedder.DefaultRetryConfig()
	retry.MaxRetries = c.Embedding.MaxRetries

	cacheSize := c.Embedding.CacheSize
	if cacheSize < 0 {
		cacheSize = 0
	}
	return embedder.Config{
		Provider:  c.Embedding.Provider,
		Model:     c.Embedding.Model,
		APIKey:    c.Embedding.APIKey,
		BaseURL:   c.Embedding.BaseURL,
		Dimension: c.Embedding.Dimensions,
		CacheSize: cacheSize,
		Retry:     retry,
	}
}

// ShutdownTimeoutDuration returns the metrics listener drain timeout
func (m MetricsConfig) ShutdownTimeoutDuration() time.Duration {
	return time.Duration(m.ShutdownTimeout) * time.Second
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
