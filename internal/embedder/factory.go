package embedder

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Config holds embedder configuration
type Config struct {
	Provider  string // local, openai, ollama, none
	Model     string // Optional: provider default when empty
	APIKey    string
	BaseURL   string // OpenAI-compatible base URL or Ollama server URL
	Dimension int    // Optional for local and well-known models
	CacheSize int    // Zero disables the LRU cache
	Retry     RetryConfig

	// CacheTotal receives cache hit/miss counts; may be nil
	CacheTotal *prometheus.CounterVec
}

// New creates an embedder with explicit configuration.
//
// A remote provider that cannot be used as configured (no API key) yields a
// NullEmbedder rather than an error: searches then degrade to keyword-only
// instead of failing outright.
func New(cfg Config, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	base, err := newProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		if _, isNull := base.(*NullEmbedder); !isNull {
			return NewCachedEmbedder(base, NewCache(cfg.CacheSize), cfg.CacheTotal), nil
		}
	}
	return base, nil
}

func newProvider(cfg Config, logger *zap.Logger) (Embedder, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", ProviderLocal:
		return NewLocalProvider(cfg.Dimension), nil

	case ProviderOpenAI:
		model := cfg.Model
		if model == "" {
			model = DefaultOpenAIModel
		}
		if cfg.APIKey == "" {
			logger.Warn("OpenAI API key not set, semantic search disabled", zap.String("model", model))
			return NewNullEmbedder(ProviderOpenAI, model, dimensionOrKnown(cfg.Dimension, model),
				"openai api key not set"), nil
		}
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     model,
			Dimension: cfg.Dimension,
			Retry:     cfg.Retry,
			Logger:    logger,
		})

	case ProviderOllama:
		return NewOllamaProvider(OllamaConfig{
			ServerURL: cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Retry:     cfg.Retry,
			Logger:    logger,
		})

	case ProviderNone:
		return NewNullEmbedder(ProviderNone, cfg.Model, cfg.Dimension, ""), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}

func dimensionOrKnown(dimension int, model string) int {
	if dimension > 0 {
		return dimension
	}
	return KnownDimension(model)
}

// ParseModelName splits a model name of the form "provider:model".
// A bare provider name selects that provider's default model; any other
// string is a model of the default provider.
func ParseModelName(name string) (provider, model string) {
	name = strings.TrimSpace(name)
	if i := strings.IndexByte(name, ':'); i > 0 && isProvider(name[:i]) {
		return strings.ToLower(name[:i]), name[i+1:]
	}
	if isProvider(name) {
		return strings.ToLower(name), ""
	}
	return "", name
}

func isProvider(name string) bool {
	switch strings.ToLower(name) {
	case ProviderLocal, ProviderOpenAI, ProviderOllama, ProviderNone:
		return true
	}
	return false
}
