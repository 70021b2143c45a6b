package embedder

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"

	"github.com/dshills/hybridsearch-mcp/internal/metrics"
	"github.com/dshills/hybridsearch-mcp/pkg/types"
)

// DefaultOllamaURL is the address of a stock local Ollama server
const DefaultOllamaURL = "http://localhost:11434"

// OllamaProvider implements Embedder using a local Ollama server through langchaingo
type OllamaProvider struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
	retry     RetryConfig
	logger    *zap.Logger
}

// OllamaConfig configures an OllamaProvider
type OllamaConfig struct {
	ServerURL string
	Model     string
	Dimension int // Required unless the model is well known
	Retry     RetryConfig
	Logger    *zap.Logger
}

// NewOllamaProvider creates an Ollama embedder. No request is made until Embed.
func NewOllamaProvider(cfg OllamaConfig) (*OllamaProvider, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultOllamaModel
	}
	serverURL := cfg.ServerURL
	if serverURL == "" {
		serverURL = DefaultOllamaURL
	}
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = KnownDimension(model)
	}
	if dimension <= 0 {
		return nil, types.Errorf(types.KindInvalidConfiguration, "dimension of model %q is unknown; set it explicitly", model)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}

	client, err := ollama.New(ollama.WithServerURL(serverURL), ollama.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	emb, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(MaxBatchSize))
	if err != nil {
		return nil, fmt.Errorf("create ollama embedder: %w", err)
	}

	return &OllamaProvider{
		embedder:  emb,
		model:     model,
		dimension: dimension,
		retry:     retry,
		logger:    logger,
	}, nil
}

// Embed implements Embedder
func (p *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateTexts(texts); err != nil {
		return nil, err
	}

	vectors, err := retryWithBackoff(ctx, p.retry, func() ([][]float32, error) {
		start := time.Now()
		out, err := p.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			metrics.EmbeddingRequestsTotal.WithLabelValues(ProviderOllama, p.model, "error").Inc()
			return nil, err
		}
		metrics.EmbeddingRequestsTotal.WithLabelValues(ProviderOllama, p.model, "success").Inc()
		metrics.EmbeddingRequestDuration.WithLabelValues(ProviderOllama, p.model).Observe(time.Since(start).Seconds())

		if len(out) != len(texts) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(out))
		}
		for i, vec := range out {
			if len(vec) != p.dimension {
				return nil, types.Errorf(types.KindDimensionMismatch,
					"model %s returned %d dimensions, expected %d", p.model, len(vec), p.dimension)
			}
			out[i] = NormalizeVector(vec)
		}
		return out, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isPermanent(err) {
			return nil, err
		}
		p.logger.Warn("Ollama embedding request failed",
			zap.String("model", p.model),
			zap.Int("texts", len(texts)),
			zap.Error(err))
		return nil, dependencyError(ProviderOllama, err)
	}
	return vectors, nil
}

func (p *OllamaProvider) Dimension() int {
	return p.dimension
}

func (p *OllamaProvider) Provider() string {
	return ProviderOllama
}

func (p *OllamaProvider) Model() string {
	return p.model
}

func (p *OllamaProvider) Close() error {
	return nil
}
