package embedder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/dshills/hybridsearch-mcp/internal/metrics"
	"github.com/dshills/hybridsearch-mcp/pkg/types"
)

// OpenAIProvider implements Embedder against any OpenAI-compatible
// embeddings endpoint (OpenAI, Azure gateways, vLLM, LM Studio).
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	dimension int
	// requested is sent as the dimensions parameter when non-zero
	requested int
	retry     RetryConfig
	logger    *zap.Logger
}

// OpenAIConfig configures an OpenAIProvider
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // Optional: defaults to the public OpenAI endpoint
	Model   string
	// Dimension requests shortened vectors from models that support it.
	// Zero selects the model's native size.
	Dimension int
	Retry     RetryConfig
	Logger    *zap.Logger
}

// NewOpenAIProvider creates a new OpenAI-compatible embedder
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api key not set", ErrNoProviderEnabled)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
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

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		dimension: dimension,
		requested: cfg.Dimension,
		retry:     retry,
		logger:    logger,
	}, nil
}

// Embed implements Embedder
func (o *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateTexts(texts); err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := retryWithBackoff(ctx, o.retry, func() ([][]float32, error) {
			return o.callAPI(ctx, texts[start:end])
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if isPermanent(err) {
				return nil, err
			}
			o.logger.Warn("OpenAI embedding request failed",
				zap.String("model", o.model),
				zap.Int("texts", end-start),
				zap.Error(err))
			return nil, dependencyError(ProviderOpenAI, err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          openai.EmbeddingModel(o.model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if o.requested > 0 {
		req.Dimensions = o.requested
	}

	start := time.Now()
	resp, err := o.client.CreateEmbeddings(ctx, req)
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(ProviderOpenAI, o.model, "error").Inc()
		return nil, describeAPIError(err)
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues(ProviderOpenAI, o.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(ProviderOpenAI, o.model).Observe(time.Since(start).Seconds())

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		if len(d.Embedding) != o.dimension {
			return nil, types.Errorf(types.KindDimensionMismatch,
				"model %s returned %d dimensions, expected %d", o.model, len(d.Embedding), o.dimension)
		}
		vectors[i] = NormalizeVector(d.Embedding)
	}
	return vectors, nil
}

// describeAPIError keeps the HTTP status of API failures in the message
func describeAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("embedding API error %d: %w", reqErr.HTTPStatusCode, err)
	}
	return fmt.Errorf("embedding request failed: %w", err)
}

func (o *OpenAIProvider) Dimension() int {
	return o.dimension
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	return nil
}
