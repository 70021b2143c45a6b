package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/dshills/hybridsearch-mcp/pkg/types"
)

// Provider configuration
const (
	ProviderLocal  = "local"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderNone   = "none"

	// Default models
	DefaultLocalModel  = "feature-hash-v2"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultOllamaModel = "nomic-embed-text"

	// Dimensions
	LocalDimension = 384

	// Batch limits
	MaxBatchSize = 100

	DefaultCacheSize = 10000

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// knownDimensions lists output sizes of common remote models
var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"bge-m3":                 1024,
}

// KnownDimension returns the output size of a well-known model, or 0
func KnownDimension(model string) int {
	if d, ok := knownDimensions[model]; ok {
		return d
	}
	// Ollama tags such as "nomic-embed-text:latest"
	if i := strings.IndexByte(model, ':'); i > 0 {
		return knownDimensions[model[:i]]
	}
	return 0
}

// anchorWeight is the shared component every local vector carries next to
// its unit feature vector. Cosine between two local vectors is
// (c + a²)/(1 + a²) for feature cosine c: unrelated texts sit near 0.29 and
// a query sharing half its vocabulary with a row clears 0.5.
const anchorWeight = 0.632

// LocalProvider is an in-process sentence encoder. It hashes word tokens and
// character trigrams into a signed feature vector and L2-normalizes it, so
// texts sharing vocabulary land close together. No network, no model files.
type LocalProvider struct {
	model     string
	dimension int
}

// NewLocalProvider creates a local embedder. dimension < 2 selects LocalDimension.
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension < 2 {
		dimension = LocalDimension
	}
	return &LocalProvider{
		model:     DefaultLocalModel,
		dimension: dimension,
	}
}

// Embed implements Embedder
func (l *LocalProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateTexts(texts); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = l.encode(text)
	}
	return vectors, nil
}

func (l *LocalProvider) encode(text string) []float32 {
	acc := make([]float64, l.dimension)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for _, tok := range tokens {
		l.addFeature(acc, "w:"+tok, 1.0)
		runes := []rune("#" + tok + "#")
		for i := 0; i+3 <= len(runes); i++ {
			l.addFeature(acc, "g:"+string(runes[i:i+3]), 0.5)
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	vec := make([]float32, l.dimension)
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)

	// Slot 0 holds the anchor; the features are scaled so the whole vector is unit length
	scale := math.Sqrt(1 + anchorWeight*anchorWeight)
	acc[0] = anchorWeight * norm
	for i, v := range acc {
		vec[i] = float32(v / norm / scale)
	}
	return vec
}

// addFeature hashes a feature into slots 1..dimension-1
func (l *LocalProvider) addFeature(acc []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	if sum>>63 == 1 {
		weight = -weight
	}
	acc[1+sum%uint64(l.dimension-1)] += weight
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

// NullEmbedder stands in for a provider that cannot be reached or was never
// configured. Every Embed call fails with a DependencyUnavailable error so
// callers degrade to keyword-only relevance.
type NullEmbedder struct {
	provider  string
	model     string
	dimension int
	reason    string
}

// NewNullEmbedder creates a placeholder for provider/model explaining why it is unusable
func NewNullEmbedder(provider, model string, dimension int, reason string) *NullEmbedder {
	if provider == "" {
		provider = ProviderNone
	}
	if reason == "" {
		reason = ErrNoProviderEnabled.Error()
	}
	return &NullEmbedder{
		provider:  provider,
		model:     model,
		dimension: dimension,
		reason:    reason,
	}
}

// Embed always fails with a DependencyUnavailable error
func (n *NullEmbedder) Embed(_ context.Context, _ []string) ([][]float32, error) {
	return nil, n.Err()
}

// Err is the DependencyUnavailable error returned by every Embed call
func (n *NullEmbedder) Err() error {
	return types.NewError(types.KindDependencyUnavailable, n.reason, ErrNoProviderEnabled)
}

func (n *NullEmbedder) Dimension() int {
	return n.dimension
}

func (n *NullEmbedder) Provider() string {
	return n.provider
}

func (n *NullEmbedder) Model() string {
	return n.model
}

func (n *NullEmbedder) Close() error {
	return nil
}

// NormalizeVector normalizes a vector to unit length (L2 normalization)
func NormalizeVector(v []float32) []float32 {
	var norm float64
	for _, val := range v {
		norm += float64(val) * float64(val)
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / norm)
	}
	return out
}

// dependencyError wraps a provider failure so the orchestrator can recover from it
func dependencyError(provider string, err error) error {
	return types.NewError(types.KindDependencyUnavailable, provider+" embedding provider unavailable", err)
}
