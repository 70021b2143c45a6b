package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// Common errors
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnsupportedProvider = errors.New("unsupported embedding provider")
	ErrNoProviderEnabled   = errors.New("no embedding provider configured")
)

// Embedder turns texts into fixed-length vectors. Implementations are safe
// for concurrent use.
type Embedder interface {
	// Embed returns one vector per input text, in input order
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector length produced by this embedder
	Dimension() int

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// ModelID identifies the provider and model that produced a vector.
// It is what gets recorded next to every stored vector.
func ModelID(e Embedder) string {
	return e.Provider() + ":" + e.Model()
}

// Unavailable returns the error a placeholder embedder fails every call
// with, looking through wrappers. It returns nil for real providers.
func Unavailable(e Embedder) error {
	for {
		switch v := e.(type) {
		case *NullEmbedder:
			return v.Err()
		case interface{ Unwrap() Embedder }:
			e = v.Unwrap()
		default:
			return nil
		}
	}
}

// ValidateTexts rejects an empty batch
func ValidateTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	return nil
}

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Cache provides in-memory LRU caching of vectors by key
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates a new vector cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		cache, _ = lru.New[string, []float32](DefaultCacheSize)
	}
	return &Cache{cache: cache}
}

// Get returns a copy of a cached vector so callers cannot mutate the cache
func (c *Cache) Get(key string) ([]float32, bool) {
	vec, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

// Set stores a copy of vec
func (c *Cache) Set(key string, vec []float32) {
	stored := make([]float32, len(vec))
	copy(stored, vec)
	c.cache.Add(key, stored)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// CachedEmbedder serves repeated texts from an LRU cache and forwards only
// the misses to the wrapped embedder, in a single call.
type CachedEmbedder struct {
	Embedder
	cache      *Cache
	cacheTotal *prometheus.CounterVec
}

// NewCachedEmbedder wraps inner with cache. cacheTotal is a counter vec with
// label "result" ("hit"/"miss") and may be nil.
func NewCachedEmbedder(inner Embedder, cache *Cache, cacheTotal *prometheus.CounterVec) *CachedEmbedder {
	return &CachedEmbedder{
		Embedder:   inner,
		cache:      cache,
		cacheTotal: cacheTotal,
	}
}

// Embed implements Embedder
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateTexts(texts); err != nil {
		return nil, err
	}

	prefix := ModelID(c.Embedder) + "\x00"
	vectors := make([][]float32, len(texts))
	var (
		missTexts []string
		missIdx   []int
	)
	for i, text := range texts {
		if vec, ok := c.cache.Get(ComputeHash(prefix + text)); ok {
			vectors[i] = vec
			c.inc("hit")
			continue
		}
		c.inc("miss")
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	generated, err := c.Embedder.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(generated) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(generated), len(missTexts))
	}
	for j, vec := range generated {
		c.cache.Set(ComputeHash(prefix+missTexts[j]), vec)
		vectors[missIdx[j]] = vec
	}
	return vectors, nil
}

// Unwrap returns the wrapped embedder
func (c *CachedEmbedder) Unwrap() Embedder {
	return c.Embedder
}

func (c *CachedEmbedder) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}
