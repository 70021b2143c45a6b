// Package embedder turns text into fixed-length vectors.
//
// Providers:
//   - local: in-process feature-hashing encoder (384 dimensions, no network)
//   - openai: any OpenAI-compatible embeddings endpoint via go-openai
//   - ollama: a local Ollama server via langchaingo
//   - none: NullEmbedder, every call fails with DependencyUnavailable
//
// Remote vectors are L2-normalized before they are returned.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "local", CacheSize: 10000}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	vectors, err := emb.Embed(ctx, []string{"quarterly budget review", "team offsite"})
//
// # Model Names
//
// Search requests name a model as "provider:model", a bare provider name, or
// a bare model name of the configured provider. The Registry resolves each
// name once and hands out the same instance afterwards:
//
//	reg := embedder.NewRegistry(cfg, logger)
//	emb, err := reg.Get("openai:text-embedding-3-large")
//
// ModelID(emb) ("openai:text-embedding-3-large") is what gets stored next to
// each vector, so switching models marks existing vectors stale.
//
// # Failures
//
// Remote providers retry transient failures with exponential backoff. When
// retries are exhausted the error has kind types.KindDependencyUnavailable,
// which search callers treat as a signal to degrade rather than fail.
// A remote provider configured without credentials is replaced by a
// NullEmbedder up front.
//
// # Caching
//
// CachedEmbedder keeps an LRU of vectors keyed by SHA-256 of model and text.
// Only cache misses reach the provider, in one batched call.
package embedder
