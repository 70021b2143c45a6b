package embedder

import (
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Registry loads each named embedder once and shares it across requests
type Registry struct {
	mu       sync.Mutex
	base     Config
	logger   *zap.Logger
	byName   map[string]Embedder
	instance map[string]Embedder // keyed by ModelID
}

// NewRegistry creates a registry whose empty model name resolves to base
func NewRegistry(base Config, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		base:     base,
		logger:   logger,
		byName:   make(map[string]Embedder),
		instance: make(map[string]Embedder),
	}
}

// Get returns the embedder for a model name, creating it on first use.
// See ParseModelName for accepted forms.
func (r *Registry) Get(name string) (Embedder, error) {
	key := strings.TrimSpace(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byName[key]; ok {
		return e, nil
	}

	cfg := r.configFor(key)
	e, err := New(cfg, r.logger)
	if err != nil {
		return nil, err
	}

	id := ModelID(e)
	if existing, ok := r.instance[id]; ok {
		_ = e.Close()
		e = existing
	} else {
		r.instance[id] = e
		r.logger.Info("Embedding model loaded",
			zap.String("provider", e.Provider()),
			zap.String("model", e.Model()),
			zap.Int("dimension", e.Dimension()))
	}
	r.byName[key] = e
	return e, nil
}

// Default returns the embedder for the configured default model
func (r *Registry) Default() (Embedder, error) {
	return r.Get("")
}

func (r *Registry) configFor(name string) Config {
	cfg := r.base
	if name == "" {
		return cfg
	}

	provider, model := ParseModelName(name)
	if provider != "" && !strings.EqualFold(provider, r.base.Provider) {
		// Another provider: keep credentials and cache, drop model-specific settings
		cfg.Provider = provider
		cfg.Dimension = 0
		cfg.Model = ""
		if provider != ProviderOpenAI {
			cfg.BaseURL = ""
		}
	}
	if model != "" {
		if model != cfg.Model {
			cfg.Dimension = 0
		}
		cfg.Model = model
	}
	return cfg
}

// Close closes every loaded embedder
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, e := range r.instance {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.byName = make(map[string]Embedder)
	r.instance = make(map[string]Embedder)
	return errors.Join(errs...)
}
