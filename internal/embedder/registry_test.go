package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRegistrySharesInstances(t *testing.T) {
	reg := NewRegistry(Config{Provider: ProviderLocal, CacheSize: 100}, zaptest.NewLogger(t))
	defer func() { _ = reg.Close() }()

	a, err := reg.Default()
	require.NoError(t, err)
	b, err := reg.Get("")
	require.NoError(t, err)
	assert.Same(t, a, b)

	// Different names resolving to the same model share one instance
	c, err := reg.Get("local")
	require.NoError(t, err)
	assert.Same(t, a, c)
}

func TestRegistryResolvesOtherProviders(t *testing.T) {
	reg := NewRegistry(Config{Provider: ProviderLocal}, zaptest.NewLogger(t))
	defer func() { _ = reg.Close() }()

	e, err := reg.Get("openai:text-embedding-3-large")
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, e.Provider())
	assert.Equal(t, "text-embedding-3-large", e.Model())
	assert.Equal(t, 3072, e.Dimension())
	assert.IsType(t, &NullEmbedder{}, e, "no api key configured")

	_, err = reg.Get("ollama:homegrown")
	assert.Error(t, err, "unknown ollama model without dimension")
}

func TestRegistryModelOverride(t *testing.T) {
	reg := NewRegistry(Config{Provider: ProviderOpenAI, APIKey: "k", Model: DefaultOpenAIModel}, zaptest.NewLogger(t))
	defer func() { _ = reg.Close() }()

	def, err := reg.Default()
	require.NoError(t, err)
	assert.Equal(t, 1536, def.Dimension())

	large, err := reg.Get("text-embedding-3-large")
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-large", large.Model())
	assert.Equal(t, 3072, large.Dimension())
	assert.NotSame(t, def, large)
}
