package indexer

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dshills/hybridsearch-mcp/internal/embedder"
	"github.com/dshills/hybridsearch-mcp/internal/storage"
	"github.com/dshills/hybridsearch-mcp/pkg/types"
)

// recordingEmbedder wraps the local provider and counts embedded texts.
// beforeReturn, when set, runs after vectors are computed.
type recordingEmbedder struct {
	embedder.Embedder
	texts        atomic.Int32
	beforeReturn func()
}

func (r *recordingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	r.texts.Add(int32(len(texts)))
	vecs, err := r.Embedder.Embed(ctx, texts)
	if r.beforeReturn != nil {
		r.beforeReturn()
	}
	return vecs, err
}

// renamedEmbedder reports a different model name
type renamedEmbedder struct {
	embedder.Embedder
	model string
}

func (r *renamedEmbedder) Model() string { return r.model }

func setup(t *testing.T) (*storage.SQLiteStorage, *Indexer) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.DB().Exec(`CREATE TABLE notes (id INTEGER PRIMARY KEY, title TEXT, content TEXT, views INTEGER)`)
	require.NoError(t, err)
	_, err = store.DB().Exec(`INSERT INTO notes (id, title, content, views) VALUES
		(1, 'Indexes', 'database indexing strategies', 10),
		(2, 'Dinner', 'cooking pasta recipes', 3),
		(3, NULL, '', 0)`)
	require.NoError(t, err)

	return store, New(store, &Config{Workers: 2, BatchSize: 1}, zaptest.NewLogger(t))
}

func newLocal() *recordingEmbedder {
	return newLocalWithDimension(0)
}

func newLocalWithDimension(dimension int) *recordingEmbedder {
	return &recordingEmbedder{Embedder: embedder.NewLocalProvider(dimension)}
}

func TestEnsureEmbeddings(t *testing.T) {
	store, idx := setup(t)
	ctx := context.Background()
	emb := newLocal()

	stats, err := idx.EnsureEmbeddings(ctx, Request{Table: "notes"}, emb)
	require.NoError(t, err)

	assert.True(t, stats.ColumnCreated)
	assert.Equal(t, []string{"title", "content"}, stats.TextColumns, "declaration order")
	assert.Equal(t, 2, stats.RowsEmbedded)
	assert.Equal(t, 0, stats.RowsSkipped)
	assert.Equal(t, 1, stats.RowsEmpty)
	assert.Equal(t, "local:feature-hash-v2", stats.Model)
	assert.InDelta(t, 2.0/3.0, stats.Coverage, 1e-9)

	reg, err := store.GetEmbeddingColumn(ctx, "notes", storage.DefaultVectorColumn)
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "content"}, reg.TextColumns)
	assert.Equal(t, embedder.LocalDimension, reg.Dimension)

	t.Run("idempotent", func(t *testing.T) {
		before := emb.texts.Load()
		again, err := idx.EnsureEmbeddings(ctx, Request{Table: "notes"}, emb)
		require.NoError(t, err)
		assert.Equal(t, 0, again.RowsEmbedded)
		assert.Equal(t, 2, again.RowsSkipped)
		assert.False(t, again.ColumnCreated)
		assert.Equal(t, before, emb.texts.Load(), "no provider call")
	})

	t.Run("upsert of a source column regenerates only that row", func(t *testing.T) {
		res, err := store.Upsert(ctx, "notes", map[string]interface{}{
			"id": int64(2), "content": "baking bread",
		}, []string{"id"})
		require.NoError(t, err)
		require.Equal(t, []string{storage.DefaultVectorColumn}, res.InvalidatedVectors)

		pending, err := idx.Pending(ctx, Request{Table: "notes"}, emb)
		require.NoError(t, err)
		assert.Equal(t, 1, pending)

		again, err := idx.EnsureEmbeddings(ctx, Request{Table: "notes"}, emb)
		require.NoError(t, err)
		assert.Equal(t, 1, again.RowsEmbedded)
		assert.Equal(t, 1, again.RowsSkipped)
	})

	t.Run("non-source column change keeps vectors", func(t *testing.T) {
		_, err := store.Upsert(ctx, "notes", map[string]interface{}{"id": int64(1), "views": int64(11)}, []string{"id"})
		require.NoError(t, err)

		pending, err := idx.Pending(ctx, Request{Table: "notes"}, emb)
		require.NoError(t, err)
		assert.Equal(t, 0, pending)
	})

	t.Run("text change behind the upsert path is detected by hash", func(t *testing.T) {
		_, err := store.DB().Exec("UPDATE notes SET title = 'Indexing' WHERE id = 1")
		require.NoError(t, err)

		pending, err := idx.Pending(ctx, Request{Table: "notes"}, emb)
		require.NoError(t, err)
		assert.Equal(t, 1, pending)
	})
}

func TestEnsureEmbeddingsColumnOrderMatters(t *testing.T) {
	_, idx := setup(t)
	ctx := context.Background()
	emb := newLocal()

	_, err := idx.EnsureEmbeddings(ctx, Request{Table: "notes", TextColumns: []string{"title", "content"}}, emb)
	require.NoError(t, err)

	pending, err := idx.Pending(ctx, Request{Table: "notes", TextColumns: []string{"content", "title"}}, emb)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	// Omitted columns fall back to the registered order
	pending, err = idx.Pending(ctx, Request{Table: "notes"}, emb)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestEnsureEmbeddingsModelChange(t *testing.T) {
	_, idx := setup(t)
	ctx := context.Background()

	_, err := idx.EnsureEmbeddings(ctx, Request{Table: "notes"}, newLocal())
	require.NoError(t, err)

	other := &renamedEmbedder{Embedder: embedder.NewLocalProvider(0), model: "feature-hash-v3"}
	stats, err := idx.EnsureEmbeddings(ctx, Request{Table: "notes"}, other)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.RowsEmbedded)
}

func TestEnsureEmbeddingsWrongDimensionIsRegenerated(t *testing.T) {
	store, idx := setup(t)
	ctx := context.Background()
	emb := newLocal()

	_, err := idx.EnsureEmbeddings(ctx, Request{Table: "notes"}, emb)
	require.NoError(t, err)

	_, err = store.DB().Exec("UPDATE notes SET embedding = ? WHERE id = 1", storage.SerializeVector([]float32{1, 2, 3}))
	require.NoError(t, err)

	stats, err := idx.EnsureEmbeddings(ctx, Request{Table: "notes"}, emb)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RowsEmbedded)

	states, err := store.ListEmbeddingStates(ctx, "notes", storage.DefaultVectorColumn, []string{"title", "content"})
	require.NoError(t, err)
	assert.Len(t, states[0].Vector, embedder.LocalDimension)
}

func TestEnsureEmbeddingsProviderUnavailable(t *testing.T) {
	store, idx := setup(t)
	ctx := context.Background()
	null := embedder.NewNullEmbedder(embedder.ProviderOpenAI, "text-embedding-3-small", 1536, "openai api key not set")

	_, err := idx.EnsureEmbeddings(ctx, Request{Table: "notes"}, null)
	require.Error(t, err)
	assert.Equal(t, types.KindDependencyUnavailable, types.KindOf(err))

	counts, err := store.CountVectors(ctx, "notes", storage.DefaultVectorColumn, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.RowsWithVector)

	// Schema and registry untouched
	cols, err := store.Columns(ctx, "notes")
	require.NoError(t, err)
	assert.False(t, storage.HasColumn(cols, storage.DefaultVectorColumn))
	registered, err := store.ListEmbeddingColumns(ctx, "notes")
	require.NoError(t, err)
	assert.Empty(t, registered)
}

// failingEmbedder reports a working provider but every call fails
type failingEmbedder struct {
	embedder.Embedder
}

func (f *failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, types.NewError(types.KindDependencyUnavailable, "connection refused", embedder.ErrNoProviderEnabled)
}

func TestEnsureEmbeddingsFirstBatchFailureLeavesSchema(t *testing.T) {
	store, idx := setup(t)
	ctx := context.Background()

	_, err := idx.EnsureEmbeddings(ctx, Request{Table: "notes"}, &failingEmbedder{Embedder: embedder.NewLocalProvider(0)})
	require.Error(t, err)
	assert.True(t, types.IsDependencyUnavailable(err))

	cols, err := store.Columns(ctx, "notes")
	require.NoError(t, err)
	assert.False(t, storage.HasColumn(cols, storage.DefaultVectorColumn))
	registered, err := store.ListEmbeddingColumns(ctx, "notes")
	require.NoError(t, err)
	assert.Empty(t, registered)
}

func TestEnsureEmbeddingsRaceLeavesRowPending(t *testing.T) {
	store, idx := setup(t)
	ctx := context.Background()
	idx = New(store, &Config{Workers: 1, BatchSize: 10}, zaptest.NewLogger(t))

	emb := newLocal()
	emb.beforeReturn = func() {
		emb.beforeReturn = nil
		_, err := store.DB().Exec("UPDATE notes SET content = 'edited mid-flight' WHERE id = 1")
		assert.NoError(t, err)
	}

	stats, err := idx.EnsureEmbeddings(ctx, Request{Table: "notes"}, emb)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RowsEmbedded)
	assert.Equal(t, 1, stats.RowsStale)

	pending, err := idx.Pending(ctx, Request{Table: "notes"}, emb)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestEnsureEmbeddingsValidation(t *testing.T) {
	_, idx := setup(t)
	ctx := context.Background()
	emb := newLocal()

	tests := []struct {
		name string
		req  Request
		emb  embedder.Embedder
		kind types.ErrorKind
	}{
		{"missing table name", Request{}, emb, types.KindInvalidConfiguration},
		{"nil embedder", Request{Table: "notes"}, nil, types.KindInvalidConfiguration},
		{"unknown table", Request{Table: "ghosts"}, emb, types.KindSchemaMismatch},
		{"unknown column", Request{Table: "notes", TextColumns: []string{"body"}}, emb, types.KindSchemaMismatch},
		{"vector as text", Request{Table: "notes", TextColumns: []string{"embedding"}}, emb, types.KindInvalidConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := idx.EnsureEmbeddings(ctx, tt.req, tt.emb)
			require.Error(t, err)
			assert.Equal(t, tt.kind, types.KindOf(err))
		})
	}
}

func TestCoverageStats(t *testing.T) {
	store, idx := setup(t)
	ctx := context.Background()
	emb := newLocal()

	_, err := store.DB().Exec("CREATE TABLE empty_notes (id INTEGER PRIMARY KEY, content TEXT)")
	require.NoError(t, err)

	cov, err := idx.CoverageStats(ctx, "empty_notes", "", emb)
	require.NoError(t, err)
	assert.Equal(t, 0, cov.TotalRows)
	assert.Equal(t, 0, cov.RowsWithVector)
	assert.Equal(t, embedder.LocalDimension, cov.Dimension)
	assert.Equal(t, 1.0, cov.Ratio())

	cov, err = idx.CoverageStats(ctx, "notes", storage.DefaultVectorColumn, emb)
	require.NoError(t, err)
	assert.Equal(t, 3, cov.TotalRows)
	assert.Equal(t, 0, cov.RowsWithVector)

	_, err = idx.CoverageStats(ctx, "ghosts", "", emb)
	assert.Equal(t, types.KindSchemaMismatch, types.KindOf(err))
}

func TestCoverageStatsIgnoresOtherDimensions(t *testing.T) {
	_, idx := setup(t)
	ctx := context.Background()

	small := newLocalWithDimension(8)
	_, err := idx.EnsureEmbeddings(ctx, Request{Table: "notes"}, small)
	require.NoError(t, err)

	cov, err := idx.CoverageStats(ctx, "notes", "", small)
	require.NoError(t, err)
	assert.Equal(t, 2, cov.RowsWithVector)

	// A model of another size cannot use any stored vector
	large := newLocal()
	cov, err = idx.CoverageStats(ctx, "notes", "", large)
	require.NoError(t, err)
	assert.Equal(t, 3, cov.TotalRows)
	assert.Equal(t, 0, cov.RowsWithVector)
	assert.Equal(t, embedder.LocalDimension, cov.Dimension)

	pending, err := idx.Pending(ctx, Request{Table: "notes"}, large)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)
}

func TestContentHash(t *testing.T) {
	base := ContentHash("m", []string{"a", "b"}, []string{"x", "y"})

	assert.Equal(t, base, ContentHash("m", []string{"a", "b"}, []string{"x", "y"}))
	assert.NotEqual(t, base, ContentHash("m2", []string{"a", "b"}, []string{"x", "y"}), "model")
	assert.NotEqual(t, base, ContentHash("m", []string{"b", "a"}, []string{"y", "x"}), "column order")
	assert.NotEqual(t, base, ContentHash("m", []string{"a", "b"}, []string{"xy", ""}), "text boundaries")
}

func TestCanonicalText(t *testing.T) {
	assert.Equal(t, "title\nbody", CanonicalText([]string{"title", " ", "body"}))
	assert.Equal(t, "", CanonicalText([]string{"", "  "}))
}
