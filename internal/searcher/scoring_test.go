package searcher

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hybridsearch-mcp/internal/storage"
	"github.com/dshills/hybridsearch-mcp/pkg/types"
)

func TestKeywordScoreBounds(t *testing.T) {
	rows := []map[string]interface{}{
		{"title": "Indexes", "content": "database indexing strategies"},
		{"title": "Dinner", "content": "cooking pasta recipes"},
		{"title": "Database database DATABASE", "content": "database performance database performance"},
		{"title": nil, "content": ""},
		{"title": 42, "content": []byte("performance of databases")},
	}
	queries := []string{"database performance", "pasta", "the", "zzz", "Database, Performance!", "42"}

	for _, q := range queries {
		scorer := NewKeywordScorer(q)
		terms := QueryTerms(q)
		for _, row := range rows {
			m := scorer.Score(row, []string{"title", "content"})
			assert.GreaterOrEqual(t, m.Score, 0.0, "query %q", q)
			assert.LessOrEqual(t, m.Score, 1.0, "query %q", q)

			anyTerm := false
			for _, col := range []string{"title", "content"} {
				for _, tok := range tokenize(lowerRunes(storage.TextValue(row[col]))) {
					for _, term := range terms {
						if tok.text == term {
							anyTerm = true
						}
					}
				}
			}
			assert.Equal(t, anyTerm, m.Score > 0, "query %q row %v", q, row)
		}
	}
}

func TestKeywordScoreSignals(t *testing.T) {
	scorer := NewKeywordScorer("database performance")
	cols := []string{"content"}

	phrase := scorer.Score(map[string]interface{}{"content": "database performance tuning"}, cols)
	allTerms := scorer.Score(map[string]interface{}{"content": "performance of a database"}, cols)
	oneTerm := scorer.Score(map[string]interface{}{"content": "database indexing strategies"}, cols)
	late := scorer.Score(map[string]interface{}{"content": "a long note that finally mentions database"}, cols)

	assert.Greater(t, phrase.Score, allTerms.Score, "exact phrase should add a bonus")
	assert.Greater(t, allTerms.Score, oneTerm.Score, "more terms should score higher")
	assert.Greater(t, oneTerm.Score, late.Score, "earlier matches should score higher")
	assert.Equal(t, "content", phrase.Column)
}

func TestKeywordScoreColumnImportance(t *testing.T) {
	scorer := NewKeywordScorer("pasta")
	cols := []string{"title", "content"}

	inTitle := scorer.Score(map[string]interface{}{"title": "pasta", "content": "dinner"}, cols)
	inBody := scorer.Score(map[string]interface{}{"title": "dinner", "content": "pasta"}, cols)
	assert.Greater(t, inTitle.Score, inBody.Score)

	assert.True(t, IsImportantColumn("Title"))
	assert.True(t, IsImportantColumn("product_name"))
	assert.False(t, IsImportantColumn("content"))
}

func TestKeywordScoreEmptyInputs(t *testing.T) {
	m := NewKeywordScorer("").Score(map[string]interface{}{"content": "anything"}, []string{"content"})
	assert.Zero(t, m.Score)
	assert.Empty(t, m.Snippet)
	assert.Equal(t, types.QualityLow, m.Quality)

	m = NewKeywordScorer("pasta").Score(map[string]interface{}{"content": nil}, []string{"content"})
	assert.Zero(t, m.Score)

	m = NewKeywordScorer("pasta").Score(map[string]interface{}{"content": "pasta"}, nil)
	assert.Zero(t, m.Score)
}

func TestQueryTerms(t *testing.T) {
	assert.Equal(t, []string{"database", "performance"}, QueryTerms("The database and THE performance, database"))
	assert.Equal(t, []string{"the", "and"}, QueryTerms("the and the"))
	assert.Empty(t, QueryTerms("  ,.; "))
}

func TestSnippet(t *testing.T) {
	short := []rune("cooking pasta recipes")
	assert.Equal(t, "cooking pasta recipes", Snippet(short, 8))

	text := strings.Repeat("lorem ", 50) + "needle" + strings.Repeat(" ipsum", 50)
	offset := strings.Index(text, "needle")
	snippet := Snippet([]rune(text), offset)

	assert.Contains(t, snippet, "needle")
	assert.True(t, strings.HasPrefix(snippet, ellipsis))
	assert.True(t, strings.HasSuffix(snippet, ellipsis))
	assert.LessOrEqual(t, len([]rune(snippet)), SnippetLength+2*len(ellipsis))

	head := Snippet([]rune(text), 0)
	assert.False(t, strings.HasPrefix(head, ellipsis))
	assert.True(t, strings.HasSuffix(head, ellipsis))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero a", []float32{0, 0, 0}, []float32{1, 2, 3}, 0},
		{"zero both", []float32{0, 0}, []float32{0, 0}, 0},
		{"mismatched", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			assert.False(t, math.IsNaN(got))
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.Equal(t, got, CosineSimilarity(tt.b, tt.a), "must be symmetric")
		})
	}
}

func TestSemanticScore(t *testing.T) {
	query := []float32{1, 0, 0}

	score, ok := SemanticScore(query, storage.SerializeVector([]float32{1, 0, 0}))
	require.True(t, ok)
	assert.InDelta(t, 1.0, score, 1e-9)

	score, ok = SemanticScore(query, "[0, 1, 0]")
	require.True(t, ok)
	assert.InDelta(t, 0.0, score, 1e-9)

	_, ok = SemanticScore(query, nil)
	assert.False(t, ok)
	_, ok = SemanticScore(query, storage.SerializeVector([]float32{1, 0}))
	assert.False(t, ok, "wrong dimension counts as missing")
	_, ok = SemanticScore(query, []byte{1, 2, 3})
	assert.False(t, ok, "malformed blob counts as missing")
}

func ptr(v float64) *float64 { return &v }

func TestCombine(t *testing.T) {
	cands := []Candidate{
		{Table: "b", TableOrder: 1, RowID: 1, Keyword: &KeywordMatch{Score: 0.5}, Semantic: ptr(0.5)},
		{Table: "a", TableOrder: 0, RowID: 2, Keyword: &KeywordMatch{Score: 0.2}, Semantic: ptr(0.9)},
		{Table: "a", TableOrder: 0, RowID: 1, Keyword: &KeywordMatch{Score: 0.5}, Semantic: ptr(0.5)},
		{Table: "a", TableOrder: 0, RowID: 3, Keyword: &KeywordMatch{Score: 0.6}},
	}

	scored := Combine(cands, Weights{Semantic: 3, Text: 1})
	require.Len(t, scored, 4)

	// Row 2: (3*0.9 + 1*0.2)/4
	assert.Equal(t, int64(2), scored[0].RowID)
	assert.InDelta(t, 0.725, scored[0].Score, 1e-9)

	// Row 3 has no vector and falls back to its keyword score
	assert.Equal(t, int64(3), scored[1].RowID)
	assert.InDelta(t, 0.6, scored[1].Score, 1e-9)

	// Equal scores: row id, then table order
	assert.Equal(t, "a", scored[2].Table)
	assert.Equal(t, int64(1), scored[2].RowID)
	assert.Equal(t, "b", scored[3].Table)
}

func TestCombineWeightsAreRelative(t *testing.T) {
	cands := []Candidate{
		{RowID: 1, Keyword: &KeywordMatch{Score: 0.4}, Semantic: ptr(0.8)},
	}
	a := Combine(cands, Weights{Semantic: 1, Text: 1})
	b := Combine(cands, Weights{Semantic: 10, Text: 10})
	assert.InDelta(t, a[0].Score, b[0].Score, 1e-12)
	assert.InDelta(t, 0.6, a[0].Score, 1e-12)

	// Negative similarity contributes nothing
	neg := Combine([]Candidate{{RowID: 1, Semantic: ptr(-0.7)}}, Weights{Semantic: 1})
	assert.Zero(t, neg[0].Score)
}

func TestCombineZeroTextWeight(t *testing.T) {
	cands := []Candidate{
		{RowID: 1, Keyword: &KeywordMatch{Score: 0.3}, Semantic: ptr(0.6)},
		{RowID: 3, Keyword: &KeywordMatch{Score: 0.1}, Semantic: ptr(0.8)},
		{RowID: 4, Keyword: &KeywordMatch{Score: 0.9}},
	}

	hybrid := Combine(cands, Weights{Semantic: 1, Text: 0})
	semantic := Combine(cands[:2], Weights{Semantic: 1})

	// The row without a vector has nothing weighted left and goes last
	require.Len(t, hybrid, 3)
	assert.Equal(t, int64(4), hybrid[2].RowID)
	assert.Zero(t, hybrid[2].Score)
	for i := range semantic {
		assert.Equal(t, semantic[i].RowID, hybrid[i].RowID)
		assert.InDelta(t, semantic[i].Score, hybrid[i].Score, 1e-12)
	}
}

func TestValidWeight(t *testing.T) {
	assert.True(t, validWeight(0))
	assert.True(t, validWeight(2.5))
	assert.False(t, validWeight(-0.1))
	assert.False(t, validWeight(math.NaN()))
	assert.False(t, validWeight(math.Inf(1)))
}
