package searcher

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/hybridsearch-mcp/internal/embedder"
	"github.com/dshills/hybridsearch-mcp/internal/indexer"
	"github.com/dshills/hybridsearch-mcp/internal/metrics"
	"github.com/dshills/hybridsearch-mcp/internal/storage"
	"github.com/dshills/hybridsearch-mcp/pkg/types"
)

// Request defaults used by the transports
const (
	DefaultLimit               = 10
	MaxLimit                   = 1000
	DefaultSimilarityThreshold = 0.5
	DefaultWeight              = 0.5
)

// EmbedderSource resolves a model name to a shared embedder
type EmbedderSource interface {
	Get(name string) (embedder.Embedder, error)
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query  string
	Tables []string // empty: see Searcher for per-method defaults
	Limit  int

	// SimilarityThreshold drops rows scoring below it. Semantic search applies
	// it to cosine similarity, hybrid search to the combined score.
	SimilarityThreshold float64
	SemanticWeight      float64
	TextWeight          float64

	ModelName    string   // empty: configured default model
	VectorColumn string   // default: storage.DefaultVectorColumn
	TextColumns  []string // keyword candidates and embedding sources; empty: per table
}

// Searcher runs keyword, semantic and hybrid searches over SQLite tables,
// provisioning embeddings on first use for the auto variants.
//
// Tables omitted from a request mean: every embedding-ready table for
// semantic search (every table when auto-provisioning and none is ready yet),
// and every table for hybrid and keyword search.
type Searcher struct {
	storage   storage.Storage
	indexer   *indexer.Indexer
	embedders EmbedderSource
	logger    *zap.Logger
}

// NewSearcher creates a new Searcher instance
func NewSearcher(store storage.Storage, idx *indexer.Indexer, embedders EmbedderSource, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{
		storage:   store,
		indexer:   idx,
		embedders: embedders,
		logger:    logger,
	}
}

// SemanticSearch ranks rows by cosine similarity to the query. Rows without
// a vector are not provisioned and cannot match.
func (s *Searcher) SemanticSearch(ctx context.Context, req SearchRequest) (*types.SearchResponse, error) {
	return s.run(ctx, types.MethodSemantic, req, false)
}

// AutoSemanticSearch is SemanticSearch after embedding every pending row
func (s *Searcher) AutoSemanticSearch(ctx context.Context, req SearchRequest) (*types.SearchResponse, error) {
	return s.run(ctx, types.MethodSemantic, req, true)
}

// HybridSearch ranks rows by the weighted sum of keyword and semantic relevance
func (s *Searcher) HybridSearch(ctx context.Context, req SearchRequest) (*types.SearchResponse, error) {
	return s.run(ctx, types.MethodHybrid, req, false)
}

// AutoHybridSearch is HybridSearch after embedding every pending row
func (s *Searcher) AutoHybridSearch(ctx context.Context, req SearchRequest) (*types.SearchResponse, error) {
	return s.run(ctx, types.MethodHybrid, req, true)
}

// KeywordSearch ranks rows by keyword relevance only. It never touches the
// embedding provider.
func (s *Searcher) KeywordSearch(ctx context.Context, req SearchRequest) (*types.SearchResponse, error) {
	return s.run(ctx, types.MethodKeyword, req, false)
}

// searchState carries one call through the pipeline
type searchState struct {
	method types.SearchMethod
	req    SearchRequest
	auto   bool

	tables   []string
	explicit bool // tables named by the caller

	emb         embedder.Embedder
	useSemantic bool
	degraded    bool
	reason      string
	setup       bool

	queryVector []float32
	candidates  []Candidate
}

func (st *searchState) degrade(err error) {
	if st.degraded {
		return
	}
	st.degraded = true
	st.useSemantic = false
	st.reason = err.Error()
}

// run drives START -> CHECK_COVERAGE -> PROVISION -> SCORE -> COMBINE ->
// FILTER -> DONE. DependencyUnavailable at any step switches to keyword-only
// scoring instead of failing.
func (s *Searcher) run(ctx context.Context, method types.SearchMethod, req SearchRequest, auto bool) (*types.SearchResponse, error) {
	start := time.Now()
	resp, err := s.search(ctx, method, req, auto)

	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case resp.Degraded:
		status = "degraded"
		metrics.SearchDegradedTotal.WithLabelValues(string(method)).Inc()
	}
	metrics.SearchRequestsTotal.WithLabelValues(string(method), status).Inc()
	metrics.SearchDuration.WithLabelValues(string(method)).Observe(time.Since(start).Seconds())

	if err != nil {
		s.logger.Warn("Search failed",
			zap.String("method", string(method)),
			zap.String("kind", string(types.KindOf(err))),
			zap.Error(err))
		return nil, err
	}
	s.logger.Debug("Search completed",
		zap.String("method", string(method)),
		zap.Bool("auto", auto),
		zap.Strings("tables", resp.TablesSearched),
		zap.Int("results", len(resp.Results)),
		zap.Bool("degraded", resp.Degraded),
		zap.Bool("setup", resp.EmbeddingSetupPerformed),
		zap.Duration("duration", time.Since(start)))
	return resp, nil
}

func (s *Searcher) search(ctx context.Context, method types.SearchMethod, req SearchRequest, auto bool) (*types.SearchResponse, error) {
	// START
	req, err := validateRequest(method, req)
	if err != nil {
		return nil, err
	}
	st := &searchState{method: method, req: req, auto: auto}

	// Semantic weight 0 never needs vectors
	st.useSemantic = method == types.MethodSemantic || (method == types.MethodHybrid && req.SemanticWeight > 0)
	if st.useSemantic {
		st.emb, err = s.embedders.Get(req.ModelName)
		switch {
		case err == nil:
		case types.IsDependencyUnavailable(err):
			st.degrade(err)
		default:
			return nil, err
		}
	}

	if err := s.resolveTables(ctx, st); err != nil {
		return nil, err
	}

	// CHECK_COVERAGE / PROVISION
	if st.auto && st.useSemantic {
		if err := s.provision(ctx, st); err != nil {
			return nil, err
		}
	}

	// SCORE
	if err := s.score(ctx, st); err != nil {
		return nil, err
	}

	// COMBINE / FILTER
	return s.rank(st), nil
}

func validateRequest(method types.SearchMethod, req SearchRequest) (SearchRequest, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return req, types.Errorf(types.KindInvalidConfiguration, "query is required")
	}
	if req.Limit <= 0 {
		return req, types.Errorf(types.KindInvalidConfiguration, "limit must be positive, got %d", req.Limit)
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	if math.IsNaN(req.SimilarityThreshold) || req.SimilarityThreshold < 0 || req.SimilarityThreshold > 1 {
		return req, types.Errorf(types.KindInvalidConfiguration,
			"similarity_threshold must be within [0,1], got %v", req.SimilarityThreshold)
	}
	if method == types.MethodHybrid {
		if !validWeight(req.SemanticWeight) || !validWeight(req.TextWeight) {
			return req, types.Errorf(types.KindInvalidConfiguration,
				"weights must be non-negative, got semantic_weight=%v text_weight=%v", req.SemanticWeight, req.TextWeight)
		}
		if req.SemanticWeight == 0 && req.TextWeight == 0 {
			return req, types.Errorf(types.KindInvalidConfiguration, "semantic_weight and text_weight cannot both be 0")
		}
	}
	if req.VectorColumn == "" {
		req.VectorColumn = storage.DefaultVectorColumn
	}
	for _, c := range req.TextColumns {
		if c == req.VectorColumn {
			return req, types.Errorf(types.KindInvalidConfiguration,
				"column %q cannot be both text source and vector column", c)
		}
	}
	return req, nil
}

func (s *Searcher) resolveTables(ctx context.Context, st *searchState) error {
	if len(st.req.Tables) > 0 {
		st.explicit = true
		seen := make(map[string]bool, len(st.req.Tables))
		for _, t := range st.req.Tables {
			if seen[t] {
				continue
			}
			seen[t] = true
			exists, err := s.storage.TableExists(ctx, t)
			if err != nil {
				return err
			}
			if !exists {
				return types.NewError(types.KindSchemaMismatch, "table \""+t+"\" does not exist", storage.ErrTableNotFound)
			}
			st.tables = append(st.tables, t)
		}
		return nil
	}

	if st.method == types.MethodSemantic {
		ready, err := s.embeddingReadyTables(ctx, st.req.VectorColumn)
		if err != nil {
			return err
		}
		if len(ready) > 0 || !st.auto {
			st.tables = ready
			return nil
		}
	}

	all, err := s.storage.ListTables(ctx)
	if err != nil {
		return err
	}
	st.tables = all
	return nil
}

func (s *Searcher) embeddingReadyTables(ctx context.Context, vectorColumn string) ([]string, error) {
	registered, err := s.storage.ListEmbeddingColumns(ctx, "")
	if err != nil {
		return nil, err
	}
	var tables []string
	seen := make(map[string]bool)
	for _, reg := range registered {
		if reg.VectorColumn != vectorColumn || seen[reg.Table] {
			continue
		}
		seen[reg.Table] = true
		tables = append(tables, reg.Table)
	}
	sort.Strings(tables)
	return tables, nil
}

// provision embeds pending rows of every searched table. Only rows lacking a
// current vector reach the provider.
func (s *Searcher) provision(ctx context.Context, st *searchState) error {
	for _, table := range st.tables {
		req := indexer.Request{
			Table:        table,
			TextColumns:  st.req.TextColumns,
			VectorColumn: st.req.VectorColumn,
		}

		pending, err := s.indexer.Pending(ctx, req, st.emb)
		if err != nil {
			if !st.explicit && types.KindOf(err) == types.KindSchemaMismatch {
				// Implicit table without usable text columns
				s.logger.Debug("Skipping table without text columns", zap.String("table", table), zap.Error(err))
				continue
			}
			return err
		}
		if pending == 0 {
			continue
		}

		stats, err := s.indexer.EnsureEmbeddings(ctx, req, st.emb)
		if err != nil {
			if types.IsDependencyUnavailable(err) {
				s.logger.Warn("Embedding provider unavailable, degrading to keyword search",
					zap.String("table", table), zap.Error(err))
				st.degrade(err)
				return nil
			}
			return err
		}
		if stats.RowsEmbedded > 0 || stats.ColumnCreated {
			st.setup = true
		}
	}
	return nil
}

// score embeds the query while rows are loaded and keyword-scored
func (s *Searcher) score(ctx context.Context, st *searchState) error {
	var (
		queryVector []float32
		embedErr    error
	)

	g, gctx := errgroup.WithContext(ctx)
	if st.useSemantic {
		g.Go(func() error {
			vectors, err := st.emb.Embed(gctx, []string{st.req.Query})
			if err != nil {
				if types.IsDependencyUnavailable(err) {
					embedErr = err
					return nil
				}
				return err
			}
			if len(vectors) != 1 {
				return errors.New("embedder returned no query vector")
			}
			queryVector = vectors[0]
			return nil
		})
	}

	var candidates []Candidate
	g.Go(func() error {
		var err error
		candidates, err = s.loadCandidates(gctx, st)
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if embedErr != nil {
		s.logger.Warn("Query embedding failed, degrading to keyword search", zap.Error(embedErr))
		st.degrade(embedErr)
	}

	st.queryVector = queryVector
	st.candidates = candidates
	if st.useSemantic {
		s.scoreSemantic(st)
	}
	return nil
}

// loadCandidates reads every row of the searched tables and keyword-scores it
func (s *Searcher) loadCandidates(ctx context.Context, st *searchState) ([]Candidate, error) {
	scorer := NewKeywordScorer(st.req.Query)
	var candidates []Candidate

	for order, table := range st.tables {
		cols, err := s.storage.Columns(ctx, table, st.req.VectorColumn)
		if err != nil {
			return nil, err
		}
		keywordColumns := st.req.TextColumns
		if len(keywordColumns) > 0 {
			if err := storage.RequireColumns(table, cols, keywordColumns); err != nil {
				if !st.explicit {
					continue
				}
				return nil, err
			}
		} else {
			keywordColumns = storage.TextColumns(cols)
		}

		rows, err := s.storage.ListRows(ctx, table, st.req.VectorColumn)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			match := scorer.Score(row.Values, keywordColumns)
			candidates = append(candidates, Candidate{
				Table:      table,
				TableOrder: order,
				RowID:      row.ID,
				Row:        row.Values,
				Keyword:    &match,
				vector:     row.Vector,
			})
		}
	}
	return candidates, nil
}

// scoreSemantic fills Semantic for rows with a usable vector. The cosine
// loop is pure computation, split across goroutines for large candidate sets.
func (s *Searcher) scoreSemantic(st *searchState) {
	if st.degraded || st.queryVector == nil {
		return
	}

	const chunk = 2048
	var wg sync.WaitGroup
	for lo := 0; lo < len(st.candidates); lo += chunk {
		hi := lo + chunk
		if hi > len(st.candidates) {
			hi = len(st.candidates)
		}
		wg.Add(1)
		go func(part []Candidate) {
			defer wg.Done()
			for i := range part {
				if sim, ok := SemanticScore(st.queryVector, part[i].vector); ok {
					part[i].Semantic = &sim
				}
			}
		}(st.candidates[lo:hi])
	}
	wg.Wait()
}

// rank applies COMBINE and FILTER and builds the response
func (s *Searcher) rank(st *searchState) *types.SearchResponse {
	method := st.method
	var scored []Scored

	switch {
	case st.degraded || method == types.MethodKeyword:
		// Keyword-only: semantic components are ignored
		for i := range st.candidates {
			st.candidates[i].Semantic = nil
		}
		scored = filterPositive(Combine(st.candidates, Weights{Text: 1}))
		if st.degraded {
			method = types.MethodKeyword
		}

	case method == types.MethodSemantic:
		// Below-threshold rows are excluded, not ranked low. Keyword matches
		// stay attached for snippets but carry no weight.
		kept := st.candidates[:0:0]
		for _, c := range st.candidates {
			if c.Semantic != nil && *c.Semantic >= st.req.SimilarityThreshold {
				kept = append(kept, c)
			}
		}
		scored = filterPositive(Combine(kept, Weights{Semantic: 1}))

	default:
		all := Combine(st.candidates, Weights{Semantic: st.req.SemanticWeight, Text: st.req.TextWeight})
		scored = all[:0:0]
		for _, c := range all {
			if c.Score > 0 && c.Score >= st.req.SimilarityThreshold {
				scored = append(scored, c)
			}
		}
	}

	if len(scored) > st.req.Limit {
		scored = scored[:st.req.Limit]
	}

	results := make([]types.SearchResult, len(scored))
	for i, sc := range scored {
		res := types.SearchResult{
			Table:   sc.Table,
			RowID:   sc.RowID,
			Rank:    i + 1,
			Score:   sc.Score,
			Row:     sc.Row,
			Quality: types.QualityFor(sc.Score),
		}
		if sc.Keyword != nil {
			kw := sc.Keyword.Score
			res.KeywordScore = &kw
			res.Snippet = sc.Keyword.Snippet
		}
		if sc.Semantic != nil {
			sem := clamp01(*sc.Semantic)
			res.SemanticScore = &sem
		}
		results[i] = res
	}

	tables := st.tables
	if tables == nil {
		tables = []string{}
	}
	return &types.SearchResponse{
		Success:                 true,
		Results:                 results,
		SearchMethod:            method,
		Degraded:                st.degraded,
		DegradedReason:          st.reason,
		EmbeddingSetupPerformed: st.setup,
		TablesSearched:          tables,
	}
}

func filterPositive(scored []Scored) []Scored {
	kept := scored[:0:0]
	for _, sc := range scored {
		if sc.Score > 0 {
			kept = append(kept, sc)
		}
	}
	return kept
}
