// Package searcher ranks rows of SQLite tables against free-text queries.
//
// Three scoring modes are available:
//   - Keyword: multi-signal term relevance (phrase, term coverage, position)
//   - Semantic: cosine similarity between the query vector and stored row vectors
//   - Hybrid: weighted sum of both, with weights normalized per row
//
// # Basic Usage
//
//	registry := embedder.NewRegistry(embedder.Config{Provider: "local"}, logger)
//	idx := indexer.New(store, nil, logger)
//	s := searcher.NewSearcher(store, idx, registry, logger)
//
//	resp, err := s.AutoHybridSearch(ctx, searcher.SearchRequest{
//	    Query:          "database performance",
//	    Tables:         []string{"notes"},
//	    Limit:          10,
//	    SemanticWeight: 0.5,
//	    TextWeight:     0.5,
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %s#%d %.3f %s\n", r.Rank, r.Table, r.RowID, r.Score, r.Snippet)
//	}
//
// # Call Flow
//
// Every call runs START, CHECK_COVERAGE, PROVISION (auto variants only),
// SCORE, COMBINE, FILTER and DONE. During SCORE the query is embedded while
// rows are loaded and keyword-scored. Cosine similarity is computed once both
// are ready.
//
// If the embedding provider is unavailable the call degrades: the response
// has Degraded set, carries the reason, reports the keyword method and ranks
// rows on keyword relevance alone.
//
// # Ordering
//
// Results are ordered by score descending, then row id ascending, then the
// position of the table in the searched table list. Identical calls on
// unchanged data return identical orderings.
package searcher
