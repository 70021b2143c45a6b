package types

// Quality is a coarse label derived from a keyword relevance score
type Quality string

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

// SearchMethod names the scoring strategy that produced a response
type SearchMethod string

const (
	MethodSemantic SearchMethod = "semantic"
	MethodHybrid   SearchMethod = "hybrid"
	MethodKeyword  SearchMethod = "keyword"
)

// SearchResult represents a single ranked row
type SearchResult struct {
	// Identification
	Table string `json:"table"`
	RowID int64  `json:"row_id"`
	Rank  int    `json:"rank"` // Position in result set (1-based)

	// Scoring
	Score         float64  `json:"score"`
	KeywordScore  *float64 `json:"keyword_score,omitempty"`
	SemanticScore *float64 `json:"semantic_score,omitempty"`

	// Payload; never contains a vector column
	Row     map[string]interface{} `json:"row"`
	Snippet string                 `json:"snippet,omitempty"`
	Quality Quality                `json:"quality,omitempty"`
}

// SearchResponse is the payload returned by every search operation
type SearchResponse struct {
	Success                 bool           `json:"success"`
	Results                 []SearchResult `json:"results"`
	SearchMethod            SearchMethod   `json:"search_method"`
	Degraded                bool           `json:"degraded"`
	DegradedReason          string         `json:"degraded_reason,omitempty"`
	EmbeddingSetupPerformed bool           `json:"embedding_setup_performed"`
	TablesSearched          []string       `json:"tables_searched"`
	Error                   *ErrorPayload  `json:"error,omitempty"`
}

// FailureResponse builds the zero-result payload for a failed call
func FailureResponse(method SearchMethod, err error) *SearchResponse {
	return &SearchResponse{
		Success:      false,
		Results:      []SearchResult{},
		SearchMethod: method,
		Error:        PayloadOf(err),
	}
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.Table == "" {
		return ErrMissingTable
	}

	if sr.RowID == 0 {
		return ErrInvalidRowID
	}

	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	if sr.Score < 0 || sr.Score > 1 {
		return ErrInvalidRelevanceScore
	}

	return nil
}

// QualityFor maps a keyword score to its label
func QualityFor(score float64) Quality {
	switch {
	case score >= 0.6:
		return QualityHigh
	case score >= 0.3:
		return QualityMedium
	default:
		return QualityLow
	}
}
