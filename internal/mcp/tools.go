package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/hybridsearch-mcp/internal/indexer"
	"github.com/dshills/hybridsearch-mcp/internal/searcher"
	"github.com/dshills/hybridsearch-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeMethodNotFound = -32601 // Tool does not exist
	ErrorCodeInvalidParams  = -32602 // Invalid method parameters
	ErrorCodeInternalError  = -32603 // Internal JSON-RPC error
)

// handleEnsureEmbeddings handles the ensure_embeddings tool invocation
func (s *Server) handleEnsureEmbeddings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	req, modelName, err := parseEnsureArgs(args)
	if err != nil {
		return s.failure(ToolEnsureEmbeddings, err), nil
	}

	emb, err := s.embedders.Get(modelName)
	if err != nil {
		return s.failure(ToolEnsureEmbeddings, err), nil
	}

	stats, err := s.indexer.EnsureEmbeddings(ctx, req, emb)
	if err != nil {
		return s.failure(ToolEnsureEmbeddings, err), nil
	}

	response := map[string]interface{}{
		"success":        true,
		"table":          stats.Table,
		"vector_column":  stats.VectorColumn,
		"text_columns":   stats.TextColumns,
		"model":          stats.Model,
		"dimension":      stats.Dimension,
		"column_created": stats.ColumnCreated,
		"rows_embedded":  stats.RowsEmbedded,
		"rows_skipped":   stats.RowsSkipped,
		"rows_empty":     stats.RowsEmpty,
		"rows_stale":     stats.RowsStale,
		"coverage":       stats.Coverage,
		"duration_ms":    stats.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

func parseEnsureArgs(args map[string]interface{}) (indexer.Request, string, error) {
	var req indexer.Request
	var err error

	if req.Table, err = requireString(args, "table"); err != nil {
		return req, "", err
	}
	if req.TextColumns, err = getStringSlice(args, "text_columns"); err != nil {
		return req, "", err
	}
	if req.VectorColumn, err = getStringDefault(args, "vector_column", ""); err != nil {
		return req, "", err
	}
	model, err := getStringDefault(args, "model_name", "")
	return req, model, err
}

// handleEmbeddingCoverage handles the embedding_coverage tool invocation
func (s *Server) handleEmbeddingCoverage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	table, err := requireString(args, "table")
	if err != nil {
		return s.failure(ToolEmbeddingCoverage, err), nil
	}
	vectorColumn, err := getStringDefault(args, "vector_column", s.defaults.VectorColumn)
	if err != nil {
		return s.failure(ToolEmbeddingCoverage, err), nil
	}
	modelName, err := getStringDefault(args, "model_name", "")
	if err != nil {
		return s.failure(ToolEmbeddingCoverage, err), nil
	}

	// Dimension comes from the model; an unusable model still knows it
	emb, err := s.embedders.Get(modelName)
	if err != nil {
		return s.failure(ToolEmbeddingCoverage, err), nil
	}

	cov, err := s.indexer.CoverageStats(ctx, table, vectorColumn, emb)
	if err != nil {
		return s.failure(ToolEmbeddingCoverage, err), nil
	}

	response := map[string]interface{}{
		"success":          true,
		"table":            cov.Table,
		"vector_column":    cov.VectorColumn,
		"total_rows":       cov.TotalRows,
		"rows_with_vector": cov.RowsWithVector,
		"dimension":        cov.Dimension,
		"coverage":         cov.Ratio(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

type searchFunc func(context.Context, searcher.SearchRequest) (*types.SearchResponse, error)

func (s *Server) handleSemanticSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleSearch(ctx, request, ToolSemanticSearch, types.MethodSemantic, s.searcher.SemanticSearch)
}

func (s *Server) handleAutoSemanticSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleSearch(ctx, request, ToolAutoSemanticSearch, types.MethodSemantic, s.searcher.AutoSemanticSearch)
}

func (s *Server) handleHybridSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleSearch(ctx, request, ToolHybridSearch, types.MethodHybrid, s.searcher.HybridSearch)
}

func (s *Server) handleAutoHybridSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleSearch(ctx, request, ToolAutoHybridSearch, types.MethodHybrid, s.searcher.AutoHybridSearch)
}

func (s *Server) handleKeywordSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleSearch(ctx, request, ToolKeywordSearch, types.MethodKeyword, s.searcher.KeywordSearch)
}

// handleSearch parses the shared search arguments and runs one search method
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest, tool string, method types.SearchMethod, search searchFunc) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	req, err := s.parseSearchArgs(args, method)
	if err != nil {
		return s.searchFailure(tool, method, err), nil
	}

	start := time.Now()
	resp, err := search(ctx, req)
	if err != nil {
		return s.searchFailure(tool, method, err), nil
	}

	s.logger.Debug("Tool completed",
		zap.String("tool", tool),
		zap.Int("results", len(resp.Results)),
		zap.Bool("degraded", resp.Degraded),
		zap.Duration("duration", time.Since(start)))

	return mcp.NewToolResultText(formatJSON(resp)), nil
}

// parseSearchArgs applies configured defaults to omitted options. Hybrid
// search filters on the combined score, so its threshold defaults to 0.
func (s *Server) parseSearchArgs(args map[string]interface{}, method types.SearchMethod) (searcher.SearchRequest, error) {
	var (
		req searcher.SearchRequest
		err error
	)
	d := s.defaults

	if req.Query, err = requireString(args, "query"); err != nil {
		return req, err
	}
	if req.Tables, err = getStringSlice(args, "tables"); err != nil {
		return req, err
	}
	if req.Limit, err = getIntDefault(args, "limit", d.DefaultLimit); err != nil {
		return req, err
	}
	if req.TextColumns, err = getStringSlice(args, "text_columns"); err != nil {
		return req, err
	}
	if req.VectorColumn, err = getStringDefault(args, "vector_column", d.VectorColumn); err != nil {
		return req, err
	}
	if req.ModelName, err = getStringDefault(args, "model_name", ""); err != nil {
		return req, err
	}

	threshold := d.SimilarityThreshold
	if method != types.MethodSemantic {
		threshold = 0
	}
	if req.SimilarityThreshold, err = getFloatDefault(args, "similarity_threshold", threshold); err != nil {
		return req, err
	}
	if method == types.MethodHybrid {
		if req.SemanticWeight, err = getFloatDefault(args, "semantic_weight", d.SemanticWeight); err != nil {
			return req, err
		}
		if req.TextWeight, err = getFloatDefault(args, "text_weight", d.TextWeight); err != nil {
			return req, err
		}
	}
	return req, nil
}

// handleUpsertRow handles the upsert_row tool invocation
func (s *Server) handleUpsertRow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	table, err := requireString(args, "table")
	if err != nil {
		return s.failure(ToolUpsertRow, err), nil
	}
	values, ok := args["values"].(map[string]interface{})
	if !ok || len(values) == 0 {
		return s.failure(ToolUpsertRow, types.Errorf(types.KindInvalidConfiguration, "values must be a non-empty object")), nil
	}
	matchColumns, err := getStringSlice(args, "match_columns")
	if err != nil {
		return s.failure(ToolUpsertRow, err), nil
	}

	res, err := s.storage.Upsert(ctx, table, values, matchColumns)
	if err != nil {
		return s.failure(ToolUpsertRow, err), nil
	}

	response := map[string]interface{}{
		"success":             true,
		"table":               table,
		"row_id":              res.RowID,
		"inserted":            res.Inserted,
		"changed_columns":     nonNil(res.ChangedColumns),
		"invalidated_vectors": nonNil(res.InvalidatedVectors),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// failure renders a classified error as a tool result
func (s *Server) failure(tool string, err error) *mcp.CallToolResult {
	s.logToolError(tool, err)
	response := map[string]interface{}{
		"success": false,
		"error":   types.PayloadOf(err),
	}
	result := mcp.NewToolResultText(formatJSON(response))
	result.IsError = true
	return result
}

// searchFailure renders a failed search as a zero-result response
func (s *Server) searchFailure(tool string, method types.SearchMethod, err error) *mcp.CallToolResult {
	s.logToolError(tool, err)
	result := mcp.NewToolResultText(formatJSON(types.FailureResponse(method, err)))
	result.IsError = true
	return result
}

func (s *Server) logToolError(tool string, err error) {
	kind := types.KindOf(err)
	if kind == types.KindInternal {
		s.logger.Error("Tool failed", zap.String("tool", tool), zap.Error(err))
		return
	}
	s.logger.Info("Tool rejected", zap.String("tool", tool), zap.String("kind", string(kind)), zap.Error(err))
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

func invalidParam(key, format string, args ...interface{}) error {
	return types.Errorf(types.KindInvalidConfiguration, "%s: %s", key, fmt.Sprintf(format, args...))
}

// requireString extracts a non-empty string parameter
func requireString(args map[string]interface{}, key string) (string, error) {
	val, ok := args[key].(string)
	if !ok || val == "" {
		return "", invalidParam(key, "parameter is required")
	}
	return val, nil
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) (string, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return defaultValue, nil
	}
	val, ok := raw.(string)
	if !ok {
		return "", invalidParam(key, "expected a string, got %T", raw)
	}
	if val == "" {
		return defaultValue, nil
	}
	return val, nil
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) (int, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return defaultValue, nil
	}
	switch val := raw.(type) {
	case float64:
		if val != math.Trunc(val) {
			return 0, invalidParam(key, "expected an integer, got %v", val)
		}
		return int(val), nil
	case int:
		return val, nil
	case int64:
		return int(val), nil
	}
	return 0, invalidParam(key, "expected an integer, got %T", raw)
}

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) (float64, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return defaultValue, nil
	}
	switch val := raw.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	}
	return 0, invalidParam(key, "expected a number, got %T", raw)
}

// getStringSlice extracts a list of strings. A single string is accepted as a
// one-element list, and "all" means no restriction.
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return nil, nil
	}
	switch val := raw.(type) {
	case string:
		if val == "" || val == "all" {
			return nil, nil
		}
		return []string{val}, nil
	case []string:
		return val, nil
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			str, ok := item.(string)
			if !ok || str == "" {
				return nil, invalidParam(key, "expected a list of names, got element %v", item)
			}
			out = append(out, str)
		}
		return out, nil
	}
	return nil, invalidParam(key, "expected a list of names, got %T", raw)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
