package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names
const (
	ToolEnsureEmbeddings   = "ensure_embeddings"
	ToolEmbeddingCoverage  = "embedding_coverage"
	ToolSemanticSearch     = "semantic_search"
	ToolHybridSearch       = "hybrid_search"
	ToolAutoSemanticSearch = "auto_semantic_search"
	ToolAutoHybridSearch   = "auto_hybrid_search"
	ToolKeywordSearch      = "keyword_search"
	ToolUpsertRow          = "upsert_row"
)

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

func stringArrayProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"description": description,
		"items": map[string]interface{}{
			"type": "string",
		},
	}
}

func queryProp() map[string]interface{} {
	return stringProp("Free-text search query")
}

func tablesProp(description string) map[string]interface{} {
	return stringArrayProp(description)
}

func limitProp(def int) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": "Maximum number of results to return",
		"default":     def,
		"minimum":     1,
		"maximum":     1000,
	}
}

func thresholdProp(description string, def float64) map[string]interface{} {
	return map[string]interface{}{
		"type":        "number",
		"description": description,
		"default":     def,
		"minimum":     0.0,
		"maximum":     1.0,
	}
}

func weightProp(description string, def float64) map[string]interface{} {
	return map[string]interface{}{
		"type":        "number",
		"description": description,
		"default":     def,
		"minimum":     0.0,
	}
}

func modelProp() map[string]interface{} {
	return stringProp(`Embedding model: "provider:model", a provider name (local, openai, ollama) or a model of the default provider. Defaults to the configured model.`)
}

func vectorColumnProp() map[string]interface{} {
	p := stringProp("Column holding the row vectors")
	p["default"] = "embedding"
	return p
}

// ensureEmbeddingsTool returns the tool definition for ensure_embeddings
func ensureEmbeddingsTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolEnsureEmbeddings,
		Description: "Generate missing or stale embeddings for a table. Rows whose vector already matches their text are skipped.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"table":         stringProp("Table to embed"),
				"text_columns":  stringArrayProp("Ordered source columns; defaults to the registered columns, then every TEXT column"),
				"vector_column": vectorColumnProp(),
				"model_name":    modelProp(),
			},
			Required: []string{"table"},
		},
	}
}

// embeddingCoverageTool returns the tool definition for embedding_coverage
func embeddingCoverageTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolEmbeddingCoverage,
		Description: "Report how many rows of a table hold a vector",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"table":         stringProp("Table to inspect"),
				"vector_column": vectorColumnProp(),
				"model_name":    modelProp(),
			},
			Required: []string{"table"},
		},
	}
}

func semanticProperties(threshold float64, limit int) map[string]interface{} {
	return map[string]interface{}{
		"query":                queryProp(),
		"tables":               tablesProp("Tables to search; omit for every embedding-ready table"),
		"similarity_threshold": thresholdProp("Minimum cosine similarity for a row to be returned", threshold),
		"limit":                limitProp(limit),
		"model_name":           modelProp(),
		"vector_column":        vectorColumnProp(),
		"text_columns":         stringArrayProp("Columns to match and embed; defaults per table"),
	}
}

func hybridProperties(semanticWeight, textWeight float64, limit int) map[string]interface{} {
	return map[string]interface{}{
		"query":                queryProp(),
		"tables":               tablesProp("Tables to search; omit for all tables"),
		"semantic_weight":      weightProp("Relative weight of vector similarity; 0 skips embeddings entirely", semanticWeight),
		"text_weight":          weightProp("Relative weight of keyword relevance", textWeight),
		"similarity_threshold": thresholdProp("Minimum combined score for a row to be returned", 0),
		"limit":                limitProp(limit),
		"model_name":           modelProp(),
		"vector_column":        vectorColumnProp(),
		"text_columns":         stringArrayProp("Columns to match and embed; defaults per table"),
	}
}

// semanticSearchTool returns the tool definition for semantic_search
func semanticSearchTool(threshold float64, limit int) mcp.Tool {
	return mcp.Tool{
		Name:        ToolSemanticSearch,
		Description: "Rank rows by vector similarity to the query. Only rows that already have embeddings can match.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: semanticProperties(threshold, limit),
			Required:   []string{"query"},
		},
	}
}

// autoSemanticSearchTool returns the tool definition for auto_semantic_search
func autoSemanticSearchTool(threshold float64, limit int) mcp.Tool {
	return mcp.Tool{
		Name:        ToolAutoSemanticSearch,
		Description: "Semantic search that first embeds any rows lacking a current vector. Falls back to keyword search when no embedding provider is available.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: semanticProperties(threshold, limit),
			Required:   []string{"query"},
		},
	}
}

// hybridSearchTool returns the tool definition for hybrid_search
func hybridSearchTool(semanticWeight, textWeight float64, limit int) mcp.Tool {
	return mcp.Tool{
		Name:        ToolHybridSearch,
		Description: "Rank rows by a weighted combination of keyword relevance and vector similarity",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: hybridProperties(semanticWeight, textWeight, limit),
			Required:   []string{"query"},
		},
	}
}

// autoHybridSearchTool returns the tool definition for auto_hybrid_search
func autoHybridSearchTool(semanticWeight, textWeight float64, limit int) mcp.Tool {
	return mcp.Tool{
		Name:        ToolAutoHybridSearch,
		Description: "Hybrid search that first embeds any rows lacking a current vector. Falls back to keyword search when no embedding provider is available.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: hybridProperties(semanticWeight, textWeight, limit),
			Required:   []string{"query"},
		},
	}
}

// keywordSearchTool returns the tool definition for keyword_search
func keywordSearchTool(limit int) mcp.Tool {
	return mcp.Tool{
		Name:        ToolKeywordSearch,
		Description: "Rank rows by keyword relevance only. Never calls the embedding provider.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query":        queryProp(),
				"tables":       tablesProp("Tables to search; omit for all tables"),
				"limit":        limitProp(limit),
				"text_columns": stringArrayProp("Columns to match; defaults to every TEXT column"),
			},
			Required: []string{"query"},
		},
	}
}

// upsertRowTool returns the tool definition for upsert_row
func upsertRowTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolUpsertRow,
		Description: "Insert a row, or update the row matching match_columns. Changing a text column that feeds embeddings marks that row's vector stale.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"table": stringProp("Target table"),
				"values": map[string]interface{}{
					"type":        "object",
					"description": "Column values to write",
				},
				"match_columns": stringArrayProp("Columns identifying an existing row; omit to always insert"),
			},
			Required: []string{"table", "values"},
		},
	}
}
