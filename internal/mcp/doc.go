// Package mcp implements the Model Context Protocol (MCP) server for hybridsearch.
//
// The server exposes these tools to MCP clients:
//   - ensure_embeddings: Generate missing or stale vectors for a table
//   - embedding_coverage: Count rows holding a vector
//   - semantic_search / auto_semantic_search: Vector similarity ranking
//   - hybrid_search / auto_hybrid_search: Weighted keyword + vector ranking
//   - keyword_search: Keyword ranking only
//   - upsert_row: Insert or update a row, invalidating stale vectors
//
// The auto_* variants embed pending rows before scoring and report
// embedding_setup_performed in their response.
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport. Logs go to stderr
// because stdout carries protocol messages.
//
// # Tool: auto_hybrid_search
//
//	Request:
//	{
//	  "name": "auto_hybrid_search",
//	  "arguments": {
//	    "query": "database performance",
//	    "tables": ["notes"],
//	    "semantic_weight": 0.5,
//	    "text_weight": 0.5,
//	    "limit": 10
//	  }
//	}
//
//	Response:
//	{
//	  "success": true,
//	  "results": [
//	    {
//	      "table": "notes",
//	      "row_id": 1,
//	      "rank": 1,
//	      "score": 0.41,
//	      "keyword_score": 0.16,
//	      "semantic_score": 0.66,
//	      "row": {"id": 1, "title": "Indexes", "content": "database indexing strategies"},
//	      "snippet": "database indexing strategies",
//	      "quality": "medium"
//	    }
//	  ],
//	  "search_method": "hybrid",
//	  "degraded": false,
//	  "embedding_setup_performed": true,
//	  "tables_searched": ["notes"]
//	}
//
// When the embedding provider is unavailable the response has
// "degraded": true, a "degraded_reason" and "search_method": "keyword".
//
// # Errors
//
// Failures other than provider unavailability return a tool result with
// isError set and a payload carrying zero results:
//
//	{
//	  "success": false,
//	  "results": [],
//	  "error": {"kind": "SchemaMismatch", "message": "..."}
//	}
//
// Kinds are DependencyUnavailable, SchemaMismatch, DimensionMismatch,
// InvalidConfiguration and Internal. Malformed requests that are not tool
// arguments at all are returned as protocol errors (MCPError).
package mcp
