package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/hybridsearch-mcp/internal/config"
	"github.com/dshills/hybridsearch-mcp/internal/embedder"
	"github.com/dshills/hybridsearch-mcp/internal/indexer"
	"github.com/dshills/hybridsearch-mcp/internal/metrics"
	"github.com/dshills/hybridsearch-mcp/internal/searcher"
	"github.com/dshills/hybridsearch-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "hybridsearch-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp       *server.MCPServer
	storage   *storage.SQLiteStorage
	embedders *embedder.Registry
	indexer   *indexer.Indexer
	searcher  *searcher.Searcher
	defaults  config.SearchConfig
	logger    *zap.Logger

	handlers map[string]server.ToolHandlerFunc
}

// NewServer opens the database named by cfg and wires the search engine.
// The embedding model is loaded on first use and shared by every tool call.
func NewServer(cfg config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = config.DefaultDBPath
	}
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	// Initialize storage
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Embedders are shared across calls and cached per model name
	embCfg := cfg.EmbedderConfig()
	embCfg.CacheTotal = metrics.EmbeddingCacheTotal
	registry := embedder.NewRegistry(embCfg, logger.Named("embedder"))

	idx := indexer.New(store, &indexer.Config{
		Workers:   cfg.Indexer.Workers,
		BatchSize: cfg.Indexer.BatchSize,
	}, logger.Named("indexer"))

	srch := searcher.NewSearcher(store, idx, registry, logger.Named("searcher"))

	s := &Server{
		mcp:       server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		storage:   store,
		embedders: registry,
		indexer:   idx,
		searcher:  srch,
		defaults:  cfg.Search,
		logger:    logger,
	}

	// Register tools
	s.registerTools()

	logger.Info("Server initialized",
		zap.String("db_path", dbPath),
		zap.String("driver", storage.DriverName),
		zap.String("provider", embCfg.Provider),
		zap.String("model", embCfg.Model))

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until ctx is done or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// Health reports whether the database is reachable
func (s *Server) Health(ctx context.Context) error {
	return s.storage.DB().PingContext(ctx)
}

// Close releases the embedders and the database
func (s *Server) Close() error {
	embErr := s.embedders.Close()
	if err := s.storage.Close(); err != nil {
		return err
	}
	return embErr
}

// CallTool invokes a registered tool directly, bypassing the transport
func (s *Server) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	handler, ok := s.handlers[name]
	if !ok {
		return nil, newMCPError(ErrorCodeMethodNotFound, "unknown tool", map[string]interface{}{"tool": name})
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	var request mcp.CallToolRequest
	request.Params.Name = name
	request.Params.Arguments = args
	return handler(ctx, request)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	d := s.defaults
	tools := []struct {
		tool    mcp.Tool
		handler server.ToolHandlerFunc
	}{
		{ensureEmbeddingsTool(), s.handleEnsureEmbeddings},
		{embeddingCoverageTool(), s.handleEmbeddingCoverage},
		{semanticSearchTool(d.SimilarityThreshold, d.DefaultLimit), s.handleSemanticSearch},
		{autoSemanticSearchTool(d.SimilarityThreshold, d.DefaultLimit), s.handleAutoSemanticSearch},
		{hybridSearchTool(d.SemanticWeight, d.TextWeight, d.DefaultLimit), s.handleHybridSearch},
		{autoHybridSearchTool(d.SemanticWeight, d.TextWeight, d.DefaultLimit), s.handleAutoHybridSearch},
		{keywordSearchTool(d.DefaultLimit), s.handleKeywordSearch},
		{upsertRowTool(), s.handleUpsertRow},
	}

	s.handlers = make(map[string]server.ToolHandlerFunc, len(tools))
	for _, t := range tools {
		s.mcp.AddTool(t.tool, t.handler)
		s.handlers[t.tool.Name] = t.handler
	}
}
