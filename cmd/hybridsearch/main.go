package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/hybridsearch-mcp/internal/config"
	"github.com/dshills/hybridsearch-mcp/internal/logger"
	"github.com/dshills/hybridsearch-mcp/internal/mcp"
	"github.com/dshills/hybridsearch-mcp/internal/metrics"
	"github.com/dshills/hybridsearch-mcp/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const (
	metaConfig = "config"
	metaLogger = "logger"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "hybridsearch",
		Usage:   "Keyword, semantic and hybrid search over SQLite tables",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				EnvVars: []string{"HYBRIDSEARCH_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to SQLite database (overrides config)",
			},
			&cli.StringFlag{
				Name:  "provider",
				Usage: "Embedding provider: local, openai, ollama, none (overrides config)",
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "Default embedding model (overrides config)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (console, json)",
			},
		},
		Before: setup,
		After:  teardown,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the MCP server on stdio",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "Listen address for /metrics and /healthz (e.g. :9090); empty disables",
					},
				},
			},
			{
				Name:   "ensure",
				Usage:  "Generate missing or stale embeddings for a table",
				Action: ensureCommand,
				Flags: []cli.Flag{
					tableFlag(true),
					&cli.StringSliceFlag{
						Name:  "text-column",
						Usage: "Source text column, in order (repeatable)",
					},
					vectorColumnFlag(),
					modelNameFlag(),
				},
			},
			{
				Name:   "coverage",
				Usage:  "Show embedding coverage for a table",
				Action: coverageCommand,
				Flags: []cli.Flag{
					tableFlag(true),
					vectorColumnFlag(),
					modelNameFlag(),
				},
			},
			{
				Name:      "search",
				Usage:     "Search tables with a free-text query",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "method",
						Aliases: []string{"m"},
						Usage:   "Scoring method: hybrid, semantic, keyword",
						Value:   "hybrid",
					},
					&cli.BoolFlag{
						Name:  "auto",
						Usage: "Embed pending rows before searching",
						Value: true,
					},
					&cli.StringSliceFlag{
						Name:    "table",
						Aliases: []string{"t"},
						Usage:   "Table to search (repeatable); default depends on method",
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results",
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum similarity (semantic) or combined score (hybrid)",
					},
					&cli.Float64Flag{
						Name:  "semantic-weight",
						Usage: "Relative weight of vector similarity",
					},
					&cli.Float64Flag{
						Name:  "text-weight",
						Usage: "Relative weight of keyword relevance",
					},
					&cli.StringSliceFlag{
						Name:  "text-column",
						Usage: "Columns to match and embed (repeatable)",
					},
					vectorColumnFlag(),
					modelNameFlag(),
				},
			},
			{
				Name:   "upsert",
				Usage:  "Insert or update a row",
				Action: upsertCommand,
				Flags: []cli.Flag{
					tableFlag(true),
					&cli.StringFlag{
						Name:     "values",
						Usage:    `Row values as a JSON object, e.g. '{"id":1,"content":"..."}'`,
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "match",
						Usage: "Column identifying an existing row (repeatable)",
					},
				},
			},
			{
				Name:   "version",
				Usage:  "Print version information",
				Action: versionCommand,
			},
		},
	}
}

func tableFlag(required bool) cli.Flag {
	return &cli.StringFlag{
		Name:     "table",
		Aliases:  []string{"t"},
		Usage:    "Table name",
		Required: required,
	}
}

func vectorColumnFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "vector-column",
		Usage: "Column holding row vectors",
	}
}

func modelNameFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "model-name",
		Usage: `Embedding model for this call ("provider:model", provider or model)`,
	}
}

// setup loads configuration, applies global flag overrides and builds the logger
func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	if v := c.String("db"); v != "" {
		cfg.Database.Path = v
	}
	if v := c.String("provider"); v != "" {
		cfg.Embedding.Provider = strings.ToLower(v)
		cfg.Embedding.Model = ""
	}
	if v := c.String("model"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := c.String("log-format"); v != "" {
		cfg.Logging.Format = v
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	l, err := logger.NewLogger(cfg.Logging.Format, cfg.Logging.Level)
	if err != nil {
		return err
	}

	c.App.Metadata = map[string]interface{}{
		metaConfig: cfg,
		metaLogger: l,
	}
	return nil
}

func teardown(c *cli.Context) error {
	if l, ok := c.App.Metadata[metaLogger].(*zap.Logger); ok {
		_ = l.Sync()
	}
	return nil
}

func appConfig(c *cli.Context) (config.Config, *zap.Logger) {
	cfg, _ := c.App.Metadata[metaConfig].(config.Config)
	l, ok := c.App.Metadata[metaLogger].(*zap.Logger)
	if !ok {
		l = zap.NewNop()
	}
	return cfg, l
}

// withServer opens the database and embedders for one command
func withServer(c *cli.Context, fn func(*mcp.Server) error) error {
	cfg, l := appConfig(c)
	s, err := mcp.NewServer(cfg, l)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return fn(s)
}

func serveCommand(c *cli.Context) error {
	cfg, l := appConfig(c)
	if addr := c.String("metrics-addr"); addr != "" {
		cfg.Metrics.Addr = addr
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := mcp.NewServer(cfg, l)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	l.Info("Hybridsearch MCP server starting",
		zap.String("version", version),
		zap.String("build_mode", storage.BuildMode),
		zap.String("driver", storage.DriverName))

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		metrics.Register(prometheus.DefaultRegisterer)
		router := metrics.NewRouter(prometheus.DefaultGatherer, s.Health)
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.Metrics.Addr, router, l.Named("metrics"))
		})
	}
	g.Go(func() error {
		l.Info("MCP server ready, listening on stdio")
		err := s.Serve(gctx)
		// stdin closed or signal received: stop the metrics listener too
		stop()
		if err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})

	err = g.Wait()
	l.Info("Server stopped")
	return err
}

func ensureCommand(c *cli.Context) error {
	args := map[string]interface{}{
		"table":         c.String("table"),
		"text_columns":  c.StringSlice("text-column"),
		"vector_column": c.String("vector-column"),
		"model_name":    c.String("model-name"),
	}
	return runTool(c, mcp.ToolEnsureEmbeddings, args)
}

func coverageCommand(c *cli.Context) error {
	args := map[string]interface{}{
		"table":         c.String("table"),
		"vector_column": c.String("vector-column"),
		"model_name":    c.String("model-name"),
	}
	return runTool(c, mcp.ToolEmbeddingCoverage, args)
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return cli.Exit("search requires a query argument", 2)
	}

	tool, err := searchTool(c.String("method"), c.Bool("auto"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	args := map[string]interface{}{
		"query":         query,
		"tables":        c.StringSlice("table"),
		"text_columns":  c.StringSlice("text-column"),
		"vector_column": c.String("vector-column"),
		"model_name":    c.String("model-name"),
	}
	// Unset flags fall back to the configured defaults
	if c.IsSet("limit") {
		args["limit"] = c.Int("limit")
	}
	if c.IsSet("threshold") {
		args["similarity_threshold"] = c.Float64("threshold")
	}
	if c.IsSet("semantic-weight") {
		args["semantic_weight"] = c.Float64("semantic-weight")
	}
	if c.IsSet("text-weight") {
		args["text_weight"] = c.Float64("text-weight")
	}
	return runTool(c, tool, args)
}

// searchTool maps a method and the auto flag to a tool name
func searchTool(method string, auto bool) (string, error) {
	switch strings.ToLower(method) {
	case "hybrid":
		if auto {
			return mcp.ToolAutoHybridSearch, nil
		}
		return mcp.ToolHybridSearch, nil
	case "semantic":
		if auto {
			return mcp.ToolAutoSemanticSearch, nil
		}
		return mcp.ToolSemanticSearch, nil
	case "keyword":
		return mcp.ToolKeywordSearch, nil
	}
	return "", fmt.Errorf("unknown method %q (want hybrid, semantic or keyword)", method)
}

func upsertCommand(c *cli.Context) error {
	var values map[string]interface{}
	if err := json.Unmarshal([]byte(c.String("values")), &values); err != nil {
		return cli.Exit(fmt.Sprintf("--values must be a JSON object: %v", err), 2)
	}
	args := map[string]interface{}{
		"table":         c.String("table"),
		"values":        values,
		"match_columns": c.StringSlice("match"),
	}
	return runTool(c, mcp.ToolUpsertRow, args)
}

func versionCommand(c *cli.Context) error {
	fmt.Fprintf(c.App.Writer, "Hybridsearch MCP Server\n")
	fmt.Fprintf(c.App.Writer, "Version: %s\n", version)
	fmt.Fprintf(c.App.Writer, "Build Time: %s\n", buildTime)
	fmt.Fprintf(c.App.Writer, "Build Mode: %s\n", storage.BuildMode)
	fmt.Fprintf(c.App.Writer, "SQLite Driver: %s\n", storage.DriverName)
	return nil
}

// runTool invokes a tool and prints its JSON payload. Tool failures exit non-zero.
func runTool(c *cli.Context, tool string, args map[string]interface{}) error {
	return withServer(c, func(s *mcp.Server) error {
		result, err := s.CallTool(c.Context, tool, args)
		if err != nil {
			return err
		}
		for _, content := range result.Content {
			if text, ok := content.(mcpgo.TextContent); ok {
				fmt.Fprintln(c.App.Writer, text.Text)
			}
		}
		if result.IsError {
			return cli.Exit("", 1)
		}
		return nil
	})
}

