package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/hybridsearch-mcp/internal/embedder"
	"github.com/dshills/hybridsearch-mcp/internal/metrics"
	"github.com/dshills/hybridsearch-mcp/internal/storage"
	"github.com/dshills/hybridsearch-mcp/pkg/types"
)

// DefaultBatchSize is the number of rows sent to the provider per call
const DefaultBatchSize = 32

// Indexer keeps the vector column of a table in step with its text columns
type Indexer struct {
	storage storage.Storage
	logger  *zap.Logger

	// Worker pool configuration
	workers   int
	batchSize int
}

// Config contains configuration for the indexer
type Config struct {
	Workers   int // Number of concurrent provider calls (default: runtime.NumCPU())
	BatchSize int // Rows per provider call and per write transaction (default: 32)
}

// Request names the vector column to maintain and the text feeding it
type Request struct {
	Table string
	// TextColumns is the ordered list of source columns. When empty the
	// registered columns are used, then the table's text columns.
	TextColumns  []string
	VectorColumn string // default: storage.DefaultVectorColumn
}

// Statistics contains statistics about one provisioning run
type Statistics struct {
	Table         string
	VectorColumn  string
	TextColumns   []string
	Model         string
	Dimension     int
	ColumnCreated bool
	RowsEmbedded  int // vectors generated and stored
	RowsSkipped   int // rows whose vector already matched their text
	RowsEmpty     int // rows with no text, left without a vector
	RowsStale     int // vectors discarded because the text changed mid-run
	Coverage      float64
	Duration      time.Duration
}

// New creates a new Indexer instance
func New(store storage.Storage, config *Config, logger *zap.Logger) *Indexer {
	if config == nil {
		config = &Config{}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		storage:   store,
		logger:    logger,
		workers:   workers,
		batchSize: batchSize,
	}
}

// pendingRow is a row whose vector must be (re)generated
type pendingRow struct {
	id    int64
	texts []string
	input string
	hash  string
}

// plan is the classification of every row of a table
type plan struct {
	columns []string
	pending []pendingRow
	skipped int
	empty   int
}

// EnsureEmbeddings generates vectors for every row whose vector is missing,
// malformed, of the wrong dimension, built by another model, or built from
// text that has since changed. Rows already up to date are skipped, so a
// second call on unchanged data embeds nothing.
func (idx *Indexer) EnsureEmbeddings(ctx context.Context, req Request, emb embedder.Embedder) (*Statistics, error) {
	start := time.Now()
	req, err := normalizeRequest(req, emb)
	if err != nil {
		return nil, err
	}

	textColumns, err := idx.resolveTextColumns(ctx, req)
	if err != nil {
		return nil, err
	}

	modelID := embedder.ModelID(emb)
	stats := &Statistics{
		Table:        req.Table,
		VectorColumn: req.VectorColumn,
		TextColumns:  textColumns,
		Model:        modelID,
		Dimension:    emb.Dimension(),
	}

	// A placeholder provider fails before anything is written
	if err := embedder.Unavailable(emb); err != nil {
		idx.provisioningFailed(req.Table, modelID, 0, 0, err)
		return nil, err
	}

	p, err := idx.plan(ctx, req, textColumns, modelID, emb.Dimension())
	if err != nil {
		return nil, err
	}
	stats.RowsSkipped = p.skipped
	stats.RowsEmpty = p.empty

	// The schema is left alone until the provider has answered once
	var first [][]float32
	if len(p.pending) > 0 {
		first, err = idx.embedBatch(ctx, p.pending[:min(idx.batchSize, len(p.pending))], emb)
		if err != nil {
			idx.provisioningFailed(req.Table, modelID, len(p.pending), 0, err)
			return nil, err
		}
	}

	stats.ColumnCreated, err = idx.storage.EnsureVectorColumn(ctx, req.Table, req.VectorColumn)
	if err != nil {
		return nil, err
	}
	if err := idx.storage.RegisterEmbeddingColumn(ctx, &storage.EmbeddingColumn{
		Table:        req.Table,
		VectorColumn: req.VectorColumn,
		TextColumns:  textColumns,
		Model:        modelID,
		Dimension:    emb.Dimension(),
	}); err != nil {
		return nil, err
	}

	if len(p.pending) > 0 {
		written, stale, err := idx.embedPending(ctx, req, p, emb, first)
		stats.RowsEmbedded = written
		stats.RowsStale = stale
		metrics.RowsEmbeddedTotal.WithLabelValues(req.Table).Add(float64(written))
		if stale > 0 {
			metrics.StaleWritesTotal.WithLabelValues(req.Table).Add(float64(stale))
		}
		if err != nil {
			idx.provisioningFailed(req.Table, modelID, len(p.pending), written, err)
			return nil, err
		}
	}
	metrics.ProvisioningTotal.WithLabelValues(req.Table, "success").Inc()

	coverage, err := idx.CoverageStats(ctx, req.Table, req.VectorColumn, emb)
	if err != nil {
		return nil, err
	}
	stats.Coverage = coverage.Ratio()
	stats.Duration = time.Since(start)

	idx.logger.Info("Embeddings ensured",
		zap.String("table", req.Table),
		zap.String("vector_column", req.VectorColumn),
		zap.String("model", modelID),
		zap.Int("embedded", stats.RowsEmbedded),
		zap.Int("skipped", stats.RowsSkipped),
		zap.Int("empty", stats.RowsEmpty),
		zap.Int("stale", stats.RowsStale),
		zap.Float64("coverage", stats.Coverage),
		zap.Duration("duration", stats.Duration))

	return stats, nil
}

// Pending returns how many rows EnsureEmbeddings would embed right now
func (idx *Indexer) Pending(ctx context.Context, req Request, emb embedder.Embedder) (int, error) {
	req, err := normalizeRequest(req, emb)
	if err != nil {
		return 0, err
	}
	textColumns, err := idx.resolveTextColumns(ctx, req)
	if err != nil {
		return 0, err
	}
	p, err := idx.plan(ctx, req, textColumns, embedder.ModelID(emb), emb.Dimension())
	if err != nil {
		return 0, err
	}
	return len(p.pending), nil
}

func normalizeRequest(req Request, emb embedder.Embedder) (Request, error) {
	if emb == nil {
		return req, types.Errorf(types.KindInvalidConfiguration, "no embedder supplied")
	}
	req.Table = strings.TrimSpace(req.Table)
	if req.Table == "" {
		return req, types.Errorf(types.KindInvalidConfiguration, "table is required")
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

// resolveTextColumns picks the source columns: caller order, then the
// registered order, then table declaration order.
func (idx *Indexer) resolveTextColumns(ctx context.Context, req Request) ([]string, error) {
	cols, err := idx.storage.Columns(ctx, req.Table, req.VectorColumn)
	if err != nil {
		return nil, err
	}

	if len(req.TextColumns) > 0 {
		if err := storage.RequireColumns(req.Table, cols, req.TextColumns); err != nil {
			return nil, err
		}
		for _, name := range req.TextColumns {
			for _, c := range cols {
				if c.Name == name && c.IsVector {
					return nil, types.Errorf(types.KindInvalidConfiguration,
						"column %q of %q is a vector column", name, req.Table)
				}
			}
		}
		return req.TextColumns, nil
	}

	reg, err := idx.storage.GetEmbeddingColumn(ctx, req.Table, req.VectorColumn)
	switch {
	case err == nil:
		if err := storage.RequireColumns(req.Table, cols, reg.TextColumns); err != nil {
			return nil, err
		}
		return reg.TextColumns, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	textColumns := storage.TextColumns(cols)
	if len(textColumns) == 0 {
		return nil, types.NewError(types.KindSchemaMismatch,
			fmt.Sprintf("table %q has no text columns", req.Table), storage.ErrColumnNotFound)
	}
	return textColumns, nil
}

func (idx *Indexer) plan(ctx context.Context, req Request, textColumns []string, modelID string, dimension int) (*plan, error) {
	states, err := idx.storage.ListEmbeddingStates(ctx, req.Table, req.VectorColumn, textColumns)
	if err != nil {
		return nil, err
	}

	p := &plan{columns: textColumns}
	for _, st := range states {
		input := CanonicalText(st.Texts)
		if input == "" {
			p.empty++
			continue
		}
		hash := ContentHash(modelID, textColumns, st.Texts)
		if isCurrent(st, hash, modelID, dimension) {
			p.skipped++
			continue
		}
		p.pending = append(p.pending, pendingRow{
			id:    st.RowID,
			texts: st.Texts,
			input: input,
			hash:  hash,
		})
	}
	return p, nil
}

// isCurrent reports whether a stored vector can be reused as is.
// A vector of the wrong dimension counts as missing.
func isCurrent(st *storage.EmbeddingState, hash, modelID string, dimension int) bool {
	if !st.HasVector() {
		return false
	}
	if dimension > 0 && len(st.Vector) != dimension {
		return false
	}
	return st.Model == modelID && st.ContentHash == hash
}

func (idx *Indexer) provisioningFailed(table, modelID string, pending, written int, err error) {
	metrics.ProvisioningTotal.WithLabelValues(table, "error").Inc()
	idx.logger.Warn("Embedding provisioning failed",
		zap.String("table", table),
		zap.String("model", modelID),
		zap.Int("pending", pending),
		zap.Int("embedded", written),
		zap.Error(err))
}

// embedBatch returns one vector per row, checked against the model dimension
func (idx *Indexer) embedBatch(ctx context.Context, batch []pendingRow, emb embedder.Embedder) ([][]float32, error) {
	inputs := make([]string, len(batch))
	for j, row := range batch {
		inputs[j] = row.input
	}

	vectors, err := emb.Embed(ctx, inputs)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d rows", len(vectors), len(batch))
	}
	if d := emb.Dimension(); d > 0 {
		for _, vec := range vectors {
			if len(vec) != d {
				return nil, types.Errorf(types.KindDimensionMismatch,
					"model %s returned %d dimensions, expected %d", embedder.ModelID(emb), len(vec), d)
			}
		}
	}
	return vectors, nil
}

// embedPending embeds the pending rows in batches, with at most idx.workers
// provider calls in flight. Each batch is written in its own transaction.
// first, when set, holds the vectors of the first batch.
func (idx *Indexer) embedPending(ctx context.Context, req Request, p *plan, emb embedder.Embedder, first [][]float32) (int, int, error) {
	var (
		mu      sync.Mutex
		written int
		stale   int
	)

	modelID := embedder.ModelID(emb)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)

	for i := 0; i < len(p.pending); i += idx.batchSize {
		end := min(i+idx.batchSize, len(p.pending))
		batch := p.pending[i:end]

		g.Go(func() error {
			vectors := first
			if i > 0 || vectors == nil {
				var err error
				if vectors, err = idx.embedBatch(gctx, batch, emb); err != nil {
					return err
				}
			}

			writes := make([]storage.EmbeddingWrite, len(batch))
			for j, row := range batch {
				writes[j] = storage.EmbeddingWrite{
					RowID:       row.id,
					Vector:      vectors[j],
					SourceTexts: row.texts,
					ContentHash: row.hash,
					Model:       modelID,
				}
			}

			res, err := idx.storage.WriteEmbeddings(gctx, req.Table, req.VectorColumn, p.columns, writes)
			if err != nil {
				return err
			}

			mu.Lock()
			written += res.Written
			stale += res.Stale
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	return written, stale, err
}

// CanonicalText is the provider input for a row: its non-empty text values
// joined by newlines, in column order.
func CanonicalText(texts []string) string {
	parts := make([]string, 0, len(texts))
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// ContentHash fingerprints the text a vector is built from. The model and the
// ordered column list are part of the hash, so changing either marks every
// vector stale.
func ContentHash(modelID string, columns, texts []string) string {
	h := sha256.New()
	h.Write([]byte(modelID))
	h.Write([]byte{0})
	for i, col := range columns {
		h.Write([]byte(col))
		h.Write([]byte{0x1f})
		if i < len(texts) {
			h.Write([]byte(texts[i]))
		}
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}
