package indexer

import (
	"context"

	"github.com/dshills/hybridsearch-mcp/internal/embedder"
	"github.com/dshills/hybridsearch-mcp/internal/storage"
	"github.com/dshills/hybridsearch-mcp/pkg/types"
)

// Coverage reports how many rows of a table hold a vector
type Coverage struct {
	Table          string `json:"table"`
	VectorColumn   string `json:"vector_column"`
	TotalRows      int    `json:"total_rows"`
	RowsWithVector int    `json:"rows_with_vector"`
	Dimension      int    `json:"dimension"`
}

// Ratio returns RowsWithVector / TotalRows. An empty table is fully covered.
func (c *Coverage) Ratio() float64 {
	if c.TotalRows == 0 {
		return 1
	}
	return float64(c.RowsWithVector) / float64(c.TotalRows)
}

// CoverageStats counts rows and the vectors usable by emb: stored vectors
// that decode and match its dimension. Dimension is the output size of emb,
// reported even when the table is empty.
func (idx *Indexer) CoverageStats(ctx context.Context, table, vectorColumn string, emb embedder.Embedder) (*Coverage, error) {
	if table == "" {
		return nil, types.Errorf(types.KindInvalidConfiguration, "table is required")
	}
	if vectorColumn == "" {
		vectorColumn = storage.DefaultVectorColumn
	}

	var dimension int
	if emb != nil {
		dimension = emb.Dimension()
	}
	counts, err := idx.storage.CountVectors(ctx, table, vectorColumn, dimension)
	if err != nil {
		return nil, err
	}

	return &Coverage{
		Table:          table,
		VectorColumn:   vectorColumn,
		TotalRows:      counts.TotalRows,
		RowsWithVector: counts.RowsWithVector,
		Dimension:      dimension,
	}, nil
}
