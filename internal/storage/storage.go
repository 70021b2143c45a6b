package storage

import (
	"context"
	"strings"
	"time"
)

// DefaultVectorColumn is the vector column name used when callers do not pick one
const DefaultVectorColumn = "embedding"

// Storage defines the table access the search engine needs: column inspection,
// row reads, the embedding store and the change-aware upsert.
type Storage interface {
	// Column inspection
	ListTables(ctx context.Context) ([]string, error)
	TableExists(ctx context.Context, table string) (bool, error)
	Columns(ctx context.Context, table string, vectorColumns ...string) ([]Column, error)

	// Row operations
	ListRows(ctx context.Context, table string, vectorColumn string) ([]*Row, error)
	Upsert(ctx context.Context, table string, values map[string]interface{}, matchColumns []string) (*UpsertResult, error)
	DeleteRow(ctx context.Context, table string, rowID int64) error

	// Embedding column registry
	RegisterEmbeddingColumn(ctx context.Context, col *EmbeddingColumn) error
	GetEmbeddingColumn(ctx context.Context, table, vectorColumn string) (*EmbeddingColumn, error)
	ListEmbeddingColumns(ctx context.Context, table string) ([]*EmbeddingColumn, error)

	// Embedding store
	EnsureVectorColumn(ctx context.Context, table, vectorColumn string) (bool, error)
	ListEmbeddingStates(ctx context.Context, table, vectorColumn string, textColumns []string) ([]*EmbeddingState, error)
	WriteEmbeddings(ctx context.Context, table, vectorColumn string, textColumns []string, writes []EmbeddingWrite) (*WriteResult, error)
	CountVectors(ctx context.Context, table, vectorColumn string, dimension int) (*VectorCounts, error)

	// Database operations
	Close() error
}

// Column describes one column of a user table
type Column struct {
	Name       string
	Type       string
	NotNull    bool
	PrimaryKey bool
	IsVector   bool // Vector columns never appear in row payloads
}

// IsText reports whether the column has SQLite TEXT affinity
func (c Column) IsText() bool {
	t := strings.ToUpper(c.Type)
	return strings.Contains(t, "CHAR") || strings.Contains(t, "CLOB") || strings.Contains(t, "TEXT")
}

// Row is a table row keyed by its rowid
type Row struct {
	ID     int64
	Values map[string]interface{} // Payload; vector columns excluded
	Vector interface{}            // Raw value of the requested vector column, nil when absent
}

// EmbeddingColumn records which text columns feed a vector column
type EmbeddingColumn struct {
	Table        string
	VectorColumn string
	TextColumns  []string
	Model        string
	Dimension    int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EmbeddingState is the lifecycle view of one row for one vector column
type EmbeddingState struct {
	RowID       int64
	Texts       []string // Text column values in configured order ("" for NULL)
	Vector      []float32
	VectorErr   error  // Set when the stored value could not be decoded
	ContentHash string // Hash recorded when the vector was written ("" when unknown)
	Model       string
}

// HasVector reports whether the row holds a decodable vector
func (e *EmbeddingState) HasVector() bool {
	return e.VectorErr == nil && len(e.Vector) > 0
}

// EmbeddingWrite is a generated vector ready to be stored
type EmbeddingWrite struct {
	RowID       int64
	Vector      []float32
	SourceTexts []string // Texts the vector was computed from
	ContentHash string
	Model       string
}

// WriteResult summarizes a WriteEmbeddings call
type WriteResult struct {
	Written int
	Stale   int // Rows whose text changed after the vector was computed
}

// VectorCounts holds coverage counters for one vector column
type VectorCounts struct {
	TotalRows      int
	RowsWithVector int
}

// UpsertResult describes what an upsert changed
type UpsertResult struct {
	RowID              int64
	Inserted           bool
	ChangedColumns     []string
	InvalidatedVectors []string // Vector columns nulled because a text source changed
}
