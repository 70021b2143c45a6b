package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Embedding column registry

// RegisterEmbeddingColumn records (or updates) the text sources of a vector column
func (s *SQLiteStorage) RegisterEmbeddingColumn(ctx context.Context, col *EmbeddingColumn) error {
	textColumns, err := json.Marshal(col.TextColumns)
	if err != nil {
		return fmt.Errorf("marshal text columns: %w", err)
	}

	query := `
		INSERT INTO embedding_columns (table_name, vector_column, text_columns, model, dimension, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(table_name, vector_column) DO UPDATE SET
			text_columns = excluded.text_columns,
			model = excluded.model,
			dimension = excluded.dimension,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, query,
		col.Table, col.VectorColumn, string(textColumns), col.Model, col.Dimension, now, now)
	if err != nil {
		return fmt.Errorf("failed to register embedding column %s.%s: %w", col.Table, col.VectorColumn, err)
	}
	if col.CreatedAt.IsZero() {
		col.CreatedAt = now
	}
	col.UpdatedAt = now
	return nil
}

// GetEmbeddingColumn returns the registration of a vector column or ErrNotFound
func (s *SQLiteStorage) GetEmbeddingColumn(ctx context.Context, table, vectorColumn string) (*EmbeddingColumn, error) {
	cols, err := listEmbeddingColumns(ctx, s.db, table)
	if err != nil {
		return nil, err
	}
	for _, c := range cols {
		if c.VectorColumn == vectorColumn {
			return c, nil
		}
	}
	return nil, ErrNotFound
}

// ListEmbeddingColumns returns registrations for one table, or all tables when table is empty
func (s *SQLiteStorage) ListEmbeddingColumns(ctx context.Context, table string) ([]*EmbeddingColumn, error) {
	return listEmbeddingColumns(ctx, s.db, table)
}

func listEmbeddingColumns(ctx context.Context, q querier, table string) ([]*EmbeddingColumn, error) {
	query := `
		SELECT table_name, vector_column, text_columns, model, dimension, created_at, updated_at
		FROM embedding_columns
	`
	var args []interface{}
	if table != "" {
		query += " WHERE table_name = ?"
		args = append(args, table)
	}
	query += " ORDER BY table_name, vector_column"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list embedding columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*EmbeddingColumn
	for rows.Next() {
		var (
			col         EmbeddingColumn
			textColumns string
			createdAt   sql.NullTime
			updatedAt   sql.NullTime
		)
		if err := rows.Scan(&col.Table, &col.VectorColumn, &textColumns, &col.Model, &col.Dimension, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(textColumns), &col.TextColumns); err != nil {
			return nil, fmt.Errorf("corrupt text columns for %s.%s: %w", col.Table, col.VectorColumn, err)
		}
		col.CreatedAt = createdAt.Time
		col.UpdatedAt = updatedAt.Time
		result = append(result, &col)
	}
	return result, rows.Err()
}

// Embedding store

// EnsureVectorColumn adds the vector column to the table when missing.
// Returns true when the column was created.
func (s *SQLiteStorage) EnsureVectorColumn(ctx context.Context, table, vectorColumn string) (bool, error) {
	cols, err := s.Columns(ctx, table, vectorColumn)
	if err != nil {
		return false, err
	}
	if HasColumn(cols, vectorColumn) {
		return false, nil
	}

	query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s BLOB", quoteIdent(table), quoteIdent(vectorColumn))
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return false, fmt.Errorf("failed to add vector column %s.%s: %w", table, vectorColumn, err)
	}
	return true, nil
}

// ListEmbeddingStates returns, per row, the current source texts, the stored
// vector and the provenance recorded when that vector was written.
func (s *SQLiteStorage) ListEmbeddingStates(ctx context.Context, table, vectorColumn string, textColumns []string) ([]*EmbeddingState, error) {
	cols, err := s.Columns(ctx, table, vectorColumn)
	if err != nil {
		return nil, err
	}
	if err := RequireColumns(table, cols, textColumns); err != nil {
		return nil, err
	}

	selected := make([]string, 0, len(textColumns)+4)
	selected = append(selected, "t.rowid")
	for _, name := range textColumns {
		selected = append(selected, "t."+quoteIdent(name))
	}
	if HasColumn(cols, vectorColumn) {
		selected = append(selected, "t."+quoteIdent(vectorColumn))
	} else {
		selected = append(selected, "NULL")
	}
	selected = append(selected, "m.content_hash", "m.model")

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s AS t
		LEFT JOIN embedding_meta AS m
		  ON m.table_name = ? AND m.vector_column = ? AND m.row_id = t.rowid
		ORDER BY t.rowid
	`, strings.Join(selected, ", "), quoteIdent(table))

	rows, err := s.db.QueryContext(ctx, query, table, vectorColumn)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding states of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var states []*EmbeddingState
	for rows.Next() {
		values := make([]interface{}, len(selected))
		ptrs := make([]interface{}, len(selected))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan embedding state: %w", err)
		}

		id, ok := values[0].(int64)
		if !ok {
			return nil, fmt.Errorf("table %s: unexpected rowid type %T", table, values[0])
		}
		state := &EmbeddingState{
			RowID: id,
			Texts: make([]string, len(textColumns)),
		}
		for i := range textColumns {
			state.Texts[i] = TextValue(values[i+1])
		}
		n := len(textColumns) + 1
		state.Vector, state.VectorErr = DecodeVectorValue(values[n])
		state.ContentHash = TextValue(values[n+1])
		state.Model = TextValue(values[n+2])
		states = append(states, state)
	}
	return states, rows.Err()
}

// WriteEmbeddings stores generated vectors in one transaction. A vector is
// only written when the row's text still equals the text it was computed
// from; otherwise the row is counted as stale and left for the next pass.
func (s *SQLiteStorage) WriteEmbeddings(ctx context.Context, table, vectorColumn string, textColumns []string, writes []EmbeddingWrite) (*WriteResult, error) {
	result := &WriteResult{}
	if len(writes) == 0 {
		return result, nil
	}

	quotedText := make([]string, len(textColumns))
	for i, name := range textColumns {
		quotedText[i] = quoteIdent(name)
	}
	readQuery := fmt.Sprintf("SELECT %s FROM %s WHERE rowid = ?", strings.Join(quotedText, ", "), quoteIdent(table))
	writeQuery := fmt.Sprintf("UPDATE %s SET %s = ? WHERE rowid = ?", quoteIdent(table), quoteIdent(vectorColumn))
	metaQuery := `
		INSERT INTO embedding_meta (table_name, vector_column, row_id, content_hash, model, dimension, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(table_name, vector_column, row_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			model = excluded.model,
			dimension = excluded.dimension,
			updated_at = excluded.updated_at
	`

	err := s.withTx(ctx, func(q querier) error {
		now := time.Now().UTC()
		for _, w := range writes {
			current := make([]interface{}, len(textColumns))
			ptrs := make([]interface{}, len(textColumns))
			for i := range current {
				ptrs[i] = &current[i]
			}
			err := q.QueryRowContext(ctx, readQuery, w.RowID).Scan(ptrs...)
			if err == sql.ErrNoRows {
				result.Stale++
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to re-read row %d of %s: %w", w.RowID, table, err)
			}
			if !sameTexts(current, w.SourceTexts) {
				result.Stale++
				continue
			}

			if _, err := q.ExecContext(ctx, writeQuery, SerializeVector(w.Vector), w.RowID); err != nil {
				return fmt.Errorf("failed to write vector for row %d of %s: %w", w.RowID, table, err)
			}
			if _, err := q.ExecContext(ctx, metaQuery, table, vectorColumn, w.RowID, w.ContentHash, w.Model, len(w.Vector), now); err != nil {
				return fmt.Errorf("failed to write embedding meta for row %d of %s: %w", w.RowID, table, err)
			}
			result.Written++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func sameTexts(current []interface{}, source []string) bool {
	if len(current) != len(source) {
		return false
	}
	for i := range current {
		if TextValue(current[i]) != source[i] {
			return false
		}
	}
	return true
}

func deleteMeta(ctx context.Context, q querier, table, vectorColumn string, rowID int64) error {
	_, err := q.ExecContext(ctx,
		"DELETE FROM embedding_meta WHERE table_name = ? AND vector_column = ? AND row_id = ?",
		table, vectorColumn, rowID)
	if err != nil {
		return fmt.Errorf("failed to delete embedding meta: %w", err)
	}
	return nil
}

// CountVectors returns total rows and rows holding a usable vector: one that
// decodes and, when dimension > 0, has exactly that many components.
func (s *SQLiteStorage) CountVectors(ctx context.Context, table, vectorColumn string, dimension int) (*VectorCounts, error) {
	cols, err := s.Columns(ctx, table, vectorColumn)
	if err != nil {
		return nil, err
	}

	counts := &VectorCounts{}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(table))
	if err := s.db.QueryRowContext(ctx, query).Scan(&counts.TotalRows); err != nil {
		return nil, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}
	if !HasColumn(cols, vectorColumn) {
		return counts, nil
	}

	query = fmt.Sprintf("SELECT %[1]s FROM %[2]s WHERE %[1]s IS NOT NULL", quoteIdent(vectorColumn), quoteIdent(table))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count vectors of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var raw interface{}
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan vector of %s: %w", table, err)
		}
		vec, err := DecodeVectorValue(raw)
		if err != nil || len(vec) == 0 {
			continue
		}
		if dimension > 0 && len(vec) != dimension {
			continue
		}
		counts.RowsWithVector++
	}
	return counts, rows.Err()
}
