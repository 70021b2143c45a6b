package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// ListTables returns user tables in name order, excluding internal bookkeeping tables
func (s *SQLiteStorage) ListTables(ctx context.Context) ([]string, error) {
	query := `
		SELECT name FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite_%'
		  AND name NOT IN (?, ?, ?)
		ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query, tableSchemaVersion, tableEmbeddingColumns, tableEmbeddingMeta)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// TableExists reports whether a user table exists
func (s *SQLiteStorage) TableExists(ctx context.Context, table string) (bool, error) {
	return tableExists(ctx, s.db, table)
}

func tableExists(ctx context.Context, q querier, table string) (bool, error) {
	if isInternalTable(table) {
		return false, nil
	}
	var name string
	err := q.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return true, nil
}

func isInternalTable(table string) bool {
	switch table {
	case tableSchemaVersion, tableEmbeddingColumns, tableEmbeddingMeta:
		return true
	}
	return false
}

// Columns returns the columns of a table in declaration order.
// Registered vector columns and any names in vectorColumns are marked IsVector.
func (s *SQLiteStorage) Columns(ctx context.Context, table string, vectorColumns ...string) ([]Column, error) {
	return columns(ctx, s.db, table, vectorColumns...)
}

func columns(ctx context.Context, q querier, table string, vectorColumns ...string) ([]Column, error) {
	exists, err := tableExists(ctx, q, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, schemaError(ErrTableNotFound, "table %q does not exist", table)
	}

	vectors := make(map[string]bool, len(vectorColumns))
	for _, name := range vectorColumns {
		vectors[name] = true
	}
	registered, err := listEmbeddingColumns(ctx, q, table)
	if err != nil {
		return nil, err
	}
	for _, reg := range registered {
		vectors[reg.VectorColumn] = true
	}

	rows, err := q.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
	if err != nil {
		return nil, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []Column
	for rows.Next() {
		var (
			cid       int
			col       Column
			notNull   int
			dfltValue interface{}
			pk        int
		)
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		col.NotNull = notNull != 0
		col.PrimaryKey = pk != 0
		col.IsVector = vectors[col.Name]
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// TextColumns returns the default text columns of a table: TEXT-affinity,
// non-vector columns in declaration order.
func TextColumns(cols []Column) []string {
	var names []string
	for _, c := range cols {
		if c.IsText() && !c.IsVector {
			names = append(names, c.Name)
		}
	}
	return names
}

// PayloadColumns returns every non-vector column name
func PayloadColumns(cols []Column) []string {
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		if !c.IsVector {
			names = append(names, c.Name)
		}
	}
	return names
}

// HasColumn reports whether cols contains name
func HasColumn(cols []Column, name string) bool {
	for _, c := range cols {
		if c.Name == name {
			return true
		}
	}
	return false
}

// RequireColumns returns a SchemaMismatch error naming the first missing column
func RequireColumns(table string, cols []Column, names []string) error {
	for _, name := range names {
		if !HasColumn(cols, name) {
			return schemaError(ErrColumnNotFound, "column %q does not exist on table %q", name, table)
		}
	}
	return nil
}
