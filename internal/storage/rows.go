package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/hybridsearch-mcp/pkg/types"
)

// ListRows returns every row of a table ordered by rowid. Vector columns are
// never placed in Row.Values; the requested vector column, when present, is
// returned raw in Row.Vector.
func (s *SQLiteStorage) ListRows(ctx context.Context, table string, vectorColumn string) ([]*Row, error) {
	cols, err := s.Columns(ctx, table, vectorColumn)
	if err != nil {
		return nil, err
	}

	payload := PayloadColumns(cols)
	selected := make([]string, 0, len(payload)+2)
	selected = append(selected, "rowid")
	for _, name := range payload {
		selected = append(selected, quoteIdent(name))
	}
	withVector := vectorColumn != "" && HasColumn(cols, vectorColumn)
	if withVector {
		selected = append(selected, quoteIdent(vectorColumn))
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", strings.Join(selected, ", "), quoteIdent(table))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rows of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Row
	for rows.Next() {
		values := make([]interface{}, len(selected))
		ptrs := make([]interface{}, len(selected))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row of %s: %w", table, err)
		}

		row := &Row{Values: make(map[string]interface{}, len(payload))}
		id, ok := values[0].(int64)
		if !ok {
			return nil, fmt.Errorf("table %s: unexpected rowid type %T", table, values[0])
		}
		row.ID = id
		for i, name := range payload {
			row.Values[name] = values[i+1]
		}
		if withVector {
			row.Vector = values[len(values)-1]
		}
		result = append(result, row)
	}

	return result, rows.Err()
}

// Upsert inserts or updates one row keyed by matchColumns. When an update
// changes a column that feeds a registered vector column, that row's vector
// is cleared and its provenance deleted in the same transaction.
func (s *SQLiteStorage) Upsert(ctx context.Context, table string, values map[string]interface{}, matchColumns []string) (*UpsertResult, error) {
	if len(values) == 0 {
		return nil, types.Errorf(types.KindInvalidConfiguration, "upsert into %q requires at least one value", table)
	}
	for _, m := range matchColumns {
		if _, ok := values[m]; !ok {
			return nil, types.Errorf(types.KindInvalidConfiguration, "match column %q has no value", m)
		}
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var result *UpsertResult
	err := s.withTx(ctx, func(q querier) error {
		cols, err := columns(ctx, q, table)
		if err != nil {
			return err
		}
		if err := RequireColumns(table, cols, names); err != nil {
			return err
		}
		for _, c := range cols {
			if _, ok := values[c.Name]; ok && c.IsVector {
				return types.Errorf(types.KindInvalidConfiguration, "column %q is a managed vector column", c.Name)
			}
		}

		rowID, current, err := findRow(ctx, q, table, names, matchColumns, values)
		if err != nil {
			return err
		}

		if rowID == 0 {
			id, err := insertRow(ctx, q, table, names, values)
			if err != nil {
				return err
			}
			result = &UpsertResult{RowID: id, Inserted: true, ChangedColumns: names}
			return nil
		}

		changed := make([]string, 0, len(names))
		for i, name := range names {
			if !valuesEqual(current[i], values[name]) {
				changed = append(changed, name)
			}
		}
		result = &UpsertResult{RowID: rowID, ChangedColumns: changed}
		if len(changed) == 0 {
			return nil
		}

		if err := updateRow(ctx, q, table, rowID, changed, values); err != nil {
			return err
		}

		invalidated, err := invalidateVectors(ctx, q, table, rowID, changed)
		if err != nil {
			return err
		}
		result.InvalidatedVectors = invalidated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// findRow locates the row matching matchColumns and returns its current values for names
func findRow(ctx context.Context, q querier, table string, names, matchColumns []string, values map[string]interface{}) (int64, []interface{}, error) {
	if len(matchColumns) == 0 {
		return 0, nil, nil
	}

	selected := make([]string, 0, len(names)+1)
	selected = append(selected, "rowid")
	for _, name := range names {
		selected = append(selected, quoteIdent(name))
	}
	where := make([]string, len(matchColumns))
	args := make([]interface{}, len(matchColumns))
	for i, m := range matchColumns {
		where[i] = quoteIdent(m) + " = ?"
		args[i] = values[m]
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY rowid LIMIT 1",
		strings.Join(selected, ", "), quoteIdent(table), strings.Join(where, " AND "))

	scanned := make([]interface{}, len(selected))
	ptrs := make([]interface{}, len(selected))
	for i := range scanned {
		ptrs[i] = &scanned[i]
	}
	err := q.QueryRowContext(ctx, query, args...).Scan(ptrs...)
	if err == sql.ErrNoRows {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to look up row in %s: %w", table, err)
	}

	id, ok := scanned[0].(int64)
	if !ok {
		return 0, nil, fmt.Errorf("table %s: unexpected rowid type %T", table, scanned[0])
	}
	return id, scanned[1:], nil
}

func insertRow(ctx context.Context, q querier, table string, names []string, values map[string]interface{}) (int64, error) {
	quoted := make([]string, len(names))
	placeholders := make([]string, len(names))
	args := make([]interface{}, len(names))
	for i, name := range names {
		quoted[i] = quoteIdent(name)
		placeholders[i] = "?"
		args[i] = values[name]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return res.LastInsertId()
}

func updateRow(ctx context.Context, q querier, table string, rowID int64, changed []string, values map[string]interface{}) error {
	sets := make([]string, len(changed))
	args := make([]interface{}, 0, len(changed)+1)
	for i, name := range changed {
		sets[i] = quoteIdent(name) + " = ?"
		args = append(args, values[name])
	}
	args = append(args, rowID)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE rowid = ?", quoteIdent(table), strings.Join(sets, ", "))
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	return nil
}

// invalidateVectors clears every vector column fed by one of the changed columns
func invalidateVectors(ctx context.Context, q querier, table string, rowID int64, changed []string) ([]string, error) {
	registered, err := listEmbeddingColumns(ctx, q, table)
	if err != nil {
		return nil, err
	}

	changedSet := make(map[string]bool, len(changed))
	for _, name := range changed {
		changedSet[name] = true
	}

	var invalidated []string
	for _, reg := range registered {
		affected := false
		for _, src := range reg.TextColumns {
			if changedSet[src] {
				affected = true
				break
			}
		}
		if !affected {
			continue
		}

		query := fmt.Sprintf("UPDATE %s SET %s = NULL WHERE rowid = ?", quoteIdent(table), quoteIdent(reg.VectorColumn))
		if _, err := q.ExecContext(ctx, query, rowID); err != nil {
			return nil, fmt.Errorf("failed to clear vector %s.%s: %w", table, reg.VectorColumn, err)
		}
		if err := deleteMeta(ctx, q, table, reg.VectorColumn, rowID); err != nil {
			return nil, err
		}
		invalidated = append(invalidated, reg.VectorColumn)
	}
	return invalidated, nil
}

// DeleteRow removes a row and the provenance of its vectors
func (s *SQLiteStorage) DeleteRow(ctx context.Context, table string, rowID int64) error {
	return s.withTx(ctx, func(q querier) error {
		exists, err := tableExists(ctx, q, table)
		if err != nil {
			return err
		}
		if !exists {
			return schemaError(ErrTableNotFound, "table %q does not exist", table)
		}

		res, err := q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE rowid = ?", quoteIdent(table)), rowID)
		if err != nil {
			return fmt.Errorf("failed to delete row %d of %s: %w", rowID, table, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		_, err = q.ExecContext(ctx, "DELETE FROM embedding_meta WHERE table_name = ? AND row_id = ?", table, rowID)
		if err != nil {
			return fmt.Errorf("failed to delete embedding meta: %w", err)
		}
		return nil
	})
}

// TextValue renders a column value as text for scoring and embedding
func TextValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}

// valuesEqual compares a stored value with a caller-supplied one.
// JSON callers send numbers as float64, so numbers compare numerically.
func valuesEqual(stored, incoming interface{}) bool {
	if stored == nil || incoming == nil {
		return stored == nil && incoming == nil
	}
	if a, ok := toFloat(stored); ok {
		if b, ok := toFloat(incoming); ok {
			return a == b
		}
	}
	return TextValue(stored) == TextValue(incoming)
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	case float64:
		return val, true
	case float32:
		return float64(val), true
	}
	return 0, false
}
