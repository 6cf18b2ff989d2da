package tabular

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Pure-Go SQLite driver backing the ephemeral per-call store.
	_ "modernc.org/sqlite"
)

// QueryTableName is the single table exposed to incoming queries.
const QueryTableName = "csv_data"

// Result is the outcome of one Query call.
type Result struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// Query executes a read-only SQL statement against the file at path.
//
// The file's rows are materialized into a fresh in-memory SQLite database
// scoped to this call: one table named csv_data with every column typed TEXT.
// The store is torn down unconditionally when the call returns. Any reference
// to datasetName in the query is rewritten to csv_data (a single
// case-insensitive substitution), so the model may address the dataset by its
// original name.
//
// Only SELECT-class statements are accepted; anything else fails with
// ErrUnsafeQuery before the store is created. Numeric comparisons require
// explicit casts since every column is TEXT.
func (e *Engine) Query(ctx context.Context, path, datasetName, query string) (*Result, error) {
	if err := checkReadOnly(query); err != nil {
		return nil, err
	}

	table, err := e.Parse(path, ParseOptions{})
	if err != nil {
		return nil, err
	}
	if len(table.Columns) == 0 {
		return nil, fmt.Errorf("%w: no columns", ErrParse)
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening ephemeral store: %w", err)
	}
	defer db.Close()

	if err := loadTable(ctx, db, table); err != nil {
		return nil, err
	}

	rewritten := rewriteTableRef(query, datasetName)
	e.logger.Debug("executing query", "dataset", datasetName, "rows", len(table.Rows))

	rows, err := db.QueryContext(ctx, rewritten)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	return collectResult(rows)
}

// checkReadOnly rejects anything but SELECT-class statements.
// The check runs before any store exists, so DDL/DML never touches data.
func checkReadOnly(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return fmt.Errorf("%w: empty query", ErrUnsafeQuery)
	}
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return fmt.Errorf("%w: only SELECT statements are allowed", ErrUnsafeQuery)
	}
	return nil
}

// rewriteTableRef substitutes the first case-insensitive occurrence of
// datasetName (or its name without the file extension) with QueryTableName.
func rewriteTableRef(query, datasetName string) string {
	for _, name := range candidateNames(datasetName) {
		lower := strings.ToLower(query)
		idx := strings.Index(lower, strings.ToLower(name))
		if idx >= 0 {
			return query[:idx] + QueryTableName + query[idx+len(name):]
		}
	}
	return query
}

// candidateNames lists the dataset spellings worth rewriting, longest first
// so "sales.csv" wins over "sales".
func candidateNames(datasetName string) []string {
	datasetName = strings.TrimSpace(datasetName)
	if datasetName == "" || strings.EqualFold(datasetName, QueryTableName) {
		return nil
	}
	names := []string{datasetName}
	if dot := strings.LastIndex(datasetName, "."); dot > 0 {
		names = append(names, datasetName[:dot])
	}
	return names
}

// quoteIdent quotes a column or table identifier for SQLite, letting headers
// contain spaces and punctuation.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// loadTable creates the csv_data table (all columns TEXT) and inserts every row.
func loadTable(ctx context.Context, db *sql.DB, table *Table) error {
	cols := make([]string, len(table.Columns))
	placeholders := make([]string, len(table.Columns))
	for i, name := range table.Columns {
		cols[i] = quoteIdent(name) + " TEXT"
		placeholders[i] = "?"
	}

	createStmt := fmt.Sprintf("CREATE TABLE %s (%s)", QueryTableName, strings.Join(cols, ", "))
	if _, err := db.ExecContext(ctx, createStmt); err != nil {
		return fmt.Errorf("creating ephemeral table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	quoted := make([]string, len(table.Columns))
	for i, name := range table.Columns {
		quoted[i] = quoteIdent(name)
	}
	insertStmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		QueryTableName, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	stmt, err := tx.PrepareContext(ctx, insertStmt)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(table.Columns))
	for _, row := range table.Rows {
		for i, name := range table.Columns {
			args[i] = row[name]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("inserting row: %w", err)
		}
	}

	return tx.Commit()
}

// collectResult drains rows into maps keyed by result column name.
func collectResult(rows *sql.Rows) (*Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading result columns: %w", err)
	}

	result := &Result{Columns: columns, Rows: []map[string]any{}}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, name := range columns {
			switch v := values[i].(type) {
			case []byte:
				row[name] = string(v)
			default:
				row[name] = v
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating result rows: %w", err)
	}

	result.RowCount = len(result.Rows)
	return result, nil
}
