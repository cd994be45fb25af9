package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// InsertBatch writes rows into table as one native batch: every row is
// appended to a prepared INSERT inside a transaction and sent on Commit.
// Either all rows land or none do.
func InsertBatch(ctx context.Context, db *sql.DB, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch %s: %w", table, err)
	}
	stmt, err := tx.PrepareContext(ctx, InsertStatement(table, columns))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare batch %s: %w", table, err)
	}
	defer stmt.Close()

	for i, r := range rows {
		if len(r) != len(columns) {
			_ = tx.Rollback()
			return fmt.Errorf("batch %s row %d: %d values for %d columns", table, i, len(r), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, r...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append batch %s row %d: %w", table, i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("send batch %s: %w", table, err)
	}
	return nil
}

// InsertStatement renders the column-list INSERT the native batch expects.
func InsertStatement(table string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s)", table, strings.Join(columns, ", "))
}

// Placeholders returns n comma-separated bind markers for IN clauses.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
