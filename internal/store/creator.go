package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MaxReportedErrors caps the per-item error lines of one submission.
const MaxReportedErrors = 50

// uniqueViolation is the SQLSTATE of a unique constraint violation.
const uniqueViolation = "23505"

// Table describes how items of type T are stored.
type Table[T any] struct {
	Name    string
	Columns []string
	Values  func(item T) []any // One value per column, in column order
}

// insertSQL returns the parameterized insert statement for the table.
func (t Table[T]) insertSQL() string {
	cols := make([]string, len(t.Columns))
	params := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = pgx.Identifier{c}.Sanitize()
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id::text",
		pgx.Identifier{t.Name}.Sanitize(),
		strings.Join(cols, ", "),
		strings.Join(params, ", "),
	)
}

// TableCreator inserts items into a table inside one transaction. Each item
// runs under its own savepoint, so a failing item does not abort the others.
// Items rejected by a unique constraint are counted as skipped.
type TableCreator[T any] struct {
	db    core.TxBeginner
	table Table[T]
	sql   string
}

var _ core.BulkCreator[struct{}] = (*TableCreator[struct{}])(nil)

// NewTableCreator returns a creator for table.
func NewTableCreator[T any](db core.TxBeginner, table Table[T]) *TableCreator[T] {
	return &TableCreator[T]{db: db, table: table, sql: table.insertSQL()}
}

// BulkCreate implements core.BulkCreator.
func (c *TableCreator[T]) BulkCreate(ctx context.Context, items []T) (*core.BulkImportResult, error) {
	result := &core.BulkImportResult{
		TotalProcessed: len(items),
		Errors:         []string{},
	}

	tx, err := c.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, item := range items {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		savepointName := fmt.Sprintf("sp_%d", i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+savepointName); err != nil {
			return nil, fmt.Errorf("create savepoint: %w", err)
		}

		values := c.table.Values(item)
		if len(values) != len(c.table.Columns) {
			_, _ = tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepointName)
			result.FailedCount++
			c.report(result, i, fmt.Errorf("expected %d values, got %d", len(c.table.Columns), len(values)))
			continue
		}

		var id string
		if err := tx.QueryRow(ctx, c.sql, values...).Scan(&id); err != nil {
			_, _ = tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepointName)

			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				result.SkippedCount++
				c.report(result, i, fmt.Errorf("already exists (%s)", pgErr.ConstraintName))
				continue
			}
			result.FailedCount++
			c.report(result, i, err)
			continue
		}

		_, _ = tx.Exec(ctx, "RELEASE SAVEPOINT "+savepointName)
		result.SuccessCount++
		result.ImportedItems = append(result.ImportedItems, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return result, nil
}

func (c *TableCreator[T]) report(result *core.BulkImportResult, index int, err error) {
	if len(result.Errors) >= MaxReportedErrors {
		return
	}
	result.Errors = append(result.Errors, fmt.Sprintf("%s item %d: %v", c.table.Name, index+1, err))
}
