package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// RowQuerier is the subset of pgxpool.Pool used for catalog lookups.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SchemaRepository reads the broker database's information_schema.
type SchemaRepository struct {
	pool   RowQuerier
	schema string
}

func NewSchemaRepository(pool RowQuerier, schema string) *SchemaRepository {
	if schema == "" {
		schema = "public"
	}
	return &SchemaRepository{pool: pool, schema: schema}
}

// TableExists reports whether a base table or view with the given name exists in the schema
func (r *SchemaRepository) TableExists(ctx context.Context, table string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.tables
			WHERE table_schema = $1
			AND table_name = $2
			AND table_type IN ('BASE TABLE', 'VIEW')
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, r.schema, table).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check table %s.%s: %w", r.schema, table, err)
	}
	return exists, nil
}

// ColumnExists reports whether the column exists on the table
func (r *SchemaRepository) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.columns
			WHERE table_schema = $1
			AND table_name = $2
			AND column_name = $3
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, r.schema, table, column).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check column %s.%s.%s: %w", r.schema, table, column, err)
	}
	return exists, nil
}
