package repositories

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"queryset_registry/internal/models"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PostgresStore struct {
	*pgQueries
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pgQueries: &pgQueries{db: pool},
		pool:      pool,
	}
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

type pgQueries struct {
	db dbtx
}

func isSQLState(err error, states ...string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && slices.Contains(states, pgErr.Code)
}

// WithTx runs fn in a transaction, or in a savepoint when already inside one.
func (q *pgQueries) WithTx(ctx context.Context, fn func(q Queries) error) error {
	return q.inTx(ctx, func(tq *pgQueries) error {
		return fn(tq)
	})
}

func (q *pgQueries) inTx(ctx context.Context, fn func(tq *pgQueries) error) error {
	tx, err := q.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgQueries{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (q *pgQueries) GetTable(ctx context.Context, name string) (*models.Table, error) {
	var table models.Table
	err := q.db.QueryRow(ctx, `SELECT name FROM registry_tables WHERE name = $1`, name).Scan(&table.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("table %s: %w", name, ErrNotFound)
		}
		return nil, err
	}

	columns, err := q.queryColumns(ctx, `
		SELECT id, table_name, name
		FROM registry_columns
		WHERE table_name = $1
		ORDER BY name
	`, name)
	if err != nil {
		return nil, err
	}
	table.Columns = columns

	return &table, nil
}

func (q *pgQueries) ListTables(ctx context.Context) ([]models.Table, error) {
	rows, err := q.db.Query(ctx, `SELECT name FROM registry_tables ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []models.Table{}
	index := make(map[string]int)
	for rows.Next() {
		var table models.Table
		if err := rows.Scan(&table.Name); err != nil {
			return nil, err
		}
		table.Columns = []models.Column{}
		index[table.Name] = len(tables)
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	columns, err := q.queryColumns(ctx, `
		SELECT id, table_name, name
		FROM registry_columns
		ORDER BY table_name, name
	`)
	if err != nil {
		return nil, err
	}
	for _, col := range columns {
		if i, ok := index[col.Table]; ok {
			tables[i].Columns = append(tables[i].Columns, col)
		}
	}

	return tables, nil
}

func (q *pgQueries) GetOrCreateTable(ctx context.Context, name string) (*models.Table, error) {
	if err := q.ensureTable(ctx, name); err != nil {
		return nil, err
	}
	return q.GetTable(ctx, name)
}

func (q *pgQueries) ensureTable(ctx context.Context, name string) error {
	query := `INSERT INTO registry_tables (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`
	if _, err := q.db.Exec(ctx, query, name); err != nil {
		return fmt.Errorf("failed to register table %s: %w", name, err)
	}
	return nil
}

func (q *pgQueries) GetOrCreateColumn(ctx context.Context, table, name string) (*models.Column, error) {
	var column models.Column
	err := q.inTx(ctx, func(tq *pgQueries) error {
		if err := tq.ensureTable(ctx, table); err != nil {
			return err
		}

		insert := `
			INSERT INTO registry_columns (table_name, name)
			VALUES ($1, $2)
			ON CONFLICT (table_name, name) DO NOTHING
		`
		if _, err := tq.db.Exec(ctx, insert, table, name); err != nil {
			return fmt.Errorf("failed to register column %s.%s: %w", table, name, err)
		}

		return tq.db.QueryRow(ctx, `
			SELECT id, table_name, name
			FROM registry_columns
			WHERE table_name = $1 AND name = $2
		`, table, name).Scan(&column.ID, &column.Table, &column.Name)
	})
	if err != nil {
		return nil, err
	}
	return &column, nil
}

func (q *pgQueries) GetQueryset(ctx context.Context, name string) (*models.Queryset, error) {
	var qs models.Queryset
	err := q.db.QueryRow(ctx, `
		SELECT name, table_name, created_at
		FROM querysets WHERE name = $1
	`, name).Scan(&qs.Name, &qs.Table, &qs.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("queryset %s: %w", name, ErrNotFound)
		}
		return nil, err
	}

	columns, err := q.queryColumns(ctx, `
		SELECT c.id, c.table_name, c.name
		FROM queryset_columns qc
		JOIN registry_columns c ON c.id = qc.column_id
		WHERE qc.queryset_name = $1
		ORDER BY c.name
	`, name)
	if err != nil {
		return nil, err
	}
	qs.Columns = columns

	return &qs, nil
}

func (q *pgQueries) ListQuerysets(ctx context.Context) ([]models.QuerysetSummary, error) {
	rows, err := q.db.Query(ctx, `
		SELECT q.name, q.table_name, COUNT(qc.column_id)
		FROM querysets q
		LEFT JOIN queryset_columns qc ON qc.queryset_name = q.name
		GROUP BY q.name, q.table_name
		ORDER BY q.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []models.QuerysetSummary{}
	for rows.Next() {
		var s models.QuerysetSummary
		if err := rows.Scan(&s.Name, &s.Table, &s.ColumnCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

func (q *pgQueries) CreateQueryset(ctx context.Context, name, table string, columnIDs []int64) (*models.Queryset, error) {
	ids := uniqueIDs(columnIDs)

	err := q.inTx(ctx, func(tq *pgQueries) error {
		if err := tq.checkMembership(ctx, table, ids); err != nil {
			return err
		}

		_, err := tq.db.Exec(ctx, `INSERT INTO querysets (name, table_name) VALUES ($1, $2)`, name, table)
		if err != nil {
			switch {
			case isSQLState(err, pgerrcode.UniqueViolation):
				return fmt.Errorf("queryset %s: %w", name, ErrConflict)
			case isSQLState(err, pgerrcode.ForeignKeyViolation):
				return fmt.Errorf("table %s: %w", table, ErrNotFound)
			}
			return fmt.Errorf("failed to insert queryset %s: %w", name, err)
		}

		return tq.insertColumns(ctx, name, ids)
	})
	if err != nil {
		return nil, err
	}

	return q.GetQueryset(ctx, name)
}

func (q *pgQueries) UpdateQuerysetColumns(ctx context.Context, name string, columnIDs []int64) error {
	ids := uniqueIDs(columnIDs)

	return q.inTx(ctx, func(tq *pgQueries) error {
		var table string
		err := tq.db.QueryRow(ctx, `SELECT table_name FROM querysets WHERE name = $1 FOR UPDATE`, name).Scan(&table)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("queryset %s: %w", name, ErrNotFound)
			}
			return err
		}

		if err := tq.checkMembership(ctx, table, ids); err != nil {
			return err
		}

		if _, err := tq.db.Exec(ctx, `DELETE FROM queryset_columns WHERE queryset_name = $1`, name); err != nil {
			return fmt.Errorf("failed to clear columns of queryset %s: %w", name, err)
		}

		return tq.insertColumns(ctx, name, ids)
	})
}

func (q *pgQueries) DeleteQueryset(ctx context.Context, name string) error {
	result, err := q.db.Exec(ctx, `DELETE FROM querysets WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete queryset %s: %w", name, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("queryset %s: %w", name, ErrNotFound)
	}
	return nil
}

func (q *pgQueries) DeleteColumns(ctx context.Context, ids []int64) (int64, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := q.db.Exec(ctx, `DELETE FROM registry_columns WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete columns: %w", err)
	}
	return result.RowsAffected(), nil
}

func (q *pgQueries) insertColumns(ctx context.Context, name string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
		INSERT INTO queryset_columns (queryset_name, column_id)
		SELECT $1, unnest($2::bigint[])
	`
	if _, err := q.db.Exec(ctx, query, name, ids); err != nil {
		return fmt.Errorf("failed to attach columns to queryset %s: %w", name, err)
	}
	return nil
}

func (q *pgQueries) checkMembership(ctx context.Context, table string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	columns, err := q.queryColumns(ctx, `
		SELECT id, table_name, name
		FROM registry_columns
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return err
	}

	return verifyMembership(table, ids, columns)
}

func (q *pgQueries) queryColumns(ctx context.Context, query string, args ...any) ([]models.Column, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := []models.Column{}
	for rows.Next() {
		var col models.Column
		if err := rows.Scan(&col.ID, &col.Table, &col.Name); err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}

	return columns, rows.Err()
}
