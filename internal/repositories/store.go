package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"queryset_registry/internal/models"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrConflict            = errors.New("record already exists")
	ErrColumnTableMismatch = errors.New("column does not belong to the queryset's table")
)

// Queries are the metadata operations. Every mutating method is atomic on
// its own; Store.WithTx groups several of them into one transaction.
type Queries interface {
	GetTable(ctx context.Context, name string) (*models.Table, error)
	ListTables(ctx context.Context) ([]models.Table, error)
	GetOrCreateTable(ctx context.Context, name string) (*models.Table, error)
	// GetOrCreateColumn is idempotent on (table, name) and registers the
	// table when it is not known yet.
	GetOrCreateColumn(ctx context.Context, table, name string) (*models.Column, error)

	GetQueryset(ctx context.Context, name string) (*models.Queryset, error)
	ListQuerysets(ctx context.Context) ([]models.QuerysetSummary, error)
	CreateQueryset(ctx context.Context, name, table string, columnIDs []int64) (*models.Queryset, error)
	// UpdateQuerysetColumns replaces the whole column set.
	UpdateQuerysetColumns(ctx context.Context, name string, columnIDs []int64) error
	DeleteQueryset(ctx context.Context, name string) error

	// DeleteColumns removes the columns from the registry and from every
	// queryset that references them. Unknown ids are ignored.
	DeleteColumns(ctx context.Context, ids []int64) (int64, error)
}

type Store interface {
	Queries
	WithTx(ctx context.Context, fn func(q Queries) error) error
	Close()
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// verifyMembership checks that every id was found and belongs to table.
func verifyMembership(table string, ids []int64, found []models.Column) error {
	byID := make(map[int64]models.Column, len(found))
	for _, col := range found {
		byID[col.ID] = col
	}
	for _, id := range ids {
		col, ok := byID[id]
		if !ok {
			return fmt.Errorf("column %d: %w", id, ErrNotFound)
		}
		if col.Table != table {
			return fmt.Errorf("column %s belongs to %s, not %s: %w", col.Name, col.Table, table, ErrColumnTableMismatch)
		}
	}
	return nil
}
