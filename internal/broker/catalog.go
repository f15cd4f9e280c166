package broker

import (
	"context"

	"queryset_registry/internal/repositories"
)

// CatalogAuthority answers existence questions straight from the broker
// database's information_schema.
type CatalogAuthority struct {
	schemaRepo *repositories.SchemaRepository
}

func NewCatalogAuthority(schemaRepo *repositories.SchemaRepository) *CatalogAuthority {
	return &CatalogAuthority{schemaRepo: schemaRepo}
}

func (a *CatalogAuthority) TableExists(ctx context.Context, table string) (bool, error) {
	exists, err := a.schemaRepo.TableExists(ctx, table)
	if err != nil {
		return false, indeterminate(table, "", err)
	}
	return exists, nil
}

func (a *CatalogAuthority) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	exists, err := a.schemaRepo.ColumnExists(ctx, table, column)
	if err != nil {
		return false, indeterminate(table, column, err)
	}
	return exists, nil
}
