package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func RunMigrations(ctx context.Context, pool *pgxpool.Pool, log *zap.Logger) error {
	migrations := []string{
		createRegistryTablesTable,
		createRegistryColumnsTable,
		createQuerysetsTable,
		createQuerysetColumnsTable,
	}

	for i, migration := range migrations {
		log.Debug("running migration", zap.Int("step", i+1), zap.Int("total", len(migrations)))
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Info("migrations completed", zap.Int("count", len(migrations)))
	return nil
}

const createRegistryTablesTable = `
CREATE TABLE IF NOT EXISTS registry_tables (
  name TEXT PRIMARY KEY
);
`

const createRegistryColumnsTable = `
CREATE TABLE IF NOT EXISTS registry_columns (
  id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
  table_name TEXT NOT NULL REFERENCES registry_tables(name),
  name TEXT NOT NULL,
  UNIQUE (table_name, name)
);
`

const createQuerysetsTable = `
CREATE TABLE IF NOT EXISTS querysets (
  name TEXT PRIMARY KEY,
  table_name TEXT NOT NULL REFERENCES registry_tables(name),
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_querysets_table_name ON querysets(table_name);
`

const createQuerysetColumnsTable = `
CREATE TABLE IF NOT EXISTS queryset_columns (
  queryset_name TEXT NOT NULL REFERENCES querysets(name) ON DELETE CASCADE,
  column_id BIGINT NOT NULL REFERENCES registry_columns(id) ON DELETE CASCADE,
  PRIMARY KEY (queryset_name, column_id)
);

CREATE INDEX IF NOT EXISTS idx_queryset_columns_column_id ON queryset_columns(column_id);
`
