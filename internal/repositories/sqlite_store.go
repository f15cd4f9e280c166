package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"queryset_registry/internal/models"
)

type tableRecord struct {
	Name string `gorm:"primaryKey;column:name"`
}

func (tableRecord) TableName() string { return "registry_tables" }

type columnRecord struct {
	ID    int64  `gorm:"primaryKey;autoIncrement;column:id"`
	Table string `gorm:"column:table_name;not null;uniqueIndex:idx_registry_columns_table_name"`
	Name  string `gorm:"column:name;not null;uniqueIndex:idx_registry_columns_table_name"`
}

func (columnRecord) TableName() string { return "registry_columns" }

func (r columnRecord) model() models.Column {
	return models.Column{ID: r.ID, Table: r.Table, Name: r.Name}
}

type querysetRecord struct {
	Name      string    `gorm:"primaryKey;column:name"`
	Table     string    `gorm:"column:table_name;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (querysetRecord) TableName() string { return "querysets" }

type querysetColumnRecord struct {
	QuerysetName string `gorm:"primaryKey;column:queryset_name"`
	ColumnID     int64  `gorm:"primaryKey;column:column_id;index"`
}

func (querysetColumnRecord) TableName() string { return "queryset_columns" }

// SQLiteStore keeps the registry in a SQLite file through gorm. Association
// rows are maintained explicitly instead of relying on cascading deletes.
type SQLiteStore struct {
	*sqliteQueries
	db *gorm.DB
}

func NewSQLiteStore(db *gorm.DB) (*SQLiteStore, error) {
	err := db.AutoMigrate(&tableRecord{}, &columnRecord{}, &querysetRecord{}, &querysetColumnRecord{})
	if err != nil {
		return nil, fmt.Errorf("failed to migrate sqlite store: %w", err)
	}
	return &SQLiteStore{
		sqliteQueries: &sqliteQueries{db: db},
		db:            db,
	}, nil
}

func (s *SQLiteStore) Close() {
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}

type sqliteQueries struct {
	db *gorm.DB
}

func (q *sqliteQueries) WithTx(ctx context.Context, fn func(q Queries) error) error {
	return q.inTx(ctx, func(tq *sqliteQueries) error {
		return fn(tq)
	})
}

func (q *sqliteQueries) inTx(ctx context.Context, fn func(tq *sqliteQueries) error) error {
	return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&sqliteQueries{db: tx})
	})
}

func (q *sqliteQueries) GetTable(ctx context.Context, name string) (*models.Table, error) {
	var rec tableRecord
	if err := q.db.WithContext(ctx).Where("name = ?", name).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("table %s: %w", name, ErrNotFound)
		}
		return nil, err
	}

	var cols []columnRecord
	if err := q.db.WithContext(ctx).Where("table_name = ?", name).Order("name").Find(&cols).Error; err != nil {
		return nil, err
	}

	return &models.Table{Name: rec.Name, Columns: toColumns(cols)}, nil
}

func (q *sqliteQueries) ListTables(ctx context.Context) ([]models.Table, error) {
	var recs []tableRecord
	if err := q.db.WithContext(ctx).Order("name").Find(&recs).Error; err != nil {
		return nil, err
	}

	var cols []columnRecord
	if err := q.db.WithContext(ctx).Order("table_name, name").Find(&cols).Error; err != nil {
		return nil, err
	}

	byTable := make(map[string][]models.Column)
	for _, col := range cols {
		byTable[col.Table] = append(byTable[col.Table], col.model())
	}

	tables := make([]models.Table, 0, len(recs))
	for _, rec := range recs {
		columns := byTable[rec.Name]
		if columns == nil {
			columns = []models.Column{}
		}
		tables = append(tables, models.Table{Name: rec.Name, Columns: columns})
	}
	return tables, nil
}

func (q *sqliteQueries) GetOrCreateTable(ctx context.Context, name string) (*models.Table, error) {
	if err := q.ensureTable(ctx, name); err != nil {
		return nil, err
	}
	return q.GetTable(ctx, name)
}

func (q *sqliteQueries) ensureTable(ctx context.Context, name string) error {
	rec := tableRecord{Name: name}
	err := q.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to register table %s: %w", name, err)
	}
	return nil
}

func (q *sqliteQueries) GetOrCreateColumn(ctx context.Context, table, name string) (*models.Column, error) {
	var rec columnRecord
	err := q.inTx(ctx, func(tq *sqliteQueries) error {
		if err := tq.ensureTable(ctx, table); err != nil {
			return err
		}
		err := tq.db.WithContext(ctx).
			Where(columnRecord{Table: table, Name: name}).
			FirstOrCreate(&rec).Error
		if err != nil {
			return fmt.Errorf("failed to register column %s.%s: %w", table, name, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	col := rec.model()
	return &col, nil
}

func (q *sqliteQueries) GetQueryset(ctx context.Context, name string) (*models.Queryset, error) {
	var rec querysetRecord
	if err := q.db.WithContext(ctx).Where("name = ?", name).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("queryset %s: %w", name, ErrNotFound)
		}
		return nil, err
	}

	var cols []columnRecord
	err := q.db.WithContext(ctx).
		Table("registry_columns AS c").
		Select("c.id, c.table_name, c.name").
		Joins("JOIN queryset_columns qc ON qc.column_id = c.id").
		Where("qc.queryset_name = ?", name).
		Order("c.name").
		Scan(&cols).Error
	if err != nil {
		return nil, err
	}

	return &models.Queryset{
		Name:      rec.Name,
		Table:     rec.Table,
		Columns:   toColumns(cols),
		CreatedAt: rec.CreatedAt,
	}, nil
}

func (q *sqliteQueries) ListQuerysets(ctx context.Context) ([]models.QuerysetSummary, error) {
	var rows []struct {
		Name        string
		TableName   string
		ColumnCount int
	}
	err := q.db.WithContext(ctx).
		Table("querysets AS q").
		Select("q.name AS name, q.table_name AS table_name, COUNT(qc.column_id) AS column_count").
		Joins("LEFT JOIN queryset_columns qc ON qc.queryset_name = q.name").
		Group("q.name, q.table_name").
		Order("q.name").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]models.QuerysetSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, models.QuerysetSummary{
			Name:        row.Name,
			Table:       row.TableName,
			ColumnCount: row.ColumnCount,
		})
	}
	return summaries, nil
}

func (q *sqliteQueries) CreateQueryset(ctx context.Context, name, table string, columnIDs []int64) (*models.Queryset, error) {
	ids := uniqueIDs(columnIDs)

	err := q.inTx(ctx, func(tq *sqliteQueries) error {
		if _, err := tq.GetTable(ctx, table); err != nil {
			return err
		}
		if err := tq.checkMembership(ctx, table, ids); err != nil {
			return err
		}

		var count int64
		if err := tq.db.WithContext(ctx).Model(&querysetRecord{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("queryset %s: %w", name, ErrConflict)
		}

		if err := tq.db.WithContext(ctx).Create(&querysetRecord{Name: name, Table: table}).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("queryset %s: %w", name, ErrConflict)
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

func (q *sqliteQueries) UpdateQuerysetColumns(ctx context.Context, name string, columnIDs []int64) error {
	ids := uniqueIDs(columnIDs)

	return q.inTx(ctx, func(tq *sqliteQueries) error {
		var rec querysetRecord
		if err := tq.db.WithContext(ctx).Where("name = ?", name).First(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("queryset %s: %w", name, ErrNotFound)
			}
			return err
		}

		if err := tq.checkMembership(ctx, rec.Table, ids); err != nil {
			return err
		}

		if err := tq.db.WithContext(ctx).Where("queryset_name = ?", name).Delete(&querysetColumnRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear columns of queryset %s: %w", name, err)
		}

		return tq.insertColumns(ctx, name, ids)
	})
}

func (q *sqliteQueries) DeleteQueryset(ctx context.Context, name string) error {
	return q.inTx(ctx, func(tq *sqliteQueries) error {
		if err := tq.db.WithContext(ctx).Where("queryset_name = ?", name).Delete(&querysetColumnRecord{}).Error; err != nil {
			return fmt.Errorf("failed to detach columns of queryset %s: %w", name, err)
		}

		result := tq.db.WithContext(ctx).Where("name = ?", name).Delete(&querysetRecord{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete queryset %s: %w", name, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("queryset %s: %w", name, ErrNotFound)
		}
		return nil
	})
}

func (q *sqliteQueries) DeleteColumns(ctx context.Context, ids []int64) (int64, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	err := q.inTx(ctx, func(tq *sqliteQueries) error {
		if err := tq.db.WithContext(ctx).Where("column_id IN ?", ids).Delete(&querysetColumnRecord{}).Error; err != nil {
			return fmt.Errorf("failed to detach columns: %w", err)
		}

		result := tq.db.WithContext(ctx).Where("id IN ?", ids).Delete(&columnRecord{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete columns: %w", result.Error)
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (q *sqliteQueries) insertColumns(ctx context.Context, name string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	recs := make([]querysetColumnRecord, 0, len(ids))
	for _, id := range ids {
		recs = append(recs, querysetColumnRecord{QuerysetName: name, ColumnID: id})
	}
	if err := q.db.WithContext(ctx).Create(&recs).Error; err != nil {
		return fmt.Errorf("failed to attach columns to queryset %s: %w", name, err)
	}
	return nil
}

func (q *sqliteQueries) checkMembership(ctx context.Context, table string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	var cols []columnRecord
	if err := q.db.WithContext(ctx).Where("id IN ?", ids).Find(&cols).Error; err != nil {
		return err
	}
	return verifyMembership(table, ids, toColumns(cols))
}

func toColumns(recs []columnRecord) []models.Column {
	columns := make([]models.Column, 0, len(recs))
	for _, rec := range recs {
		columns = append(columns, rec.model())
	}
	return columns
}
