package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"queryset_registry/internal/broker"
	"queryset_registry/internal/models"
	"queryset_registry/internal/repositories"
)

type QuerysetService struct {
	store          repositories.Store
	authority      broker.Authority
	consistency    *ConsistencyService
	validateOnRead bool
	locks          *nameLocks
	logger         *zap.Logger
}

func NewQuerysetService(
	store repositories.Store,
	authority broker.Authority,
	consistency *ConsistencyService,
	validateOnRead bool,
	logger *zap.Logger,
) *QuerysetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuerysetService{
		store:          store,
		authority:      authority,
		consistency:    consistency,
		validateOnRead: validateOnRead,
		locks:          newNameLocks(),
		logger:         logger,
	}
}

type ColumnRef struct {
	Name string `json:"name" binding:"required"`
}

// Name is used as a single URL path segment, so it may not contain '/'.
type CreateQuerysetRequest struct {
	Name    string      `json:"name" binding:"required,excludes=/"`
	Table   string      `json:"table" binding:"required"`
	Columns []ColumnRef `json:"columns" binding:"dive"`
}

type UpdateQuerysetRequest struct {
	Columns []ColumnRef `json:"columns" binding:"required,dive"`
}

// columnSet collapses the requested columns into a sorted set of names.
func columnSet(refs []ColumnRef) []string {
	seen := make(map[string]struct{}, len(refs))
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref.Name]; ok {
			continue
		}
		seen[ref.Name] = struct{}{}
		names = append(names, ref.Name)
	}
	sort.Strings(names)
	return names
}

// CreateQueryset registers a new queryset after the broker confirms its
// table and every column. Nothing is written unless all of them exist.
func (s *QuerysetService) CreateQueryset(ctx context.Context, req *CreateQuerysetRequest) (*models.Queryset, error) {
	columns := columnSet(req.Columns)

	unlock := s.locks.Lock(req.Name)
	defer unlock()

	_, err := s.store.GetQueryset(ctx, req.Name)
	if err == nil {
		return nil, fmt.Errorf("%w: %s", ErrQuerysetExists, req.Name)
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up queryset %s: %w", req.Name, err)
	}

	tableExists, err := s.authority.TableExists(ctx, req.Table)
	if err != nil {
		return nil, err
	}
	if !tableExists {
		return nil, &InvalidReferenceError{Table: req.Table}
	}
	if err := s.admitColumns(ctx, req.Table, columns); err != nil {
		return nil, err
	}

	var created *models.Queryset
	err = s.store.WithTx(ctx, func(q repositories.Queries) error {
		if _, err := q.GetOrCreateTable(ctx, req.Table); err != nil {
			return err
		}

		ids, err := registerColumns(ctx, q, req.Table, columns)
		if err != nil {
			return err
		}

		created, err = q.CreateQueryset(ctx, req.Name, req.Table, ids)
		return err
	})
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, fmt.Errorf("%w: %s", ErrQuerysetExists, req.Name)
		}
		return nil, fmt.Errorf("failed to create queryset %s: %w", req.Name, err)
	}

	s.logger.Info("queryset created",
		zap.String("queryset", created.Name),
		zap.String("table", created.Table),
		zap.Int("columns", len(created.Columns)),
	)
	return created, nil
}

// UpdateQuerysetColumns replaces the queryset's column set. Columns that
// are not in the request are dropped from the queryset.
func (s *QuerysetService) UpdateQuerysetColumns(ctx context.Context, name string, req *UpdateQuerysetRequest) error {
	columns := columnSet(req.Columns)

	unlock := s.locks.Lock(name)
	defer unlock()

	qs, err := s.getQueryset(ctx, name)
	if err != nil {
		return err
	}

	if err := s.admitColumns(ctx, qs.Table, columns); err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(q repositories.Queries) error {
		ids, err := registerColumns(ctx, q, qs.Table, columns)
		if err != nil {
			return err
		}
		return q.UpdateQuerysetColumns(ctx, name, ids)
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrQuerysetNotFound, name)
		}
		return fmt.Errorf("failed to update queryset %s: %w", name, err)
	}

	s.logger.Info("queryset columns replaced", zap.String("queryset", name), zap.Int("columns", len(columns)))
	return nil
}

func (s *QuerysetService) DeleteQueryset(ctx context.Context, name string) error {
	unlock := s.locks.Lock(name)
	defer unlock()

	if err := s.store.DeleteQueryset(ctx, name); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrQuerysetNotFound, name)
		}
		return fmt.Errorf("failed to delete queryset %s: %w", name, err)
	}

	s.logger.Info("queryset deleted", zap.String("queryset", name))
	return nil
}

// GetQueryset returns the stored queryset. With validate-on-read enabled the
// queryset is repaired against the broker first.
func (s *QuerysetService) GetQueryset(ctx context.Context, name string) (*models.Queryset, error) {
	if !s.validateOnRead {
		return s.getQueryset(ctx, name)
	}

	unlock := s.locks.Lock(name)
	defer unlock()

	qs, err := s.getQueryset(ctx, name)
	if err != nil {
		return nil, err
	}

	outcome, err := s.consistency.Repair(ctx, qs)
	if err != nil {
		return nil, err
	}

	switch outcome.Action {
	case models.RepairQuerysetRemoved:
		return nil, fmt.Errorf("%w: %s", ErrQuerysetNotFound, name)
	case models.RepairColumnsPruned:
		return s.getQueryset(ctx, name)
	default:
		return qs, nil
	}
}

// ListQuerysets never consults the broker.
func (s *QuerysetService) ListQuerysets(ctx context.Context) ([]models.QuerysetSummary, error) {
	summaries, err := s.store.ListQuerysets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list querysets: %w", err)
	}
	return summaries, nil
}

func (s *QuerysetService) RepairQueryset(ctx context.Context, name string) (*models.RepairOutcome, error) {
	unlock := s.locks.Lock(name)
	defer unlock()

	qs, err := s.getQueryset(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.consistency.Repair(ctx, qs)
}

// ValidateQueryset reports whether the queryset is fully backed by the
// broker without changing anything.
func (s *QuerysetService) ValidateQueryset(ctx context.Context, name string) (bool, error) {
	qs, err := s.getQueryset(ctx, name)
	if err != nil {
		return false, err
	}
	return s.consistency.Validate(ctx, qs)
}

func (s *QuerysetService) ListTables(ctx context.Context) ([]models.Table, error) {
	tables, err := s.store.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}

func (s *QuerysetService) GetTable(ctx context.Context, name string) (*models.Table, error) {
	table, err := s.store.GetTable(ctx, name)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
		}
		return nil, fmt.Errorf("failed to get table %s: %w", name, err)
	}
	return table, nil
}

func (s *QuerysetService) getQueryset(ctx context.Context, name string) (*models.Queryset, error) {
	qs, err := s.store.GetQueryset(ctx, name)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrQuerysetNotFound, name)
		}
		return nil, fmt.Errorf("failed to get queryset %s: %w", name, err)
	}
	return qs, nil
}

// admitColumns asks the broker about each column in turn and rejects the
// first one it reports as absent.
func (s *QuerysetService) admitColumns(ctx context.Context, table string, columns []string) error {
	for _, column := range columns {
		exists, err := s.authority.ColumnExists(ctx, table, column)
		if err != nil {
			return err
		}
		if !exists {
			return &InvalidReferenceError{Table: table, Column: column}
		}
	}
	return nil
}

func registerColumns(ctx context.Context, q repositories.Queries, table string, columns []string) ([]int64, error) {
	ids := make([]int64, 0, len(columns))
	for _, name := range columns {
		col, err := q.GetOrCreateColumn(ctx, table, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, col.ID)
	}
	return ids, nil
}
