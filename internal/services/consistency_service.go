package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"queryset_registry/internal/broker"
	"queryset_registry/internal/models"
	"queryset_registry/internal/repositories"
)

var errColumnAbsent = errors.New("column absent")

// ConsistencyService checks querysets against the broker and prunes
// references the broker no longer knows about. Absence always means
// deletion; renamed tables or columns are not followed.
type ConsistencyService struct {
	store       repositories.Store
	authority   broker.Authority
	concurrency int
	logger      *zap.Logger
}

// NewConsistencyService creates a ConsistencyService. concurrency bounds the
// number of column checks in flight; 1 checks columns one by one.
func NewConsistencyService(
	store repositories.Store,
	authority broker.Authority,
	concurrency int,
	logger *zap.Logger,
) *ConsistencyService {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsistencyService{
		store:       store,
		authority:   authority,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Validate reports whether the queryset's table and every one of its columns
// exist in the broker. It never writes to the store.
func (s *ConsistencyService) Validate(ctx context.Context, qs *models.Queryset) (bool, error) {
	exists, err := s.authority.TableExists(ctx, qs.Table)
	if err != nil {
		return false, fmt.Errorf("failed to validate queryset %s: %w", qs.Name, err)
	}
	if !exists {
		return false, nil
	}

	absent, err := s.absentColumns(ctx, qs.Table, qs.Columns, true)
	if err != nil {
		return false, fmt.Errorf("failed to validate queryset %s: %w", qs.Name, err)
	}
	return len(absent) == 0, nil
}

// Repair brings the store in line with the broker for one queryset. A
// missing table removes the whole queryset; missing columns are deleted
// from the registry, and with them from every queryset that uses them.
// Every broker answer is collected before anything is written, so an
// indeterminate answer leaves the store untouched.
func (s *ConsistencyService) Repair(ctx context.Context, qs *models.Queryset) (*models.RepairOutcome, error) {
	exists, err := s.authority.TableExists(ctx, qs.Table)
	if err != nil {
		return nil, fmt.Errorf("failed to repair queryset %s: %w", qs.Name, err)
	}

	if !exists {
		if err := s.store.DeleteQueryset(ctx, qs.Name); err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("failed to remove queryset %s: %w", qs.Name, err)
		}
		s.logger.Info("removed queryset whose table left the broker",
			zap.String("queryset", qs.Name),
			zap.String("table", qs.Table),
		)
		return &models.RepairOutcome{
			Queryset:       qs.Name,
			Action:         models.RepairQuerysetRemoved,
			RemovedColumns: []string{},
		}, nil
	}

	absent, err := s.absentColumns(ctx, qs.Table, qs.Columns, false)
	if err != nil {
		return nil, fmt.Errorf("failed to repair queryset %s: %w", qs.Name, err)
	}

	if len(absent) == 0 {
		return &models.RepairOutcome{
			Queryset:       qs.Name,
			Action:         models.RepairNoChanges,
			RemovedColumns: []string{},
		}, nil
	}

	if _, err := s.store.DeleteColumns(ctx, models.ColumnIDs(absent)); err != nil {
		return nil, fmt.Errorf("failed to prune columns of queryset %s: %w", qs.Name, err)
	}

	removed := models.ColumnNames(absent)
	sort.Strings(removed)

	s.logger.Info("pruned columns missing from the broker",
		zap.String("queryset", qs.Name),
		zap.String("table", qs.Table),
		zap.Strings("columns", removed),
	)

	return &models.RepairOutcome{
		Queryset:       qs.Name,
		Action:         models.RepairColumnsPruned,
		RemovedColumns: removed,
	}, nil
}

// absentColumns returns the columns the broker reports as missing. With
// stopEarly set it returns as soon as one missing column is known, so the
// result is only good for a yes/no answer.
func (s *ConsistencyService) absentColumns(ctx context.Context, table string, columns []models.Column, stopEarly bool) ([]models.Column, error) {
	if s.concurrency == 1 || len(columns) < 2 {
		var absent []models.Column
		for _, col := range columns {
			exists, err := s.authority.ColumnExists(ctx, table, col.Name)
			if err != nil {
				s.logger.Warn("broker column lookup failed",
					zap.String("table", table),
					zap.String("column", col.Name),
					zap.Error(err),
				)
				return nil, err
			}
			if !exists {
				absent = append(absent, col)
				if stopEarly {
					break
				}
			}
		}
		return absent, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	missing := make([]bool, len(columns))
	for i, col := range columns {
		g.Go(func() error {
			exists, err := s.authority.ColumnExists(gctx, table, col.Name)
			if err != nil {
				return err
			}
			if !exists {
				missing[i] = true
				if stopEarly {
					return errColumnAbsent
				}
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, errColumnAbsent) {
		s.logger.Warn("broker column lookup failed", zap.String("table", table), zap.Error(err))
		return nil, err
	}

	var absent []models.Column
	for i, col := range columns {
		if missing[i] {
			absent = append(absent, col)
		}
	}
	return absent, nil
}
