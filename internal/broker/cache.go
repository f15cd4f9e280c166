package broker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"queryset_registry/internal/repositories"
)

// CachedAuthority remembers positive answers from another Authority for a
// limited time. Absence is always asked of the wrapped authority, since an
// absent answer leads to deletion. Failed lookups are never cached, and a
// broken cache only costs a trip to the wrapped authority.
type CachedAuthority struct {
	inner  Authority
	cache  *repositories.RedisRepository
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedAuthority(inner Authority, cache *repositories.RedisRepository, ttl time.Duration, logger *zap.Logger) *CachedAuthority {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedAuthority{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

func tableKey(table string) string {
	return fmt.Sprintf("broker:table:%s", table)
}

// The table name is length-prefixed so that names containing ':' cannot collide.
func columnKey(table, column string) string {
	return fmt.Sprintf("broker:column:%d:%s:%s", len(table), table, column)
}

func (a *CachedAuthority) TableExists(ctx context.Context, table string) (bool, error) {
	return a.lookup(ctx, tableKey(table), func() (bool, error) {
		return a.inner.TableExists(ctx, table)
	})
}

func (a *CachedAuthority) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	return a.lookup(ctx, columnKey(table, column), func() (bool, error) {
		return a.inner.ColumnExists(ctx, table, column)
	})
}

func (a *CachedAuthority) lookup(ctx context.Context, key string, fetch func() (bool, error)) (bool, error) {
	exists, found, err := a.cache.GetPresence(ctx, key)
	if err != nil {
		a.logger.Warn("existence cache read failed", zap.String("key", key), zap.Error(err))
	} else if found && exists {
		return true, nil
	}

	exists, err = fetch()
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	if err := a.cache.SetPresence(ctx, key, true, a.ttl); err != nil {
		a.logger.Warn("existence cache write failed", zap.String("key", key), zap.Error(err))
	}
	return exists, nil
}
