package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	presenceExists = "1"
	presenceAbsent = "0"
)

// RedisRepository stores broker existence answers under expiring keys.
type RedisRepository struct {
	rdb *redis.Client
}

func NewRedisRepository(rdb *redis.Client) *RedisRepository {
	return &RedisRepository{rdb: rdb}
}

// GetPresence returns the cached answer for key. found is false on a miss.
func (r *RedisRepository) GetPresence(ctx context.Context, key string) (exists bool, found bool, err error) {
	val, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, false, nil
		}
		return false, false, err
	}
	return val == presenceExists, true, nil
}

func (r *RedisRepository) SetPresence(ctx context.Context, key string, exists bool, ttl time.Duration) error {
	val := presenceAbsent
	if exists {
		val = presenceExists
	}
	return r.rdb.Set(ctx, key, val, ttl).Err()
}
