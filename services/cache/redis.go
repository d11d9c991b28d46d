package cachesvc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/attendance"
)

const scanBatch = 200

// NewRedisClient connects to the configured redis server.
func NewRedisClient(ctx context.Context, conf core.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
		PoolSize: conf.PoolSize,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "connecting to redis")
	}
	return rdb, nil
}

// RedisStore is the attendance cache and scan guard backed by redis.
type RedisStore struct {
	rdb redis.UniversalClient
}

var (
	_ attendance.Cache     = (*RedisStore)(nil)
	_ attendance.ScanGuard = (*RedisStore)(nil)
)

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, attendance.ErrCacheMiss
	}
	return val, errors.Wrap(err, "redis get")
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.Wrap(s.rdb.Set(ctx, key, value, ttl).Err(), "redis set")
}

func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) error {
	iter := s.rdb.Scan(ctx, 0, prefix+"*", scanBatch).Iterator()
	keys := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == scanBatch {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return errors.Wrap(err, "redis del")
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return errors.Wrap(err, "redis scan")
	}
	if len(keys) > 0 {
		return errors.Wrap(s.rdb.Del(ctx, keys...).Err(), "redis del")
	}
	return nil
}

// Allow sets key only if absent, with a window expiry. SET NX PX.
func (s *RedisStore) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, 1, window).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis setnx")
	}
	return ok, nil
}
