package cache

import (
	"context"
	"errors"
	"time"

	redis_db "github.com/tupahq/tupasync/internal/redis-db"

	"github.com/tupahq/tupasync/config"

	"github.com/go-redis/cache/v9"
)

type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, data interface{}) error
	Delete(ctx context.Context, key string) error
}

func NewCache() (Cache, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	ca, err := newRedisCache(cfg.Redis.Dns, cfg.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	return ca, nil
}

const cacheSize = 128000

type RedisCache struct {
	cache *cache.Cache
}

func newRedisCache(address string, skipTLSVerify bool) (*RedisCache, error) {
	client, err := redis_db.NewRedisClient(address, skipTLSVerify)
	if err != nil {
		return nil, err
	}

	c := cache.New(&cache.Options{
		Redis:      client.Client(),
		LocalCache: cache.NewTinyLFU(cacheSize, 1*time.Minute),
	})

	r := &RedisCache{cache: c}

	return r, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, data interface{}, ttl time.Duration) error {
	return r.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: data,
		TTL:   ttl,
	})
}

func (r *RedisCache) Get(ctx context.Context, key string, data interface{}) error {
	err := r.cache.Get(ctx, key, &data)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}

	if err != nil {
		return err
	}

	return nil
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.cache.Delete(ctx, key)
}
