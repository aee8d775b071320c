package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "catalog-search/internal/common/errors"
	"catalog-search/internal/common/logger"
)

// RedisOptions configures the redis-backed cache.
type RedisOptions struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// RedisCache keeps responses in redis under a namespace unique to this
// instance. Values are stored without expiry and the whole namespace is
// deleted on Close, so entries live exactly as long as the owning client.
// Backend failures degrade to cache misses.
type RedisCache struct {
	client    *redis.Client
	namespace string
	ownClient bool
	logger    logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewRedisCache dials redis and verifies the connection.
func NewRedisCache(ctx context.Context, opts RedisOptions, log logger.Logger) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	c := NewRedisCacheFromClient(rdb, opts.Prefix, log)
	c.ownClient = true
	return c, nil
}

// NewRedisCacheFromClient wraps an existing client; Close purges the
// namespace but leaves the client open.
func NewRedisCacheFromClient(rdb *redis.Client, prefix string, log logger.Logger) *RedisCache {
	if prefix == "" {
		prefix = "catalog"
	}
	namespace := fmt.Sprintf("%s:%s", prefix, uuid.NewString())
	return &RedisCache{
		client:    rdb,
		namespace: namespace,
		logger:    log.Component("redis_cache").With(map[string]interface{}{"namespace": namespace}),
	}
}

func (c *RedisCache) key(k string) string {
	return c.namespace + ":" + k
}

// Namespace returns the key prefix owned by this instance.
func (c *RedisCache) Namespace() string {
	return c.namespace
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed", map[string]interface{}{
				"error": apperrors.NewCacheFailureError("redis", err).Error(),
			})
		}
		return nil, false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) {
	if err := c.client.Set(ctx, c.key(key), value, 0).Err(); err != nil {
		c.logger.Warn("cache write failed", map[string]interface{}{
			"error": apperrors.NewCacheFailureError("redis", err).Error(),
		})
	}
}

// Close deletes every key in the namespace and, when the cache dialed its
// own client, closes it. Later calls return the first result.
func (c *RedisCache) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.purge() })
	return c.closeErr
}

func (c *RedisCache) purge() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var purgeErr error
	iter := c.client.Scan(ctx, 0, c.namespace+":*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				purgeErr = err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		purgeErr = err
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			purgeErr = err
		}
	}

	if c.ownClient {
		if err := c.client.Close(); err != nil && purgeErr == nil {
			purgeErr = err
		}
	}
	if purgeErr != nil {
		return fmt.Errorf("redis cache close: %w", purgeErr)
	}
	return nil
}
