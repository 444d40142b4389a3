package kvs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPingTimeout = 5 * time.Second

// RedisStore keeps entries in Redis so several front-end replicas share sessions.
// The namespace becomes a "namespace:" key prefix; expiry is left to Redis.
type RedisStore struct {
	prefix string
	client *redis.Client
	closed atomic.Bool
}

// NewRedisStore connects and pings the server before returning.
func NewRedisStore(namespace string, cfg RedisConfig) (*RedisStore, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("kvs/redis: failed to connect to %s: %w", cfg.Addr, err)
	}

	prefix := ""
	if namespace != "" {
		prefix = namespace + ":"
	}
	return &RedisStore{prefix: prefix, client: client}, nil
}

func (r *RedisStore) key(k string) string { return r.prefix + k }

// Get returns the value for key.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	value, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kvs/redis: get failed: %w", err)
	}
	return value, nil
}

// Set writes value; ttl <= 0 stores without expiry.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("kvs/redis: set failed: %w", err)
	}
	return nil
}

// Delete removes key.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("kvs/redis: delete failed: %w", err)
	}
	return nil
}

// Exists reports whether key is present.
func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	if r.closed.Load() {
		return false, ErrClosed
	}
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("kvs/redis: exists check failed: %w", err)
	}
	return n > 0, nil
}

// List walks matching keys with SCAN rather than KEYS.
func (r *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	var keys []string
	iter := r.client.Scan(ctx, 0, r.key(prefix)+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("kvs/redis: list failed: %w", err)
	}
	return keys, nil
}

// Count returns the number of keys under prefix.
func (r *RedisStore) Count(ctx context.Context, prefix string) (int, error) {
	keys, err := r.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Close closes the client connection pool.
func (r *RedisStore) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("kvs/redis: close failed: %w", err)
	}
	return nil
}
