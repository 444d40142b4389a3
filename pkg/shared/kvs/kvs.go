// Package kvs is the key-value abstraction sessions and rate-limit buckets are
// persisted through. Backends: in-process memory, LevelDB on local disk, and Redis
// for deployments running several front-end replicas.
package kvs

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store is a TTL-aware key-value store. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns ErrNotFound for missing or expired keys.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value. A ttl <= 0 means the key never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete is a no-op for missing keys.
	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	// List returns the live keys starting with prefix, in no particular order.
	List(ctx context.Context, prefix string) ([]string, error)

	Count(ctx context.Context, prefix string) (int, error)

	// Close releases resources. Every later call returns ErrClosed.
	Close() error
}

var (
	// ErrNotFound is returned when a key is missing or expired.
	ErrNotFound = errors.New("kvs: key not found")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("kvs: store is closed")
)

// Backend names accepted in Config.Type
const (
	TypeMemory  = "memory"
	TypeLevelDB = "leveldb"
	TypeRedis   = "redis"
)

const defaultCleanupInterval = 5 * time.Minute

// Config selects and configures a backend.
type Config struct {
	// Type is "memory" (default), "leveldb" or "redis".
	Type string `yaml:"type" json:"type" env:"TYPE"`

	// Namespace isolates this store's keys from other users of the same backend.
	Namespace string `yaml:"namespace" json:"namespace" env:"NAMESPACE"`

	Memory  MemoryConfig  `yaml:"memory" json:"memory" envPrefix:"MEMORY_"`
	LevelDB LevelDBConfig `yaml:"leveldb" json:"leveldb" envPrefix:"LEVELDB_"`
	Redis   RedisConfig   `yaml:"redis" json:"redis" envPrefix:"REDIS_"`
}

// MemoryConfig configures the in-process store.
type MemoryConfig struct {
	// CleanupInterval is how often expired keys are swept. Default 5m.
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval" env:"CLEANUP_INTERVAL"`
}

// LevelDBConfig configures the LevelDB store.
type LevelDBConfig struct {
	// Path of the database directory. Empty means a directory under the user cache dir.
	Path            string        `yaml:"path" json:"path" env:"PATH"`
	SyncWrites      bool          `yaml:"sync_writes" json:"sync_writes" env:"SYNC_WRITES"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval" env:"CLEANUP_INTERVAL"`
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr" env:"ADDR"`
	Password string `yaml:"password" json:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" json:"db" env:"DB"`
	// PoolSize of 0 keeps the go-redis default.
	PoolSize int `yaml:"pool_size" json:"pool_size" env:"POOL_SIZE"`
}

// New builds the backend named by cfg.Type.
func New(cfg Config) (Store, error) {
	switch cfg.Type {
	case TypeMemory, "":
		return NewMemoryStore(cfg.Namespace, cfg.Memory)
	case TypeLevelDB:
		return NewLevelDBStore(cfg.Namespace, cfg.LevelDB)
	case TypeRedis:
		return NewRedisStore(cfg.Namespace, cfg.Redis)
	default:
		return nil, fmt.Errorf("kvs: unsupported store type: %s", cfg.Type)
	}
}
