package kvs

import (
	"context"
	"strings"
	"time"
)

// NamespacedStore shares one physical backend between several logical stores,
// e.g. sessions and login rate-limit buckets:
//
//	base, _ := kvs.New(cfg)
//	sessions := kvs.NewNamespacedStore(base, "session:")
//	buckets := kvs.NewNamespacedStore(base, "ratelimit:")
//
// Close is forwarded to the shared backend, so close the base store, not the wrappers.
type NamespacedStore struct {
	store  Store
	prefix string
}

// NewNamespacedStore wraps store. An empty prefix returns store itself.
func NewNamespacedStore(store Store, prefix string) Store {
	if prefix == "" {
		return store
	}
	return &NamespacedStore{store: store, prefix: prefix}
}

func (n *NamespacedStore) key(k string) string { return n.prefix + k }

func (n *NamespacedStore) Get(ctx context.Context, key string) ([]byte, error) {
	return n.store.Get(ctx, n.key(key))
}

func (n *NamespacedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return n.store.Set(ctx, n.key(key), value, ttl)
}

func (n *NamespacedStore) Delete(ctx context.Context, key string) error {
	return n.store.Delete(ctx, n.key(key))
}

func (n *NamespacedStore) Exists(ctx context.Context, key string) (bool, error) {
	return n.store.Exists(ctx, n.key(key))
}

// List returns keys with the namespace prefix stripped.
func (n *NamespacedStore) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := n.store.List(ctx, n.key(prefix))
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, n.prefix)
	}
	return keys, nil
}

func (n *NamespacedStore) Count(ctx context.Context, prefix string) (int, error) {
	return n.store.Count(ctx, n.key(prefix))
}

func (n *NamespacedStore) Close() error {
	return n.store.Close()
}
