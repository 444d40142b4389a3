package kvs

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore keeps entries in a map. Contents are lost on restart, so it suits
// single-instance deployments and tests.
type MemoryStore struct {
	prefix  string
	mu      sync.RWMutex
	entries map[string]memoryEntry
	closed  bool
	sweeper *sweeper
}

// NewMemoryStore creates an in-process store whose keys are prefixed with prefix.
func NewMemoryStore(prefix string, cfg MemoryConfig) (*MemoryStore, error) {
	m := &MemoryStore{
		prefix:  prefix,
		entries: make(map[string]memoryEntry),
	}
	m.sweeper = startSweeper(cfg.CleanupInterval, m.sweep)
	return m, nil
}

func (m *MemoryStore) key(k string) string { return m.prefix + k }

// Get returns a copy of the stored value.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	e, ok := m.entries[m.key(key)]
	if !ok || expired(e.expiresAt, time.Now()) {
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	m.entries[m.key(key)] = memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: deadline(ttl),
	}
	return nil
}

// Delete removes key.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.entries, m.key(key))
	return nil
}

// Exists reports whether key is present and live.
func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	e, ok := m.entries[m.key(key)]
	return ok && !expired(e.expiresAt, time.Now()), nil
}

// List returns live keys under prefix with the store prefix removed.
func (m *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	full := m.key(prefix)
	now := time.Now()
	var keys []string
	for k, e := range m.entries {
		if !strings.HasPrefix(k, full) || expired(e.expiresAt, now) {
			continue
		}
		keys = append(keys, strings.TrimPrefix(k, m.prefix))
	}
	return keys, nil
}

// Count returns the number of live keys under prefix.
func (m *MemoryStore) Count(ctx context.Context, prefix string) (int, error) {
	keys, err := m.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Close stops the sweeper and drops every entry.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed = true
	m.mu.Unlock()

	m.sweeper.halt()

	m.mu.Lock()
	m.entries = nil
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	now := time.Now()
	for k, e := range m.entries {
		if expired(e.expiresAt, now) {
			delete(m.entries, k)
		}
	}
}
