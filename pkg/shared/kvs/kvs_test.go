package kvs

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// backend builds a fresh store plus a function that moves its clock forward.
type backend struct {
	name    string
	open    func(t *testing.T) Store
	advance func(d time.Duration)
}

func backends(t *testing.T) []backend {
	mr := miniredis.RunT(t)

	return []backend{
		{
			name: "memory",
			open: func(t *testing.T) Store {
				s, err := NewMemoryStore("test:", MemoryConfig{CleanupInterval: 20 * time.Millisecond})
				require.NoError(t, err)
				return s
			},
			advance: time.Sleep,
		},
		{
			name: "leveldb",
			open: func(t *testing.T) Store {
				s, err := NewLevelDBStore("test:", LevelDBConfig{
					Path:            filepath.Join(t.TempDir(), "db"),
					CleanupInterval: 20 * time.Millisecond,
				})
				require.NoError(t, err)
				return s
			},
			advance: time.Sleep,
		},
		{
			name: "redis",
			open: func(t *testing.T) Store {
				mr.FlushAll()
				s, err := NewRedisStore("test", RedisConfig{Addr: mr.Addr()})
				require.NoError(t, err)
				return s
			},
			advance: mr.FastForward,
		},
	}
}

func TestStoreContract(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("SetGet", func(t *testing.T) {
				s := b.open(t)
				defer s.Close()

				require.NoError(t, s.Set(ctx, "sid-1", []byte(`{"access_token":"A"}`), 0))
				got, err := s.Get(ctx, "sid-1")
				require.NoError(t, err)
				assert.Equal(t, `{"access_token":"A"}`, string(got))
			})

			t.Run("GetMissing", func(t *testing.T) {
				s := b.open(t)
				defer s.Close()

				got, err := s.Get(ctx, "missing")
				assert.ErrorIs(t, err, ErrNotFound)
				assert.Nil(t, got)
			})

			t.Run("Overwrite", func(t *testing.T) {
				s := b.open(t)
				defer s.Close()

				require.NoError(t, s.Set(ctx, "k", []byte("one"), 0))
				require.NoError(t, s.Set(ctx, "k", []byte("two"), 0))
				got, err := s.Get(ctx, "k")
				require.NoError(t, err)
				assert.Equal(t, "two", string(got))
			})

			t.Run("DeleteIsIdempotent", func(t *testing.T) {
				s := b.open(t)
				defer s.Close()

				require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
				require.NoError(t, s.Delete(ctx, "k"))
				require.NoError(t, s.Delete(ctx, "k"))

				ok, err := s.Exists(ctx, "k")
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("ListAndCount", func(t *testing.T) {
				s := b.open(t)
				defer s.Close()

				require.NoError(t, s.Set(ctx, "session:a", []byte("1"), 0))
				require.NoError(t, s.Set(ctx, "session:b", []byte("2"), 0))
				require.NoError(t, s.Set(ctx, "ratelimit:x", []byte("3"), 0))

				keys, err := s.List(ctx, "session:")
				require.NoError(t, err)
				sort.Strings(keys)
				assert.Equal(t, []string{"session:a", "session:b"}, keys)

				n, err := s.Count(ctx, "")
				require.NoError(t, err)
				assert.Equal(t, 3, n)
			})

			t.Run("TTLExpiry", func(t *testing.T) {
				s := b.open(t)
				defer s.Close()

				require.NoError(t, s.Set(ctx, "short", []byte("v"), 50*time.Millisecond))
				require.NoError(t, s.Set(ctx, "long", []byte("v"), time.Hour))

				ok, err := s.Exists(ctx, "short")
				require.NoError(t, err)
				assert.True(t, ok)

				b.advance(120 * time.Millisecond)

				_, err = s.Get(ctx, "short")
				assert.ErrorIs(t, err, ErrNotFound)
				_, err = s.Get(ctx, "long")
				assert.NoError(t, err)

				n, err := s.Count(ctx, "")
				require.NoError(t, err)
				assert.Equal(t, 1, n)
			})

			t.Run("Closed", func(t *testing.T) {
				s := b.open(t)
				require.NoError(t, s.Close())

				_, err := s.Get(ctx, "k")
				assert.ErrorIs(t, err, ErrClosed)
				assert.ErrorIs(t, s.Set(ctx, "k", nil, 0), ErrClosed)
				assert.ErrorIs(t, s.Delete(ctx, "k"), ErrClosed)
				_, err = s.Exists(ctx, "k")
				assert.ErrorIs(t, err, ErrClosed)
				_, err = s.List(ctx, "")
				assert.ErrorIs(t, err, ErrClosed)
				assert.ErrorIs(t, s.Close(), ErrClosed)
			})
		})
	}
}

func TestNew(t *testing.T) {
	s, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
	require.NoError(t, s.Close())

	s, err = New(Config{Type: TypeLevelDB, LevelDB: LevelDBConfig{Path: filepath.Join(t.TempDir(), "db")}})
	require.NoError(t, err)
	assert.IsType(t, &LevelDBStore{}, s)
	require.NoError(t, s.Close())

	mr := miniredis.RunT(t)
	s, err = New(Config{Type: TypeRedis, Namespace: "pos", Redis: RedisConfig{Addr: mr.Addr()}})
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), "k", []byte("v"), 0))
	assert.True(t, mr.Exists("pos:k"))
	require.NoError(t, s.Close())

	_, err = New(Config{Type: "postgres"})
	assert.ErrorContains(t, err, "unsupported store type")
}

func TestNewRedisStore_ConnectionError(t *testing.T) {
	_, err := NewRedisStore("", RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestLevelDBRecord(t *testing.T) {
	rec := encodeRecord([]byte("value"), 0)
	value, exp, err := decodeRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, "value", string(value))
	assert.True(t, exp.IsZero())

	rec = encodeRecord([]byte("value"), time.Minute)
	_, exp, err = decodeRecord(rec)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, time.Second)

	_, _, err = decodeRecord([]byte{1, 2})
	assert.Error(t, err)
}

func TestSweeperRemovesExpiredEntries(t *testing.T) {
	s, err := NewMemoryStore("", MemoryConfig{CleanupInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(context.Background(), "k", []byte("v"), 5*time.Millisecond))
	assert.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.entries) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestStoresDoNotLeakGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m, err := NewMemoryStore("", MemoryConfig{CleanupInterval: time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, m.Close())

	l, err := NewLevelDBStore("", LevelDBConfig{Path: filepath.Join(t.TempDir(), "db"), CleanupInterval: time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, l.Close())
}

func TestNamespacedStore(t *testing.T) {
	ctx := context.Background()
	base, err := NewMemoryStore("", MemoryConfig{})
	require.NoError(t, err)
	defer base.Close()

	assert.Same(t, Store(base), NewNamespacedStore(base, ""))

	sessions := NewNamespacedStore(base, "session:")
	buckets := NewNamespacedStore(base, "ratelimit:")

	require.NoError(t, sessions.Set(ctx, "u1", []byte("session"), 0))
	require.NoError(t, buckets.Set(ctx, "u1", []byte("bucket"), 0))

	got, err := sessions.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "session", string(got))

	got, err = buckets.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "bucket", string(got))

	keys, err := sessions.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, keys)

	n, err := buckets.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, err := base.Exists(ctx, "session:u1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, sessions.Delete(ctx, "u1"))
	ok, err = buckets.Exists(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}
