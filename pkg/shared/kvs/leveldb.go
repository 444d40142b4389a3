package kvs

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const defaultLevelDBDir = "asiriapos-web"

// LevelDBStore persists entries on local disk so sessions survive a restart of
// a single front-end instance.
type LevelDBStore struct {
	prefix    string
	db        *leveldb.DB
	writeOpts *opt.WriteOptions
	mu        sync.RWMutex
	closed    bool
	sweeper   *sweeper
}

// NewLevelDBStore opens (or creates) the database and starts the expiry sweeper.
func NewLevelDBStore(prefix string, cfg LevelDBConfig) (*LevelDBStore, error) {
	path := cfg.Path
	if path == "" {
		path = defaultLevelDBPath(prefix)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("kvs/leveldb: failed to create directory: %w", err)
	}

	db, err := leveldb.OpenFile(path, &opt.Options{
		Strict:      opt.DefaultStrict,
		Compression: opt.SnappyCompression,
	})
	if lerrors.IsCorrupted(err) {
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("kvs/leveldb: failed to open database at %s: %w", path, err)
	}

	l := &LevelDBStore{
		prefix:    prefix,
		db:        db,
		writeOpts: &opt.WriteOptions{Sync: cfg.SyncWrites},
	}
	l.sweeper = startSweeper(cfg.CleanupInterval, l.sweep)
	return l, nil
}

func defaultLevelDBPath(prefix string) string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	name := defaultLevelDBDir
	if prefix != "" {
		name += "-" + strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
				return r
			}
			return '-'
		}, prefix)
	}
	return filepath.Join(base, name)
}

func (l *LevelDBStore) key(k string) []byte { return []byte(l.prefix + k) }

// Records are [8 byte big-endian expiry in unix nanos, 0 = never][value].
func encodeRecord(value []byte, ttl time.Duration) []byte {
	var exp int64
	if at := deadline(ttl); !at.IsZero() {
		exp = at.UnixNano()
	}
	rec := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(rec[:8], uint64(exp))
	copy(rec[8:], value)
	return rec
}

func decodeRecord(rec []byte) (value []byte, expiresAt time.Time, err error) {
	if len(rec) < 8 {
		return nil, time.Time{}, errors.New("kvs/leveldb: invalid encoded value (too short)")
	}
	if exp := int64(binary.BigEndian.Uint64(rec[:8])); exp > 0 {
		expiresAt = time.Unix(0, exp)
	}
	return rec[8:], expiresAt, nil
}

func (l *LevelDBStore) isClosed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closed
}

// Get returns the live value for key.
func (l *LevelDBStore) Get(_ context.Context, key string) ([]byte, error) {
	if l.isClosed() {
		return nil, ErrClosed
	}
	rec, err := l.db.Get(l.key(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kvs/leveldb: get failed: %w", err)
	}
	value, exp, err := decodeRecord(rec)
	if err != nil {
		return nil, err
	}
	if expired(exp, time.Now()) {
		return nil, ErrNotFound
	}
	return value, nil
}

// Set writes value with an optional TTL.
func (l *LevelDBStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if l.isClosed() {
		return ErrClosed
	}
	if err := l.db.Put(l.key(key), encodeRecord(value, ttl), l.writeOpts); err != nil {
		return fmt.Errorf("kvs/leveldb: set failed: %w", err)
	}
	return nil
}

// Delete removes key.
func (l *LevelDBStore) Delete(_ context.Context, key string) error {
	if l.isClosed() {
		return ErrClosed
	}
	if err := l.db.Delete(l.key(key), l.writeOpts); err != nil && !errors.Is(err, leveldb.ErrNotFound) {
		return fmt.Errorf("kvs/leveldb: delete failed: %w", err)
	}
	return nil
}

// Exists reports whether key is present and live.
func (l *LevelDBStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := l.Get(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// scan calls fn for each live entry under prefix.
func (l *LevelDBStore) scan(prefix string, fn func(key string)) error {
	iter := l.db.NewIterator(util.BytesPrefix(l.key(prefix)), nil)
	defer iter.Release()

	now := time.Now()
	for iter.Next() {
		_, exp, err := decodeRecord(iter.Value())
		if err != nil || expired(exp, now) {
			continue
		}
		fn(strings.TrimPrefix(string(iter.Key()), l.prefix))
	}
	return iter.Error()
}

// List returns the live keys under prefix.
func (l *LevelDBStore) List(_ context.Context, prefix string) ([]string, error) {
	if l.isClosed() {
		return nil, ErrClosed
	}
	var keys []string
	if err := l.scan(prefix, func(k string) { keys = append(keys, k) }); err != nil {
		return nil, fmt.Errorf("kvs/leveldb: iteration failed: %w", err)
	}
	return keys, nil
}

// Count returns the number of live keys under prefix.
func (l *LevelDBStore) Count(_ context.Context, prefix string) (int, error) {
	if l.isClosed() {
		return 0, ErrClosed
	}
	n := 0
	if err := l.scan(prefix, func(string) { n++ }); err != nil {
		return 0, fmt.Errorf("kvs/leveldb: count failed: %w", err)
	}
	return n, nil
}

// Close stops the sweeper and closes the database.
func (l *LevelDBStore) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.closed = true
	l.mu.Unlock()

	l.sweeper.halt()
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("kvs/leveldb: close failed: %w", err)
	}
	return nil
}

func (l *LevelDBStore) sweep() {
	if l.isClosed() {
		return
	}
	iter := l.db.NewIterator(util.BytesPrefix([]byte(l.prefix)), nil)
	defer iter.Release()

	now := time.Now()
	batch := new(leveldb.Batch)
	for iter.Next() {
		_, exp, err := decodeRecord(iter.Value())
		if err == nil && expired(exp, now) {
			batch.Delete(append([]byte(nil), iter.Key()...))
		}
	}
	if batch.Len() > 0 {
		_ = l.db.Write(batch, nil)
	}
}
