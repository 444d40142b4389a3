package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ideamans/asiriapos-web/pkg/shared/kvs"
)

// DefaultTTL is used when a Store is created with a zero TTL.
const DefaultTTL = 24 * time.Hour

// Store persists sessions as JSON in a kvs backend.
type Store struct {
	kvs kvs.Store
	ttl time.Duration
}

// NewStore creates a session store. Every save extends the session by ttl.
func NewStore(store kvs.Store, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{kvs: store, ttl: ttl}
}

// TTL returns the lifetime granted on each save.
func (s *Store) TTL() time.Duration { return s.ttl }

// Load returns the session stored under id.
func (s *Store) Load(ctx context.Context, id string) (*Session, error) {
	data, err := s.kvs.Get(ctx, id)
	if errors.Is(err, kvs.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: failed to get from KVS: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}
	if !sess.ExpiresAt.IsZero() && time.Now().After(sess.ExpiresAt) {
		return nil, ErrSessionNotFound
	}
	if sess.Values == nil {
		sess.Values = make(map[string]string)
	}
	return &sess, nil
}

// Save writes the session and resets its modification state. A renewed
// session is written under its new ID and the old record is removed.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	sess.ExpiresAt = time.Now().Add(s.ttl)

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}
	if err := s.kvs.Set(ctx, sess.ID, data, s.ttl); err != nil {
		return fmt.Errorf("session: failed to set in KVS: %w", err)
	}

	if sess.renewed && sess.prevID != "" {
		if err := s.kvs.Delete(ctx, sess.prevID); err != nil {
			return fmt.Errorf("session: failed to delete previous ID: %w", err)
		}
	}

	sess.modified = false
	sess.renewed = false
	sess.fresh = false
	sess.prevID = ""
	return nil
}

// Delete removes the session stored under id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.kvs.Delete(ctx, id); err != nil {
		return fmt.Errorf("session: failed to delete from KVS: %w", err)
	}
	return nil
}

// Count returns the number of live sessions.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.kvs.Count(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("session: failed to count: %w", err)
	}
	return n, nil
}
