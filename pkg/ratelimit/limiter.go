// Package ratelimit throttles login attempts per client address.
//
// Buckets live in a kvs.Store so that several front-end instances sharing a
// redis store also share their limits.
package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/ideamans/asiriapos-web/pkg/shared/kvs"
	"github.com/ideamans/asiriapos-web/pkg/shared/logging"
)

// kvsTimeout bounds every store round trip made on the request path.
const kvsTimeout = 100 * time.Millisecond

// Limiter is a token bucket limiter backed by a kvs.Store.
type Limiter struct {
	kvs      kvs.Store
	rate     int // tokens per interval
	interval time.Duration
	logger   logging.Logger

	mu  sync.Mutex
	now func() time.Time
}

type bucket struct {
	Tokens     int       `json:"tokens"`
	LastRefill time.Time `json:"last_refill"`
}

// NewLimiter allows rate requests per interval for each key.
func NewLimiter(rate int, interval time.Duration, store kvs.Store, logger logging.Logger) *Limiter {
	return &Limiter{
		kvs:      store,
		rate:     rate,
		interval: interval,
		logger:   logger.WithModule("ratelimit"),
		now:      time.Now,
	}
}

// Allow consumes one token for key and reports whether the request may
// proceed. Store failures let the request through.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l.rate <= 0 {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, kvsTimeout)
	defer cancel()

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, err := l.load(ctx, key)
	if err != nil {
		b = bucket{Tokens: l.rate, LastRefill: now}
	}

	if elapsed := now.Sub(b.LastRefill); elapsed >= l.interval {
		b.Tokens = l.rate
		b.LastRefill = b.LastRefill.Add(elapsed.Truncate(l.interval))
	}

	if b.Tokens <= 0 {
		return false
	}
	b.Tokens--
	l.save(ctx, key, b)
	return true
}

// Remaining returns how many tokens key has left without consuming one.
func (l *Limiter) Remaining(ctx context.Context, key string) int {
	ctx, cancel := context.WithTimeout(ctx, kvsTimeout)
	defer cancel()

	b, err := l.load(ctx, key)
	if err != nil || l.now().Sub(b.LastRefill) >= l.interval {
		return max(l.rate, 0)
	}
	return b.Tokens
}

// Reset clears the bucket for key.
func (l *Limiter) Reset(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, kvsTimeout)
	defer cancel()
	if err := l.kvs.Delete(ctx, key); err != nil {
		l.logger.Warn("Failed to reset rate limit bucket", "key", key, "error", err)
	}
}

func (l *Limiter) load(ctx context.Context, key string) (bucket, error) {
	var b bucket
	data, err := l.kvs.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kvs.ErrNotFound) {
			l.logger.Warn("Failed to read rate limit bucket", "key", key, "error", err)
		}
		return b, err
	}
	if err := json.Unmarshal(data, &b); err != nil {
		l.logger.Warn("Discarding corrupted rate limit bucket", "key", key, "error", err)
		return b, err
	}
	return b, nil
}

// save writes b with a TTL of one interval past its last refill, after which
// the bucket would be full again anyway.
func (l *Limiter) save(ctx context.Context, key string, b bucket) {
	data, err := json.Marshal(b)
	if err != nil {
		return
	}
	ttl := b.LastRefill.Add(l.interval).Sub(l.now())
	if ttl <= 0 {
		ttl = l.interval
	}
	if err := l.kvs.Set(ctx, key, data, ttl); err != nil {
		l.logger.Warn("Failed to write rate limit bucket", "key", key, "error", err)
	}
}
