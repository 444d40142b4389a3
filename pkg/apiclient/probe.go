package apiclient

import (
	"context"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
)

// Status is the backend liveness shown in the page chrome.
type Status string

const (
	StatusOnline  Status = "Online"
	StatusOffline Status = "Offline"
)

// DefaultProbeTimeout bounds a single liveness probe.
const DefaultProbeTimeout = 2 * time.Second

const statusKey = "status"

// StatusProbe checks backend liveness with an OPTIONS request and caches the
// answer so that page renders do not each pay for a round trip.
type StatusProbe struct {
	target string
	client *http.Client
	cache  *cache.Cache
	ttl    time.Duration
}

// NewStatusProbe creates a probe for target. A ttl of zero disables caching.
func NewStatusProbe(target string, timeout, ttl time.Duration) *StatusProbe {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &StatusProbe{
		target: target,
		client: &http.Client{Timeout: timeout},
		cache:  cache.New(ttl, 0),
		ttl:    ttl,
	}
}

// Status returns the cached status, probing the backend when the cache is cold.
func (p *StatusProbe) Status(ctx context.Context) Status {
	if p.ttl > 0 {
		if v, ok := p.cache.Get(statusKey); ok {
			return v.(Status)
		}
	}
	s := p.Probe(ctx)
	if p.ttl > 0 {
		p.cache.Set(statusKey, s, cache.DefaultExpiration)
	}
	return s
}

// Probe sends one OPTIONS request. Any answer that shows the API is routing
// requests, including auth rejections and disallowed methods, counts as online.
func (p *StatusProbe) Probe(ctx context.Context) Status {
	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, p.target, nil)
	if err != nil {
		return StatusOffline
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return StatusOffline
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusUnauthorized,
		http.StatusForbidden, http.StatusMethodNotAllowed:
		return StatusOnline
	default:
		return StatusOffline
	}
}

// Invalidate drops the cached status.
func (p *StatusProbe) Invalidate() { p.cache.Delete(statusKey) }
