package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ideamans/asiriapos-web/pkg/session"
	"github.com/ideamans/asiriapos-web/pkg/shared/logging"
)

// maxResponseBytes caps how much of a backend response is buffered.
const maxResponseBytes = 10 << 20

// Option adjusts a single call.
type Option func(*callOptions)

type callOptions struct {
	timeout time.Duration
	header  http.Header
}

// WithTimeout bounds each attempt of the call (the retry gets its own budget).
func WithTimeout(d time.Duration) Option {
	return func(o *callOptions) { o.timeout = d }
}

// WithHeader adds a request header. Content-Type and Authorization cannot be overridden.
func WithHeader(key, value string) Option {
	return func(o *callOptions) {
		if o.header == nil {
			o.header = make(http.Header)
		}
		o.header.Add(key, value)
	}
}

// Gateway issues backend calls with the session's bearer token and recovers
// once from an expired token.
type Gateway struct {
	client    *http.Client
	refresher *Refresher
	logger    logging.Logger

	// unreachable runs whenever a request gets no response at all.
	unreachable func()
}

// NewGateway creates a Gateway. refresher is consulted on every 401.
func NewGateway(client *http.Client, refresher *Refresher, logger logging.Logger) *Gateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &Gateway{
		client:    client,
		refresher: refresher,
		logger:    logger.WithModule("gateway"),
	}
}

// Do sends method target with body encoded as JSON (nil sends no body).
//
// A 401 triggers one token refresh. If the refresh succeeds the identical
// request is sent again with the new token and that response is returned;
// otherwise the original 401 is returned. There is never more than one retry.
func (g *Gateway) Do(ctx context.Context, sess *session.Session, method, target string, body any, opts ...Option) Result {
	payload, err := encodeBody(body)
	if err != nil {
		return transportFailure(err)
	}
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	res := g.send(ctx, sess, method, target, payload, o)
	if res.Kind != KindStatus || res.Response.StatusCode != http.StatusUnauthorized || sess == nil {
		return res
	}

	g.logger.Debug("Unauthorized response, refreshing access token", "method", method, "url", target)
	if err := g.refresher.Refresh(ctx, sess); err != nil {
		g.logger.Info("Token refresh failed, session cleared", "url", target, "refresh_url", g.refresher.Endpoint(), "error", err)
		return res
	}

	return g.send(ctx, sess, method, target, payload, o)
}

// send performs exactly one HTTP round trip with the session's current token.
// A nil session sends no Authorization header.
func (g *Gateway) send(ctx context.Context, sess *session.Session, method, target string, payload []byte, o callOptions) Result {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return transportFailure(fmt.Errorf("apiclient: failed to build request: %w", err))
	}
	for k, vs := range o.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := credentials(sess); tok.AccessToken != "" {
		tok.SetAuthHeader(req)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if g.unreachable != nil {
			g.unreachable()
		}
		return transportFailure(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportFailure(fmt.Errorf("apiclient: failed to read response body: %w", err))
	}

	g.logger.Debug("Backend call", "method", method, "url", target, "status", resp.StatusCode)
	return fromResponse(&Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	})
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("apiclient: failed to encode request body: %w", err)
	}
	return data, nil
}
