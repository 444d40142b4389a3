package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/ideamans/asiriapos-web/pkg/session"
	"github.com/ideamans/asiriapos-web/pkg/shared/logging"
)

// ErrNoRefreshToken is returned when the session holds no refresh token.
var ErrNoRefreshToken = errors.New("apiclient: no refresh token in session")

// RefreshError reports a refresh attempt the backend rejected or never answered.
type RefreshError struct {
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *RefreshError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("apiclient: token refresh rejected with status %d", e.StatusCode)
	}
	return fmt.Sprintf("apiclient: token refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// credentials returns the session's credential pair. A nil session yields an empty token.
func credentials(sess *session.Session) *oauth2.Token {
	if sess == nil {
		return &oauth2.Token{}
	}
	return &oauth2.Token{
		AccessToken:  sess.AccessToken(),
		RefreshToken: sess.RefreshToken(),
		TokenType:    "Bearer",
	}
}

// Refresher exchanges the session's refresh token for a new access token.
type Refresher struct {
	client   *http.Client
	endpoint string
	logger   logging.Logger
}

// NewRefresher creates a Refresher posting to endpoint.
func NewRefresher(client *http.Client, endpoint string, logger logging.Logger) *Refresher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Refresher{
		client:   client,
		endpoint: endpoint,
		logger:   logger.WithModule("refresh"),
	}
}

// Endpoint returns the refresh URL.
func (r *Refresher) Endpoint() string { return r.endpoint }

// Refresh replaces the session's access token. On any failure every
// authentication key is removed from the session instead, so the session is
// never left half updated. A session without a refresh token fails without a
// network call.
func (r *Refresher) Refresh(ctx context.Context, sess *session.Session) error {
	cur := credentials(sess)
	if cur.RefreshToken == "" {
		sess.Clear()
		return ErrNoRefreshToken
	}

	next, err := r.exchange(ctx, cur.RefreshToken)
	if err != nil {
		sess.Clear()
		return err
	}

	sess.SetAccessToken(next.AccessToken)
	r.logger.Debug("Access token refreshed")
	return nil
}

func (r *Refresher) exchange(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	payload, err := json.Marshal(map[string]string{"refresh": refreshToken})
	if err != nil {
		return nil, &RefreshError{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &RefreshError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &RefreshError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, &RefreshError{StatusCode: resp.StatusCode}
	}

	var body struct {
		Access string `json:"access"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return nil, &RefreshError{Err: fmt.Errorf("invalid refresh response: %w", err)}
	}
	tok := &oauth2.Token{AccessToken: body.Access, RefreshToken: refreshToken, TokenType: "Bearer"}
	if !tok.Valid() {
		return nil, &RefreshError{Err: errors.New("refresh response has no access token")}
	}
	return tok, nil
}
