// Package session holds the per-browser state the front-end keeps on the server:
// the backend API credentials, the display fields shown in the page chrome, and
// one-shot flash messages.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Session keys. The first seven make up the authentication state and are always
// written and removed together.
const (
	KeyAccessToken   = "access_token"
	KeyRefreshToken  = "refresh_token"
	KeyClientID      = "user_client_id"
	KeyAuthenticated = "is_authenticated"
	KeyUserName      = "user_name"
	KeyStoreName     = "store_name"
	KeyUserRole      = "user_role"

	KeyFlash     = "flash"
	KeyCSRFToken = "csrf_token"
)

// AuthKeys lists every authentication key, in the order they are cleared.
var AuthKeys = []string{
	KeyAccessToken,
	KeyRefreshToken,
	KeyClientID,
	KeyAuthenticated,
	KeyUserName,
	KeyStoreName,
	KeyUserRole,
}

// ErrSessionNotFound is returned when no live session exists for an ID.
var ErrSessionNotFound = errors.New("session not found")

// Session is a mutable key/value bag owned by a single request at a time.
type Session struct {
	ID        string            `json:"id"`
	Values    map[string]string `json:"values"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`

	modified bool
	renewed  bool
	fresh    bool
	prevID   string
}

// New creates an empty, unsaved session with a random ID.
func New() *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		Values:    make(map[string]string),
		CreatedAt: now,
		fresh:     true,
	}
}

// Get returns the value stored under key.
func (s *Session) Get(key string) (string, bool) {
	v, ok := s.Values[key]
	return v, ok
}

// Set stores value under key.
func (s *Session) Set(key, value string) {
	if s.Values == nil {
		s.Values = make(map[string]string)
	}
	s.Values[key] = value
	s.modified = true
}

// Delete removes key. Missing keys are ignored.
func (s *Session) Delete(key string) {
	if _, ok := s.Values[key]; ok {
		delete(s.Values, key)
		s.modified = true
	}
}

// Modified reports whether the session changed since it was loaded.
func (s *Session) Modified() bool { return s.modified }

// Empty reports whether the session holds no values at all.
func (s *Session) Empty() bool { return len(s.Values) == 0 }

// Renew gives the session a new ID on the next save. Called on login so a
// pre-login session ID cannot be reused.
func (s *Session) Renew() {
	if !s.renewed {
		s.prevID = s.ID
	}
	s.ID = uuid.NewString()
	s.renewed = true
	s.modified = true
}

// AccessToken returns the bearer credential, or "" when absent.
func (s *Session) AccessToken() string { return s.Values[KeyAccessToken] }

// RefreshToken returns the refresh credential, or "" when absent.
func (s *Session) RefreshToken() string { return s.Values[KeyRefreshToken] }

// SetAccessToken replaces the bearer credential after a successful refresh.
func (s *Session) SetAccessToken(token string) { s.Set(KeyAccessToken, token) }

// Identity is everything the backend returns on a successful login.
type Identity struct {
	AccessToken  string
	RefreshToken string
	ClientID     string
	UserName     string
	StoreName    string
	Role         string
}

// Login writes the whole authentication state in one step.
func (s *Session) Login(id Identity) {
	s.Set(KeyAccessToken, id.AccessToken)
	s.Set(KeyRefreshToken, id.RefreshToken)
	s.Set(KeyClientID, id.ClientID)
	s.Set(KeyUserName, id.UserName)
	s.Set(KeyStoreName, id.StoreName)
	s.Set(KeyUserRole, id.Role)
	s.Set(KeyAuthenticated, "true")
}

// Clear removes every authentication key that is present. Other keys survive.
func (s *Session) Clear() {
	for _, key := range AuthKeys {
		s.Delete(key)
	}
}

// Authorized is true iff the authenticated flag, the access token and the
// client identifier are all present.
func (s *Session) Authorized() bool {
	if s == nil {
		return false
	}
	return s.Values[KeyAuthenticated] == "true" &&
		s.Values[KeyAccessToken] != "" &&
		s.Values[KeyClientID] != ""
}

// Profile is the display data shown in the page chrome.
type Profile struct {
	UserName  string
	StoreName string
	Role      string
}

// Profile returns the display fields.
func (s *Session) Profile() Profile {
	return Profile{
		UserName:  s.Values[KeyUserName],
		StoreName: s.Values[KeyStoreName],
		Role:      s.Values[KeyUserRole],
	}
}

// AddFlash stores a message shown once on the next rendered page.
func (s *Session) AddFlash(msg string) { s.Set(KeyFlash, msg) }

// PopFlash returns and removes the pending flash message.
func (s *Session) PopFlash() string {
	msg, ok := s.Values[KeyFlash]
	if ok {
		s.Delete(KeyFlash)
	}
	return msg
}
