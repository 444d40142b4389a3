package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideamans/asiriapos-web/pkg/apiclient"
	"github.com/ideamans/asiriapos-web/pkg/config"
	"github.com/ideamans/asiriapos-web/pkg/ratelimit"
	"github.com/ideamans/asiriapos-web/pkg/session"
	"github.com/ideamans/asiriapos-web/pkg/shared/kvs"
	"github.com/ideamans/asiriapos-web/pkg/shared/logging"
)

// backend stands in for the REST API. Routes are keyed "METHOD /api/path";
// OPTIONS requests answer 200 unless a route overrides them.
type backend struct {
	t   *testing.T
	srv *httptest.Server

	mu     sync.Mutex
	routes map[string]http.HandlerFunc
	calls  []string
}

func newBackend(t *testing.T) *backend {
	b := &backend{t: t, routes: make(map[string]http.HandlerFunc)}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) serve(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	b.mu.Lock()
	h, ok := b.routes[key]
	if r.Method != http.MethodOptions {
		b.calls = append(b.calls, key)
	}
	b.mu.Unlock()

	switch {
	case ok:
		h(w, r)
	case r.Method == http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		b.t.Errorf("unexpected backend call: %s", key)
		http.NotFound(w, r)
	}
}

func (b *backend) handle(key string, h http.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routes[key] = h
}

func (b *backend) called(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c == key {
			n++
		}
	}
	return n
}

func respondJSON(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

// requireBearer answers 401 unless the request carries the given access token.
func requireBearer(token string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			respondJSON(http.StatusUnauthorized, `{"detail":"Given token not valid for any token type"}`)(w, r)
			return
		}
		next(w, r)
	}
}

type harness struct {
	backend  *backend
	server   *Server
	front    *httptest.Server
	client   *http.Client
	sessions *session.Store
	site     *config.SiteHolder
}

type harnessOptions struct {
	loginAttempts int
}

func newHarness(t *testing.T, opts ...func(*harnessOptions)) *harness {
	t.Helper()
	o := harnessOptions{loginAttempts: 100}
	for _, fn := range opts {
		fn(&o)
	}

	b := newBackend(t)
	api, err := apiclient.New(apiclient.Config{BaseURL: b.srv.URL + "/api/", Timeout: 5 * time.Second}, logging.Discard())
	require.NoError(t, err)

	store, err := kvs.NewMemoryStore("", kvs.MemoryConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sessions := session.NewStore(kvs.NewNamespacedStore(store, "session:"), time.Hour)
	manager := session.NewManager(sessions, session.CookieConfig{Name: "sid", HTTPOnly: true, SameSite: http.SameSiteLaxMode}, logging.Discard())
	limiter := ratelimit.NewLimiter(o.loginAttempts, time.Minute, kvs.NewNamespacedStore(store, "ratelimit:"), logging.Discard())
	site := config.NewSiteHolder(config.SiteConfig{Name: "Test POS"})

	srv, err := New(Options{API: api, Sessions: manager, Site: site, Limiter: limiter, Logger: logging.Discard()})
	require.NoError(t, err)

	front := httptest.NewServer(srv.Handler())
	t.Cleanup(front.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &harness{backend: b, server: srv, front: front, client: client, sessions: sessions, site: site}
}

func withLoginAttempts(n int) func(*harnessOptions) {
	return func(o *harnessOptions) { o.loginAttempts = n }
}

func (h *harness) do(t *testing.T, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (h *harness) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, h.front.URL+path, nil)
	require.NoError(t, err)
	return h.do(t, req)
}

// csrfToken returns the form token stored in the browser's session, first
// opening the sign-in page when there is no session yet.
func (h *harness) csrfToken(t *testing.T) string {
	t.Helper()
	if tok := h.storedToken(t); tok != "" {
		return tok
	}
	resp, _ := h.get(t, LoginPath)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tok := h.storedToken(t)
	require.NotEmpty(t, tok)
	return tok
}

func (h *harness) storedToken(t *testing.T) string {
	t.Helper()
	u, err := url.Parse(h.front.URL)
	require.NoError(t, err)
	for _, c := range h.client.Jar.Cookies(u) {
		if c.Name != "sid" {
			continue
		}
		sess, err := h.sessions.Load(context.Background(), c.Value)
		if err != nil {
			return ""
		}
		return sess.Values[session.KeyCSRFToken]
	}
	return ""
}

// post submits form the way the browser does, with the session's form token
// unless form already carries one.
func (h *harness) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	values := url.Values{}
	for k, v := range form {
		values[k] = v
	}
	if _, ok := values[CSRFField]; !ok {
		values.Set(CSRFField, h.csrfToken(t))
	}
	return h.postRaw(t, path, values)
}

// postRaw submits form exactly as given.
func (h *harness) postRaw(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.front.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(t, req)
}

const (
	testPhone    = "0712345678"
	testPassword = "s3cret-pass"
)

// login signs in through the real form with a backend that issues access
// token access and refresh token "R".
func (h *harness) login(t *testing.T, access string) {
	t.Helper()
	h.backend.handle("POST /api/token/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, testPhone, body["phone_number"])
		assert.Equal(t, testPassword, body["password"])
		respondJSON(http.StatusOK, `{"access":"`+access+`","refresh":"R","user_client_id":42,"client_name":"Amina","storename":"Corner Shop","role":"Admin"}`)(w, r)
	})

	resp, _ := h.post(t, LoginPath, url.Values{"phone_number": {testPhone}, "password": {testPassword}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, IndexPath, resp.Header.Get("Location"))
}

// htmlText escapes s the way html/template renders it in text and attributes.
func htmlText(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&#34;", "'", "&#39;", "+", "&#43;").Replace(s)
}

func assertRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, location, resp.Header.Get("Location"))
}
