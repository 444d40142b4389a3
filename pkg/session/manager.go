package session

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ideamans/asiriapos-web/pkg/shared/logging"
)

type contextKey struct{}

// NewContext returns a copy of ctx carrying sess.
func NewContext(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// FromContext returns the request's session, or nil outside Manager.Handler.
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(contextKey{}).(*Session)
	return sess
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name     string
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

// ParseSameSite maps "strict", "lax" and "none" to http.SameSite; anything else is lax.
func ParseSameSite(s string) http.SameSite {
	switch strings.ToLower(s) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// Manager binds sessions to requests through a cookie.
type Manager struct {
	store  *Store
	cookie CookieConfig
	logger logging.Logger
}

// NewManager creates a Manager.
func NewManager(store *Store, cookie CookieConfig, logger logging.Logger) *Manager {
	if cookie.Name == "" {
		cookie.Name = "asiriapos_session"
	}
	return &Manager{
		store:  store,
		cookie: cookie,
		logger: logger.WithModule("session"),
	}
}

// Handler loads the request's session (or starts an empty one), exposes it via
// FromContext, and persists it before the first byte of the response is written
// if the handler changed it. Sessions that were never modified are not stored.
func (m *Manager) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := m.load(r)
		cw := &commitWriter{ResponseWriter: w}
		cw.commit = func() { m.commit(r.Context(), w, sess) }

		next.ServeHTTP(cw, r.WithContext(NewContext(r.Context(), sess)))
		cw.flush()
	})
}

func (m *Manager) load(r *http.Request) *Session {
	cookie, err := r.Cookie(m.cookie.Name)
	if err != nil || cookie.Value == "" {
		return New()
	}
	sess, err := m.store.Load(r.Context(), cookie.Value)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			m.logger.Error("Failed to load session", "error", err)
		}
		return New()
	}
	return sess
}

func (m *Manager) commit(ctx context.Context, w http.ResponseWriter, sess *Session) {
	if !sess.Modified() {
		return
	}

	if sess.Empty() {
		if !sess.fresh {
			for _, id := range []string{sess.ID, sess.prevID} {
				if id == "" {
					continue
				}
				if err := m.store.Delete(ctx, id); err != nil {
					m.logger.Error("Failed to delete session", "error", err)
				}
			}
			http.SetCookie(w, m.newCookie("", -1))
		}
		return
	}

	if err := m.store.Save(ctx, sess); err != nil {
		m.logger.Error("Failed to save session", "error", err)
		return
	}
	http.SetCookie(w, m.newCookie(sess.ID, int(m.store.TTL().Seconds())))
}

func (m *Manager) newCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookie.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   m.cookie.Secure,
		HttpOnly: m.cookie.HTTPOnly,
		SameSite: m.cookie.SameSite,
	}
}

// commitWriter runs commit exactly once, just before the status line is sent.
type commitWriter struct {
	http.ResponseWriter
	commit    func()
	committed bool
}

func (c *commitWriter) flush() {
	if !c.committed {
		c.committed = true
		c.commit()
	}
}

func (c *commitWriter) WriteHeader(code int) {
	c.flush()
	c.ResponseWriter.WriteHeader(code)
}

func (c *commitWriter) Write(b []byte) (int, error) {
	c.flush()
	return c.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (c *commitWriter) Unwrap() http.ResponseWriter { return c.ResponseWriter }
