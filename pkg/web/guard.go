package web

import (
	"net/http"

	"github.com/ideamans/asiriapos-web/pkg/session"
)

// Decision is the outcome of the access guard.
type Decision struct {
	Allow    bool
	Redirect string // where to send the client when Allow is false
}

// Authorize decides whether sess may reach a protected page. It has no side effects.
func Authorize(sess *session.Session) Decision {
	if sess.Authorized() {
		return Decision{Allow: true}
	}
	return Decision{Redirect: LoginPath}
}

// requireLogin runs next only for authorized sessions and redirects everyone
// else to the login page.
func (s *Server) requireLogin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := Authorize(session.FromContext(r.Context()))
		if !d.Allow {
			s.logger.Debug("Guard: redirecting unauthenticated request", "path", r.URL.Path)
			http.Redirect(w, r, d.Redirect, http.StatusFound)
			return
		}
		next(w, r)
	})
}
