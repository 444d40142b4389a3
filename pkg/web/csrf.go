package web

import (
	"net/http"

	"github.com/ideamans/asiriapos-web/pkg/session"
)

// Where unsafe requests carry the form token.
const (
	CSRFField  = "csrf_token"
	CSRFHeader = "X-CSRF-Token"
)

const msgCSRFFailed = "Forbidden (CSRF token missing or incorrect.)"

// csrfToken returns the session's form token, issuing a new one when there is
// none or the session ID changed since it was issued.
func (s *Server) csrfToken(sess *session.Session) string {
	if tok, ok := sess.Get(session.KeyCSRFToken); ok && s.csrf.Valid(tok, sess.ID) {
		return tok
	}
	tok := s.csrf.Issue(sess.ID)
	sess.Set(session.KeyCSRFToken, tok)
	return tok
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// verifyCSRF rejects unsafe requests whose token was not issued for the
// caller's session. It runs inside the session middleware and before routing,
// so a rejected request never reaches a handler or the backend.
func (s *Server) verifyCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if safeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get(CSRFHeader)
		if token == "" {
			token = r.PostFormValue(CSRFField)
		}
		sess := session.FromContext(r.Context())
		if sess == nil || !s.csrf.Valid(token, sess.ID) {
			s.logger.Warn("CSRF check failed",
				"method", r.Method,
				"path", r.URL.Path,
				"client_ip", clientIP(r),
				"token_present", token != "",
				"origin", r.Header.Get("Origin"))
			setSecurityHeaders(w)
			http.Error(w, msgCSRFFailed, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
