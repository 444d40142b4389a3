package web

import (
	"fmt"
	"net/http"

	"github.com/ideamans/asiriapos-web/pkg/apiclient"
	"github.com/ideamans/asiriapos-web/pkg/session"
)

const (
	msgLoginInvalid      = "Please correct the errors below."
	msgBadCredentials    = "Invalid phone number or password. Please check your credentials."
	msgLoginThrottled    = "Too many login attempts. Please try again later."
	msgNoAccessToken     = "Login failed: the server did not return an access token."
	msgRegisterInvalid   = "Form validation failed. Please correct the errors below."
	msgRegisterSucceeded = "Registration successful! You can now log in."
)

type loginContent struct {
	Form  *LoginForm
	Error string
}

type registerContent struct {
	Form    *RegistrationForm
	Error   string
	Success string
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "login.html", "Sign in", loginContent{Form: &LoginForm{Errors: FieldErrors{}}})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := clientIP(r)

	if s.limiter != nil && !s.limiter.Allow(ctx, "login:"+ip) {
		s.logger.Warn("Login rate limit exceeded", "client_ip", ip)
		s.render(w, r, http.StatusTooManyRequests, "login.html", "Sign in",
			loginContent{Form: &LoginForm{Errors: FieldErrors{}}, Error: msgLoginThrottled})
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	form := parseLoginForm(r.PostForm)
	if !form.Validate() {
		s.render(w, r, http.StatusOK, "login.html", "Sign in", loginContent{Form: form, Error: msgLoginInvalid})
		return
	}

	resp, res := s.api.ObtainToken(ctx, form.PhoneNumber, form.Password)
	if !res.OK() || res.StatusCode() != http.StatusOK {
		attrs := []any{"client_ip", ip, "kind", res.Kind, "status", res.StatusCode()}
		if s.limiter != nil {
			attrs = append(attrs, "attempts_left", s.limiter.Remaining(ctx, "login:"+ip))
		}
		s.logger.Info("Login rejected", attrs...)
		s.render(w, r, http.StatusOK, "login.html", "Sign in", loginContent{Form: form, Error: loginError(res)})
		return
	}
	if resp.Access == "" {
		s.logger.Warn("Login response without access token", "client_ip", ip)
		s.render(w, r, http.StatusOK, "login.html", "Sign in", loginContent{Form: form, Error: msgNoAccessToken})
		return
	}

	sess := session.FromContext(ctx)
	sess.Renew()
	sess.Login(resp.Identity())
	s.csrfToken(sess)
	if s.limiter != nil {
		s.limiter.Reset(ctx, "login:"+ip)
	}

	s.logger.Info("User logged in", "user_client_id", string(resp.UserClientID), "role", sess.Profile().Role)
	http.Redirect(w, r, IndexPath, http.StatusFound)
}

// loginError maps a failed token request to the message shown above the form.
func loginError(res apiclient.Result) string {
	switch {
	case res.Kind == apiclient.KindTransport:
		return fmt.Sprintf("API Connection Error: %v", res.Err)
	case res.StatusCode() == http.StatusUnauthorized:
		return msgBadCredentials
	}
	if detail, ok := res.Response.Detail(); ok {
		return "Login failed: " + detail
	}
	return "Login failed: " + res.Response.Text()
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess.Authorized() {
		s.logger.Info("User logged out", "user_client_id", sess.Values[session.KeyClientID])
	}
	sess.Clear()
	http.Redirect(w, r, LoginPath, http.StatusFound)
}

func (s *Server) handleRegisterForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "register.html", "Register", registerContent{Form: &RegistrationForm{Errors: FieldErrors{}}})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	form := parseRegistrationForm(r.PostForm)
	if !form.Validate() {
		s.render(w, r, http.StatusOK, "register.html", "Register", registerContent{Form: form, Error: msgRegisterInvalid})
		return
	}

	res := s.api.RegisterClient(r.Context(), form.Registration())
	switch res.Kind {
	case apiclient.KindSuccess:
		s.logger.Info("Client registered", "storename", form.StoreName)
		s.render(w, r, http.StatusOK, "register.html", "Register",
			registerContent{Form: &RegistrationForm{Errors: FieldErrors{}}, Success: msgRegisterSucceeded})
	case apiclient.KindTransport:
		s.logger.Warn("Registration failed", "error", res.Err)
		s.render(w, r, http.StatusOK, "register.html", "Register",
			registerContent{Form: form, Error: fmt.Sprintf("API Connection Error: %v", res.Err)})
	default:
		s.logger.Info("Registration rejected", "status", res.StatusCode())
		s.render(w, r, http.StatusOK, "register.html", "Register",
			registerContent{Form: form, Error: fmt.Sprintf("API Error: %d %s", res.StatusCode(), res.Response.Text())})
	}
}
