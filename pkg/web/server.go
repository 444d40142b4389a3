// Package web serves the AsiriaPOS front-end: sign-in and registration, the
// guarded back-office pages, and the JSON endpoint the dashboard polls. Every
// backend call goes through apiclient with the caller's session.
package web

import (
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ideamans/asiriapos-web/pkg/apiclient"
	"github.com/ideamans/asiriapos-web/pkg/config"
	"github.com/ideamans/asiriapos-web/pkg/csrf"
	"github.com/ideamans/asiriapos-web/pkg/ratelimit"
	"github.com/ideamans/asiriapos-web/pkg/session"
	"github.com/ideamans/asiriapos-web/pkg/shared/logging"
)

// Public paths
const (
	IndexPath    = "/"
	LoginPath    = "/accounts/login/"
	LogoutPath   = "/accounts/logout/"
	RegisterPath = "/register/"
)

// Options wires a Server.
type Options struct {
	API      *apiclient.Client
	Sessions *session.Manager
	Site     *config.SiteHolder
	Limiter  *ratelimit.Limiter // nil disables login throttling
	Logger   logging.Logger

	// CSRFKey signs form tokens. Nil generates a random key.
	CSRFKey []byte
}

// Server holds the handlers and their dependencies.
type Server struct {
	api      *apiclient.Client
	sessions *session.Manager
	site     *config.SiteHolder
	limiter  *ratelimit.Limiter
	csrf     *csrf.Signer
	pages    *pageSet
	logger   logging.Logger
	draining atomic.Bool
	now      func() time.Time
}

// New creates a Server. Templates are parsed here so a broken template fails
// at startup rather than on the first request.
func New(opts Options) (*Server, error) {
	if opts.API == nil || opts.Sessions == nil || opts.Site == nil {
		return nil, errors.New("web: API, Sessions and Site are required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	pages, err := loadPages()
	if err != nil {
		return nil, err
	}

	key := opts.CSRFKey
	if key == nil {
		if key, err = csrf.NewKey(); err != nil {
			return nil, err
		}
	}
	signer, err := csrf.NewSigner(key)
	if err != nil {
		return nil, err
	}

	return &Server{
		api:      opts.API,
		sessions: opts.Sessions,
		site:     opts.Site,
		limiter:  opts.Limiter,
		csrf:     signer,
		pages:    pages,
		logger:   opts.Logger.WithModule("web"),
		now:      time.Now,
	}, nil
}

// SetDraining makes /ready answer 503 so load balancers stop sending traffic
// before the listener closes.
func (s *Server) SetDraining(v bool) { s.draining.Store(v) }

// Handler returns the complete request pipeline.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	mux.HandleFunc("GET "+LoginPath+"{$}", s.handleLoginForm)
	mux.HandleFunc("POST "+LoginPath+"{$}", s.handleLogin)
	mux.HandleFunc(LogoutPath+"{$}", s.handleLogout)
	mux.HandleFunc("GET "+RegisterPath+"{$}", s.handleRegisterForm)
	mux.HandleFunc("POST "+RegisterPath+"{$}", s.handleRegister)

	mux.Handle("GET /{$}", s.requireLogin(s.page("index.html", "Dashboard")))
	mux.Handle("GET /dashboard-api/sales/today/{$}", s.requireLogin(s.handleTodaysSales))
	mux.Handle("GET /pos/{$}", s.requireLogin(s.page("pos.html", "Point of Sale")))
	mux.Handle("GET /purchases/{$}", s.requireLogin(s.page("purchases.html", "Purchases")))
	mux.Handle("GET /sales/{$}", s.requireLogin(s.page("sales.html", "Sales")))
	mux.Handle("GET /expenses/{$}", s.requireLogin(s.page("expenses.html", "Expenses")))
	mux.Handle("GET /users/{$}", s.requireLogin(s.page("users.html", "Users")))
	mux.Handle("GET /reports/{$}", s.requireLogin(s.page("reports.html", "Reports")))

	mux.Handle("GET /inventory/{$}", s.requireLogin(s.handleInventory))
	mux.Handle("GET /inventory/management/{$}", s.requireLogin(s.handleInventoryManagement))
	mux.Handle("GET /inventory/add/{$}", s.requireLogin(s.handleProductForm))
	mux.Handle("POST /inventory/add/{$}", s.requireLogin(s.handleSaveProduct))
	mux.Handle("GET /inventory/edit/{id}/{$}", s.requireLogin(s.handleProductForm))
	mux.Handle("POST /inventory/edit/{id}/{$}", s.requireLogin(s.handleSaveProduct))
	mux.Handle("POST /inventory/delete/{$}", s.requireLogin(s.handleDeleteProducts))

	mux.Handle("GET /inventory/category/add/{$}", s.requireLogin(s.handleCategoryForm))
	mux.Handle("POST /inventory/category/add/{$}", s.requireLogin(s.handleSaveCategory))
	mux.Handle("GET /inventory/category/edit/{id}/{$}", s.requireLogin(s.handleCategoryForm))
	mux.Handle("POST /inventory/category/edit/{id}/{$}", s.requireLogin(s.handleSaveCategory))
	mux.Handle("POST /inventory/category/delete/{id}/{$}", s.requireLogin(s.handleDeleteCategory))

	mux.Handle("GET /inventory/unit/add/{$}", s.requireLogin(s.handleUnitForm))
	mux.Handle("POST /inventory/unit/add/{$}", s.requireLogin(s.handleSaveUnit))
	mux.Handle("GET /inventory/unit/edit/{id}/{$}", s.requireLogin(s.handleUnitForm))
	mux.Handle("POST /inventory/unit/edit/{id}/{$}", s.requireLogin(s.handleSaveUnit))
	mux.Handle("POST /inventory/unit/delete/{id}/{$}", s.requireLogin(s.handleDeleteUnit))

	return s.recoverer(s.accessLog(s.sessions.Handler(s.verifyCSRF(mux))))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("DRAINING"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("READY"))
}

// clientIP is the peer address used as the login throttling key. Forwarding
// headers are ignored because clients can set them freely.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
