package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ideamans/asiriapos-web/pkg/apiclient"
	"github.com/ideamans/asiriapos-web/pkg/config"
	"github.com/ideamans/asiriapos-web/pkg/ratelimit"
	"github.com/ideamans/asiriapos-web/pkg/session"
	"github.com/ideamans/asiriapos-web/pkg/shared/filewatcher"
	"github.com/ideamans/asiriapos-web/pkg/shared/kvs"
	"github.com/ideamans/asiriapos-web/pkg/shared/logging"
	"github.com/ideamans/asiriapos-web/pkg/web"
)

// Key namespaces inside the shared kvs backend.
const (
	SessionNamespace   = "session:"
	RateLimitNamespace = "ratelimit:"
)

// reloadDebounce coalesces the burst of events editors produce on save.
const reloadDebounce = 100 * time.Millisecond

// Config represents the configuration for running the server
type Config struct {
	ConfigPath string // "" when running from the environment only
	App        *config.Config
	Host       string // From command-line flag
	Port       int    // From command-line flag
	HostSet    bool   // Whether host was explicitly set via flag
	PortSet    bool   // Whether port was explicitly set via flag
	Logger     logging.Logger
	Version    string
}

// App is the assembled front-end.
type App struct {
	Web  *web.Server
	Site *config.SiteHolder

	store    kvs.Store
	sessions *session.Store
}

// Close releases the session backend.
func (a *App) Close() error { return a.store.Close() }

// LiveSessions counts the sessions currently held by the store.
func (a *App) LiveSessions(ctx context.Context) (int, error) { return a.sessions.Count(ctx) }

// Build wires every component described by cfg. The caller closes the App.
func Build(cfg *config.Config, logger logging.Logger) (*App, error) {
	ttl, err := cfg.Session.Cookie.GetExpireDuration()
	if err != nil {
		return nil, fmt.Errorf("invalid session expiry: %w", err)
	}

	store, err := kvs.New(cfg.Session.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	api, err := apiclient.New(apiclient.Config{
		BaseURL:      cfg.API.BaseURL,
		Timeout:      cfg.API.GetTimeout(),
		ProbeTimeout: cfg.API.GetProbeTimeout(),
		StatusTTL:    cfg.API.GetStatusTTL(),
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	sessionStore := session.NewStore(kvs.NewNamespacedStore(store, SessionNamespace), ttl)
	sessions := session.NewManager(
		sessionStore,
		session.CookieConfig{
			Name:     cfg.Session.Cookie.Name,
			Secure:   cfg.Session.Cookie.Secure,
			HTTPOnly: cfg.Session.Cookie.HTTPOnly,
			SameSite: cfg.Session.Cookie.GetSameSite(),
		},
		logger,
	)

	var limiter *ratelimit.Limiter
	if cfg.LoginRateLimit.Enabled() {
		limiter = ratelimit.NewLimiter(cfg.LoginRateLimit.Attempts, cfg.LoginRateLimit.GetInterval(),
			kvs.NewNamespacedStore(store, RateLimitNamespace), logger)
	}

	var csrfKey []byte
	if cfg.Session.CSRFSecret != "" {
		csrfKey = []byte(cfg.Session.CSRFSecret)
	}

	site := config.NewSiteHolder(cfg.Site)
	srv, err := web.New(web.Options{
		API:      api,
		Sessions: sessions,
		Site:     site,
		Limiter:  limiter,
		Logger:   logger,
		CSRFKey:  csrfKey,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &App{Web: srv, Site: site, store: store, sessions: sessionStore}, nil
}

// Run starts the server with the given configuration and blocks until ctx
// is cancelled, SIGINT or SIGTERM arrives, or the listener fails.
func Run(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewSimpleLogger("main", logging.LevelInfo, true)
	}
	appCfg := cfg.App
	if appCfg == nil {
		return errors.New("server: no configuration")
	}

	logger.Info("Starting asiriapos-web", "version", cfg.Version)

	resolveListen(cfg, appCfg, logger)
	if err := appCfg.Validate(); err != nil {
		return FormatConfigError(err)
	}

	app, err := Build(appCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() { _ = app.Close() }()

	if n, err := app.LiveSessions(ctx); err != nil {
		logger.Warn("Failed to count stored sessions", "error", err)
	} else {
		logger.Info("Session store ready", "type", appCfg.Session.Store.Type, "live_sessions", n)
	}
	if appCfg.Session.CSRFSecret == "" {
		logger.Warn("No session.csrf_secret configured, form tokens will not survive a restart")
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Only the site section is reloaded while running.
	if cfg.ConfigPath != "" {
		watcher, err := filewatcher.NewWatcher(cfg.ConfigPath, reloadDebounce)
		if err != nil {
			return fmt.Errorf("failed to create file watcher: %w", err)
		}
		defer func() { _ = watcher.Close() }()

		watcher.AddListener(config.NewSiteReloader(config.NewFileLoader(cfg.ConfigPath), app.Site, logger))
		go func() {
			if err := watcher.Start(sigCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("File watcher error", "error", err)
			}
		}()
		logger.Info("File watcher initialized for hot reload", "config_file", cfg.ConfigPath)
	}

	addr := appCfg.Server.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           app.Web.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Starting server", "addr", ln.Addr().String(), "api", appCfg.API.BaseURL)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		} else {
			errChan <- nil
		}
	}()

	select {
	case <-sigCtx.Done():
		logger.Info("Shutdown signal received, stopping server...")

		// Load balancers see 503 on /ready while in-flight requests finish.
		app.Web.SetDraining(true)
		if d := appCfg.Server.GetDrainDelay(); d > 0 {
			logger.Info("Draining before shutdown", "delay", d)
			time.Sleep(d)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.Server.GetShutdownTimeout())
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := <-errChan; err != nil {
			logger.Error("Server stopped with error", "error", err)
			return err
		}
	case err := <-errChan:
		if err != nil {
			logger.Error("Server stopped with error", "error", err)
			return err
		}
	}

	logger.Info("Server stopped successfully")
	return nil
}

// resolveListen applies the command-line host and port.
// Priority: command-line flags > config file and environment > defaults
func resolveListen(cfg Config, appCfg *config.Config, logger logging.Logger) {
	if cfg.HostSet {
		appCfg.Server.Host = cfg.Host
		logger.Info("Using host from command-line flag", "host", cfg.Host)
	}
	if cfg.PortSet {
		appCfg.Server.Port = cfg.Port
		logger.Info("Using port from command-line flag", "port", cfg.Port)
	}
}

// FormatConfigError formats configuration errors with helpful messages
func FormatConfigError(err error) error {
	var validationErr *config.ValidationError
	if errors.As(err, &validationErr) {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Configuration validation failed with %d error(s):\n\n", len(validationErr.Errors))
		for i, e := range validationErr.Errors {
			fmt.Fprintf(&sb, "  %d. %v\n", i+1, e)
		}
		sb.WriteString("\nPlease fix the errors above in your configuration file or POS_* environment variables.")
		return errors.New(sb.String())
	}

	if errors.Is(err, config.ErrConfigFileNotFound) {
		return fmt.Errorf("%v - please create a configuration file or specify the correct path with --config flag", err)
	}

	if errors.Is(err, config.ErrUnsupportedFormat) {
		return fmt.Errorf("%v - please use a .yaml, .yml or .json file", err)
	}

	return fmt.Errorf("failed to load configuration: %v", err)
}
