package config

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ideamans/asiriapos-web/pkg/session"
	"github.com/ideamans/asiriapos-web/pkg/shared/kvs"
	"github.com/ideamans/asiriapos-web/pkg/shared/logging"
)

// Config represents the application configuration
type Config struct {
	Site           SiteConfig      `yaml:"site" json:"site" envPrefix:"SITE_"`
	Server         ServerConfig    `yaml:"server" json:"server" envPrefix:"SERVER_"`
	API            APIConfig       `yaml:"api" json:"api" envPrefix:"API_"`
	Session        SessionConfig   `yaml:"session" json:"session" envPrefix:"SESSION_"`
	LoginRateLimit RateLimitConfig `yaml:"login_rate_limit" json:"login_rate_limit" envPrefix:"LOGIN_RATE_LIMIT_"`
	Logging        LoggingConfig   `yaml:"logging" json:"logging" envPrefix:"LOGGING_"`
}

// SiteConfig is shown on every page. It is the only section reloaded while running.
type SiteConfig struct {
	Name            string          `yaml:"name" json:"name" env:"NAME"`
	MaintenanceMode bool            `yaml:"maintenance_mode" json:"maintenance_mode" env:"MAINTENANCE_MODE"`
	FeatureFlags    map[string]bool `yaml:"feature_flags" json:"feature_flags" env:"FEATURE_FLAGS"` // env format: "new_dashboard:true,beta_feature:false"
}

// ServerConfig contains listener settings
type ServerConfig struct {
	Host            string `yaml:"host" json:"host" env:"HOST"`
	Port            int    `yaml:"port" json:"port" env:"PORT"`
	ShutdownTimeout string `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"` // default: "30s"
	DrainDelay      string `yaml:"drain_delay" json:"drain_delay" env:"DRAIN_DELAY"`                // /ready answers 503 this long before the listener closes (default: "0s")
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GetShutdownTimeout returns the graceful shutdown budget.
func (s ServerConfig) GetShutdownTimeout() time.Duration {
	return parseDurationOr(s.ShutdownTimeout, 30*time.Second)
}

// GetDrainDelay returns how long the server reports not-ready before shutting down.
func (s ServerConfig) GetDrainDelay() time.Duration {
	return parseDurationOr(s.DrainDelay, 0)
}

// APIConfig points at the backend REST API
type APIConfig struct {
	BaseURL      string `yaml:"base_url" json:"base_url" env:"BASE_URL"`
	Timeout      string `yaml:"timeout" json:"timeout" env:"TIMEOUT"`                   // per request (default: "30s")
	ProbeTimeout string `yaml:"probe_timeout" json:"probe_timeout" env:"PROBE_TIMEOUT"` // liveness probe (default: "2s")
	StatusTTL    string `yaml:"status_ttl" json:"status_ttl" env:"STATUS_TTL"`          // how long a probe result is reused (default: "30s", "0s" disables)
}

// GetTimeout returns the per-request timeout.
func (a APIConfig) GetTimeout() time.Duration { return parseDurationOr(a.Timeout, 30*time.Second) }

// GetProbeTimeout returns the liveness probe timeout.
func (a APIConfig) GetProbeTimeout() time.Duration {
	return parseDurationOr(a.ProbeTimeout, 2*time.Second)
}

// GetStatusTTL returns how long a probe result is cached.
func (a APIConfig) GetStatusTTL() time.Duration { return parseDurationOr(a.StatusTTL, 30*time.Second) }

// SessionConfig contains session cookie and storage settings
type SessionConfig struct {
	Cookie CookieConfig `yaml:"cookie" json:"cookie" envPrefix:"COOKIE_"`
	Store  kvs.Config   `yaml:"store" json:"store" envPrefix:"STORE_"`

	// CSRFSecret signs form tokens. Empty generates a key per process, which
	// invalidates open forms on restart and cannot be shared between replicas.
	CSRFSecret string `yaml:"csrf_secret" json:"csrf_secret" env:"CSRF_SECRET"`
}

// CookieConfig contains session cookie settings
type CookieConfig struct {
	Name     string `yaml:"name" json:"name" env:"NAME"`
	Expire   string `yaml:"expire" json:"expire" env:"EXPIRE"`
	Secure   bool   `yaml:"secure" json:"secure" env:"SECURE"`
	HTTPOnly bool   `yaml:"httponly" json:"httponly" env:"HTTPONLY"`
	SameSite string `yaml:"samesite" json:"samesite" env:"SAMESITE"`
}

// GetExpireDuration returns the session lifetime
func (c CookieConfig) GetExpireDuration() (time.Duration, error) {
	return time.ParseDuration(c.Expire)
}

// GetSameSite returns the SameSite cookie attribute based on configuration
func (c CookieConfig) GetSameSite() http.SameSite {
	return session.ParseSameSite(c.SameSite)
}

// RateLimitConfig throttles login attempts per client address
type RateLimitConfig struct {
	Attempts int    `yaml:"attempts" json:"attempts" env:"ATTEMPTS"` // default: 5, negative disables
	Interval string `yaml:"interval" json:"interval" env:"INTERVAL"` // default: "1m"
}

// Enabled reports whether login attempts are limited at all.
func (r RateLimitConfig) Enabled() bool { return r.Attempts > 0 }

// GetInterval returns the refill interval.
func (r RateLimitConfig) GetInterval() time.Duration {
	return parseDurationOr(r.Interval, time.Minute)
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string            `yaml:"level" json:"level" env:"LEVEL"`
	Color bool              `yaml:"color" json:"color" env:"COLOR"`
	File  FileLoggingConfig `yaml:"file" json:"file" envPrefix:"FILE_"` // disabled when path is empty
}

// FileLoggingConfig contains file logging and rotation settings
type FileLoggingConfig struct {
	Path       string `yaml:"path" json:"path" env:"PATH"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty" json:"max_size_mb,omitempty" env:"MAX_SIZE_MB"` // default: 100
	MaxBackups int    `yaml:"max_backups,omitempty" json:"max_backups,omitempty" env:"MAX_BACKUPS"` // default: 3
	MaxAge     int    `yaml:"max_age,omitempty" json:"max_age,omitempty" env:"MAX_AGE"`             // days, default: 28
	Compress   bool   `yaml:"compress,omitempty" json:"compress,omitempty" env:"COMPRESS"`
}

// Rotation converts the section for logging.NewLoggerWithFile; nil when disabled.
func (f FileLoggingConfig) Rotation() *logging.FileRotationConfig {
	if f.Path == "" {
		return nil
	}
	return &logging.FileRotationConfig{
		Path:       f.Path,
		MaxSizeMB:  f.MaxSizeMB,
		MaxBackups: f.MaxBackups,
		MaxAge:     f.MaxAge,
		Compress:   f.Compress,
	}
}

// Validate checks if the configuration is valid
// Returns a ValidationError containing all validation errors found
func (c *Config) Validate() error {
	verr := NewValidationError()

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		verr.Add(fmt.Errorf("%w: %d", ErrInvalidPort, c.Server.Port))
	}

	if c.API.BaseURL == "" {
		verr.Add(ErrAPIBaseURLRequired)
	} else if u, err := url.Parse(c.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		verr.Add(fmt.Errorf("%w: %q", ErrInvalidAPIBaseURL, c.API.BaseURL))
	}

	durations := []struct {
		field, value string
	}{
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"server.drain_delay", c.Server.DrainDelay},
		{"api.timeout", c.API.Timeout},
		{"api.probe_timeout", c.API.ProbeTimeout},
		{"api.status_ttl", c.API.StatusTTL},
		{"session.cookie.expire", c.Session.Cookie.Expire},
		{"login_rate_limit.interval", c.LoginRateLimit.Interval},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil || v < 0 {
			verr.Add(fmt.Errorf("%w: %s=%q", ErrInvalidDuration, d.field, d.value))
		}
	}

	switch strings.ToLower(c.Session.Cookie.SameSite) {
	case "", "lax", "strict", "none":
	default:
		verr.Add(fmt.Errorf("%w: %q", ErrInvalidSameSite, c.Session.Cookie.SameSite))
	}
	if strings.EqualFold(c.Session.Cookie.SameSite, "none") && !c.Session.Cookie.Secure {
		verr.Add(ErrSameSiteNoneInsecure)
	}
	if c.Session.CSRFSecret != "" && len(c.Session.CSRFSecret) < 16 {
		verr.Add(ErrCSRFSecretTooShort)
	}

	switch c.Session.Store.Type {
	case "", kvs.TypeMemory, kvs.TypeLevelDB:
	case kvs.TypeRedis:
		if c.Session.Store.Redis.Addr == "" {
			verr.Add(ErrRedisAddrRequired)
		}
	default:
		verr.Add(fmt.Errorf("%w: %q", ErrUnsupportedStore, c.Session.Store.Type))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error", "fatal":
	default:
		verr.Add(fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level))
	}

	return verr.ErrorOrNil()
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
