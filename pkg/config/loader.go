package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ideamans/asiriapos-web/pkg/apiclient"
)

// EnvPrefix is prepended to every environment override, e.g. POS_API_BASE_URL.
const EnvPrefix = "POS_"

// Loader is an interface for loading configuration
type Loader interface {
	Load() (*Config, error)
}

// FileLoader loads configuration from a YAML or JSON file, then applies
// POS_* environment overrides and defaults. An empty path loads from the
// environment alone.
type FileLoader struct {
	path    string
	missing []string
}

// NewFileLoader creates a new FileLoader
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// Path returns the config file path, or "" when loading from the environment only.
func (l *FileLoader) Path() string { return l.path }

// MissingEnvVars returns the ${VAR} references of the last Load that had no value.
func (l *FileLoader) MissingEnvVars() []string { return l.missing }

// Load reads and parses the configuration.
// The file format is detected from its extension (.yaml, .yml or .json), and
// ${VAR} or ${VAR:-default} references are expanded before parsing.
func (l *FileLoader) Load() (*Config, error) {
	var cfg Config
	l.missing = nil

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, l.path)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		raw := string(data)
		l.missing = MissingEnvVars(raw)
		if err := decode(l.path, []byte(ExpandEnv(raw)), &cfg); err != nil {
			return nil, err
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	applyDefaults(&cfg)

	// Validation is left to the caller so every problem can be reported at once.
	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse JSON config file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config file: %w", err)
		}
	default:
		return fmt.Errorf("%w: %s (supported: .yaml, .yml, .json)", ErrUnsupportedFormat, ext)
	}
	return nil
}

// LoadEnvFile loads variables from a dotenv file into the process
// environment. Variables that are already set win.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// applyDefaults sets default values for optional fields
func applyDefaults(cfg *Config) {
	if cfg.Site.Name == "" {
		cfg.Site.Name = "AsiriaPOS"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = apiclient.DefaultBaseURL
	}

	if cfg.Session.Cookie.Name == "" {
		cfg.Session.Cookie.Name = "asiriapos_session"
	}
	if cfg.Session.Cookie.Expire == "" {
		cfg.Session.Cookie.Expire = "336h" // 14 days
	}
	if cfg.Session.Cookie.SameSite == "" {
		cfg.Session.Cookie.SameSite = "lax"
	}
	// Session cookies carry bearer-token access and are never readable from scripts.
	cfg.Session.Cookie.HTTPOnly = true

	if cfg.LoginRateLimit.Attempts == 0 {
		cfg.LoginRateLimit.Attempts = 5
	}
	if cfg.LoginRateLimit.Interval == "" {
		cfg.LoginRateLimit.Interval = "1m"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
