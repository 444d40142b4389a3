package config

import (
	"maps"
	"sync/atomic"

	"github.com/ideamans/asiriapos-web/pkg/shared/filewatcher"
	"github.com/ideamans/asiriapos-web/pkg/shared/logging"
)

// SiteHolder publishes the current site section to concurrent page renders.
type SiteHolder struct {
	v atomic.Pointer[SiteConfig]
}

// NewSiteHolder creates a holder seeded with site.
func NewSiteHolder(site SiteConfig) *SiteHolder {
	h := &SiteHolder{}
	h.Store(site)
	return h
}

// Load returns a copy of the current site section.
func (h *SiteHolder) Load() SiteConfig {
	s := *h.v.Load()
	s.FeatureFlags = maps.Clone(s.FeatureFlags)
	return s
}

// Store replaces the site section.
func (h *SiteHolder) Store(site SiteConfig) {
	site.FeatureFlags = maps.Clone(site.FeatureFlags)
	h.v.Store(&site)
}

// SiteReloader re-reads the config file when it changes and publishes the
// new site section. Other sections need a restart; a reload that fails to
// load or validate keeps the previous site section.
type SiteReloader struct {
	loader Loader
	holder *SiteHolder
	logger logging.Logger
}

// NewSiteReloader creates a reloader. Register it with a filewatcher.Watcher.
func NewSiteReloader(loader Loader, holder *SiteHolder, logger logging.Logger) *SiteReloader {
	return &SiteReloader{
		loader: loader,
		holder: holder,
		logger: logger.WithModule("reload"),
	}
}

// OnFileChange implements filewatcher.ChangeListener.
func (r *SiteReloader) OnFileChange(ev filewatcher.ChangeEvent) {
	if ev.Error != nil {
		r.logger.Warn("Config watcher error", "error", ev.Error)
		return
	}

	cfg, err := r.loader.Load()
	if err != nil {
		r.logger.Error("Failed to reload configuration", "path", ev.Path, "error", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		r.logger.Error("Reloaded configuration is invalid, keeping previous settings", "path", ev.Path, "error", err)
		return
	}

	r.holder.Store(cfg.Site)
	r.logger.Info("Site settings reloaded", "name", cfg.Site.Name, "maintenance_mode", cfg.Site.MaintenanceMode)
}
