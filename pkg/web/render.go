package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/ideamans/asiriapos-web/pkg/apiclient"
	"github.com/ideamans/asiriapos-web/pkg/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var embeddedStatic embed.FS

var staticFS = mustSub(embeddedStatic, "static")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// defaultFeatureFlags are always present in the page context; site config
// entries override them.
var defaultFeatureFlags = map[string]bool{
	"new_dashboard": false,
	"beta_feature":  false,
}

// PageData is the context every template receives.
type PageData struct {
	Title               string
	SiteName            string
	APIStatus           apiclient.Status
	APIURL              string
	CurrentTime         time.Time
	UnreadNotifications int
	IsAdmin             bool
	FeatureFlags        map[string]bool
	MaintenanceMode     bool
	Authenticated       bool
	Profile             session.Profile
	Flash               string
	CSRFToken           string

	// Content carries the page-specific data.
	Content any
}

type pageSet struct {
	byName map[string]*template.Template
}

// formField feeds the shared "field" template used by the entry forms.
type formField struct {
	Name, Label, Type, Value, Error string
}

var templateFuncs = template.FuncMap{
	"datetime": func(t time.Time) string { return t.Format("Jan 2, 2006 15:04") },
	"field": func(name, label, typ, value, err string) formField {
		return formField{Name: name, Label: label, Type: typ, Value: value, Error: err}
	},
}

// loadPages parses layout.html once per page so each page can define its own
// "content" block.
func loadPages() (*pageSet, error) {
	layout, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	names, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	set := &pageSet{byName: make(map[string]*template.Template)}
	for _, name := range names {
		base := path.Base(name)
		if base == "layout.html" {
			continue
		}
		clone, err := layout.Clone()
		if err != nil {
			return nil, err
		}
		t, err := clone.ParseFS(templateFS, name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", base, err)
		}
		set.byName[base] = t
	}
	return set, nil
}

// pageData builds the global context for r.
func (s *Server) pageData(r *http.Request, title string, content any) PageData {
	site := s.site.Load()
	sess := session.FromContext(r.Context())

	flags := make(map[string]bool, len(defaultFeatureFlags)+len(site.FeatureFlags))
	for k, v := range defaultFeatureFlags {
		flags[k] = v
	}
	for k, v := range site.FeatureFlags {
		flags[k] = v
	}

	data := PageData{
		Title:           title,
		SiteName:        site.Name,
		APIStatus:       s.api.Status(r.Context()),
		APIURL:          s.api.BaseURL(),
		CurrentTime:     s.now(),
		FeatureFlags:    flags,
		MaintenanceMode: site.MaintenanceMode,
		Content:         content,
	}
	if sess != nil {
		data.Authenticated = sess.Authorized()
		if data.Authenticated {
			data.Profile = sess.Profile()
			data.IsAdmin = strings.EqualFold(data.Profile.Role, "admin")
		}
		data.Flash = sess.PopFlash()
		data.CSRFToken = s.csrfToken(sess)
	}
	return data
}

// render executes a page into a buffer first so a template error never
// produces a half-written response.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name, title string, content any) {
	t, ok := s.pages.byName[name]
	if !ok {
		s.logger.Error("Unknown template", "name", name)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", s.pageData(r, title, content)); err != nil {
		s.logger.Error("Failed to render template", "name", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// page returns a handler that renders a static template.
func (s *Server) page(name, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, name, title, nil)
	}
}

func setSecurityHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Referrer-Policy", "same-origin")
	h.Set("Cache-Control", "no-store")
}
