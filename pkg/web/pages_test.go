package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideamans/asiriapos-web/pkg/config"
	"github.com/ideamans/asiriapos-web/pkg/session"
)

func TestAuthorize(t *testing.T) {
	assert.Equal(t, Decision{Redirect: LoginPath}, Authorize(nil))
	assert.Equal(t, Decision{Redirect: LoginPath}, Authorize(session.New()))

	sess := session.New()
	sess.Login(session.Identity{AccessToken: "A", RefreshToken: "R", ClientID: "42"})
	assert.Equal(t, Decision{Allow: true}, Authorize(sess))

	sess.Delete(session.KeyClientID)
	assert.False(t, Authorize(sess).Allow)
}

func TestProtectedRoutesRedirectToLogin(t *testing.T) {
	h := newHarness(t)
	id := uuid.NewString()

	routes := []struct{ method, path string }{
		{http.MethodGet, "/"},
		{http.MethodGet, "/dashboard-api/sales/today/"},
		{http.MethodGet, "/pos/"},
		{http.MethodGet, "/purchases/"},
		{http.MethodGet, "/inventory/"},
		{http.MethodGet, "/inventory/management/"},
		{http.MethodGet, "/sales/"},
		{http.MethodGet, "/expenses/"},
		{http.MethodGet, "/users/"},
		{http.MethodGet, "/reports/"},
		{http.MethodGet, "/inventory/add/"},
		{http.MethodGet, "/inventory/edit/" + id + "/"},
		{http.MethodGet, "/inventory/category/add/"},
		{http.MethodGet, "/inventory/category/edit/" + id + "/"},
		{http.MethodGet, "/inventory/unit/add/"},
		{http.MethodGet, "/inventory/unit/edit/" + id + "/"},
		{http.MethodPost, "/inventory/add/"},
		{http.MethodPost, "/inventory/edit/" + id + "/"},
		{http.MethodPost, "/inventory/delete/"},
		{http.MethodPost, "/inventory/category/add/"},
		{http.MethodPost, "/inventory/category/edit/" + id + "/"},
		{http.MethodPost, "/inventory/category/delete/" + id + "/"},
		{http.MethodPost, "/inventory/unit/add/"},
		{http.MethodPost, "/inventory/unit/edit/" + id + "/"},
		{http.MethodPost, "/inventory/unit/delete/" + id + "/"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			req, err := http.NewRequest(rt.method, h.front.URL+rt.path, nil)
			require.NoError(t, err)
			if rt.method == http.MethodPost {
				req.Header.Set(CSRFHeader, h.csrfToken(t))
			}

			resp, _ := h.do(t, req)

			assertRedirect(t, resp, LoginPath)
		})
	}
}

func TestProtectedPagesRender(t *testing.T) {
	h := newHarness(t)
	h.login(t, "A")

	pages := map[string]string{
		"/":           `id="dashboard"`,
		"/pos/":       `id="pos"`,
		"/purchases/": `id="purchases"`,
		"/sales/":     `id="sales"`,
		"/expenses/":  `id="expenses"`,
		"/users/":     `id="users"`,
		"/reports/":   `id="reports"`,
	}
	for path, marker := range pages {
		resp, body := h.get(t, path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, body, marker, path)
		assert.Contains(t, body, "Log out", path)
	}
}

func TestUnknownPath(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.get(t, "/nope/")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGlobalContext(t *testing.T) {
	h := newHarness(t)
	h.site.Store(config.SiteConfig{
		Name:            "Harbour Market",
		MaintenanceMode: true,
		FeatureFlags:    map[string]bool{"beta_feature": true},
	})
	h.backend.handle("OPTIONS /api/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, body := h.get(t, LoginPath)

	assert.Contains(t, body, "Sign in - Harbour Market")
	assert.Contains(t, body, `id="maintenance"`)
	assert.Contains(t, body, ">beta<")
	assert.NotContains(t, body, `class="new-dashboard"`)
	assert.Contains(t, body, ">Offline<")
	assert.Contains(t, body, h.backend.srv.URL+"/api/")
}

func TestPageData(t *testing.T) {
	h := newHarness(t)
	h.site.Store(config.SiteConfig{Name: "Shop", FeatureFlags: map[string]bool{"new_dashboard": true, "extra": true}})

	sess := session.New()
	sess.Login(session.Identity{AccessToken: "A", ClientID: "1", UserName: "Amina", StoreName: "Corner", Role: "admin"})
	sess.AddFlash("Saved.")
	req := httptestRequest(sess)

	data := h.server.pageData(req, "Title", "payload")

	assert.Equal(t, "Shop", data.SiteName)
	assert.Equal(t, map[string]bool{"new_dashboard": true, "beta_feature": false, "extra": true}, data.FeatureFlags)
	assert.True(t, data.Authenticated)
	assert.True(t, data.IsAdmin)
	assert.Equal(t, "Amina", data.Profile.UserName)
	assert.Equal(t, "Saved.", data.Flash)
	assert.Zero(t, data.UnreadNotifications)
	assert.Equal(t, "payload", data.Content)
	assert.Empty(t, sess.PopFlash(), "the flash is shown once")
	assert.True(t, h.server.csrf.Valid(data.CSRFToken, sess.ID))
	assert.Equal(t, data.CSRFToken, sess.Values[session.KeyCSRFToken])
}

func httptestRequest(sess *session.Session) *http.Request {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	return req.WithContext(session.NewContext(req.Context(), sess))
}

func TestTodaysSales(t *testing.T) {
	h := newHarness(t)
	h.login(t, "A")
	h.backend.handle("GET /api/sales/today/", requireBearer("A", respondJSON(http.StatusOK, `{"total_sales":"1250.00","transaction_count":17}`)))

	resp, body := h.get(t, "/dashboard-api/sales/today/")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"total_sales":"1250.00","transaction_count":17}`, body)
}

func TestTodaysSales_Errors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantError  string
	}{
		{"backend status", respondJSON(http.StatusServiceUnavailable, `down`), http.StatusServiceUnavailable, "API Error: 503"},
		{"not found", respondJSON(http.StatusNotFound, `{}`), http.StatusNotFound, "API Error: 404"},
		{"connection dropped", func(http.ResponseWriter, *http.Request) { panic(http.ErrAbortHandler) }, http.StatusInternalServerError, "Connection Error: "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.login(t, "A")
			h.backend.handle("GET /api/sales/today/", tt.handler)

			resp, body := h.get(t, "/dashboard-api/sales/today/")

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			var out map[string]string
			require.NoError(t, json.Unmarshal([]byte(body), &out))
			assert.True(t, strings.HasPrefix(out["error"], tt.wantError), "got %q", out["error"])
		})
	}
}

func TestTodaysSales_RefreshesExpiredToken(t *testing.T) {
	h := newHarness(t)
	h.login(t, "A")
	h.backend.handle("GET /api/sales/today/", requireBearer("B", respondJSON(http.StatusOK, `{"total_sales":"10.00"}`)))
	h.backend.handle("POST /api/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "R", body["refresh"])
		respondJSON(http.StatusOK, `{"access":"B"}`)(w, r)
	})

	resp, body := h.get(t, "/dashboard-api/sales/today/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"total_sales":"10.00"}`, body)

	// The refreshed token was persisted, so the next call needs no refresh.
	resp, _ = h.get(t, "/dashboard-api/sales/today/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, h.backend.called("POST /api/token/refresh/"))
	assert.Equal(t, 3, h.backend.called("GET /api/sales/today/"))
}

func TestInventory_RefreshFailureLogsOut(t *testing.T) {
	h := newHarness(t)
	h.login(t, "A")
	h.backend.handle("GET /api/products/", requireBearer("B", respondJSON(http.StatusOK, `[]`)))
	h.backend.handle("POST /api/token/refresh/", respondJSON(http.StatusUnauthorized, `{"detail":"Token is blacklisted"}`))

	resp, _ := h.get(t, InventoryPath)
	assertRedirect(t, resp, LoginPath)

	_, body := h.get(t, LoginPath)
	assert.Contains(t, body, htmlText(msgSessionExpired))

	resp, _ = h.get(t, IndexPath)
	assertRedirect(t, resp, LoginPath)
}

func TestInventory_ListsProducts(t *testing.T) {
	h := newHarness(t)
	h.login(t, "A")
	h.backend.handle("GET /api/products/", requireBearer("A", respondJSON(http.StatusOK, `{"results":[
		{"id":"5f0c7d2e-3c39-4b55-9a4e-0f3a8c6c1d01","name":"Rice 5kg","sku":"RICE-5","price":"12.50","quantity":40,"category_name":"Grains","unit_name":"bag"},
		{"id":"5f0c7d2e-3c39-4b55-9a4e-0f3a8c6c1d02","name":"Cooking Oil","sku":"OIL-1","price":4.2,"quantity":"15","category_name":"Oils","unit_name":"bottle"}
	]}`)))

	resp, body := h.get(t, InventoryPath)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Rice 5kg")
	assert.Contains(t, body, "Cooking Oil")
	assert.Contains(t, body, `value="5f0c7d2e-3c39-4b55-9a4e-0f3a8c6c1d02"`)
	assert.Contains(t, body, "12.50")
}

func TestInventory_BackendErrorIsShown(t *testing.T) {
	h := newHarness(t)
	h.login(t, "A")
	h.backend.handle("GET /api/products/", respondJSON(http.StatusInternalServerError, `database offline`))

	resp, body := h.get(t, InventoryPath)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "API Error: 500 database offline")
	assert.Contains(t, body, "No products yet.")
}

func TestInventoryManagement(t *testing.T) {
	h := newHarness(t)
	h.login(t, "A")
	h.backend.handle("GET /api/categories/", respondJSON(http.StatusOK, `[{"id":"c1","name":"Grains","description":"Rice and maize"}]`))
	h.backend.handle("GET /api/units/", respondJSON(http.StatusBadGateway, `bad gateway`))

	resp, body := h.get(t, ManagementPath)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Rice and maize")
	assert.Contains(t, body, `action="/inventory/category/delete/c1/"`)
	assert.Contains(t, body, "Units: API Error: 502 bad gateway")
	assert.Contains(t, body, "No units.")
}

func TestDeleteCategory(t *testing.T) {
	h := newHarness(t)
	h.login(t, "A")
	id := uuid.New()
	h.backend.handle("DELETE /api/categories/"+id.String()+"/", requireBearer("A", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	h.backend.handle("GET /api/categories/", respondJSON(http.StatusOK, `[]`))
	h.backend.handle("GET /api/units/", respondJSON(http.StatusOK, `[]`))

	resp, _ := h.post(t, "/inventory/category/delete/"+id.String()+"/", nil)
	assertRedirect(t, resp, ManagementPath)

	_, body := h.get(t, ManagementPath)
	assert.Contains(t, body, "Category deleted successfully.")

	_, body = h.get(t, ManagementPath)
	assert.NotContains(t, body, "Category deleted successfully.", "flash messages are shown once")
}

func TestDeleteUnit_Failure(t *testing.T) {
	h := newHarness(t)
	h.login(t, "A")
	id := uuid.New()
	h.backend.handle("DELETE /api/units/"+id.String()+"/", respondJSON(http.StatusConflict, `unit in use`))
	h.backend.handle("GET /api/categories/", respondJSON(http.StatusOK, `[]`))
	h.backend.handle("GET /api/units/", respondJSON(http.StatusOK, `[]`))

	resp, _ := h.post(t, "/inventory/unit/delete/"+id.String()+"/", nil)
	assertRedirect(t, resp, ManagementPath)

	_, body := h.get(t, ManagementPath)
	assert.Contains(t, body, "Failed to delete unit: API Error: 409 unit in use")
}

func TestDeleteItem_InvalidID(t *testing.T) {
	h := newHarness(t)
	h.login(t, "A")

	resp, _ := h.post(t, "/inventory/category/delete/not-a-uuid/", nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteItem_RequiresPost(t *testing.T) {
	h := newHarness(t)
	h.login(t, "A")

	resp, _ := h.get(t, "/inventory/unit/delete/"+uuid.NewString()+"/")

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestDeleteProducts(t *testing.T) {
	h := newHarness(t)
	h.login(t, "A")
	a, b := uuid.New(), uuid.New()
	h.backend.handle("POST /api/products/bulk-delete/", requireBearer("A", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"ids":["`+a.String()+`","`+b.String()+`"]}`, string(raw))
		w.WriteHeader(http.StatusNoContent)
	}))
	h.backend.handle("GET /api/products/", respondJSON(http.StatusOK, `[]`))

	resp, _ := h.post(t, "/inventory/delete/", url.Values{"ids": {a.String(), b.String()}})
	assertRedirect(t, resp, InventoryPath)

	_, body := h.get(t, InventoryPath)
	assert.Contains(t, body, "Deleted 2 product(s).")
}

func TestDeleteProducts_BadSelection(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
		want string
	}{
		{"nothing selected", url.Values{}, "No products selected."},
		{"invalid id", url.Values{"ids": {"42"}}, "Invalid product selection."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.login(t, "A")
			h.backend.handle("GET /api/products/", respondJSON(http.StatusOK, `[]`))

			resp, _ := h.post(t, "/inventory/delete/", tt.form)
			assertRedirect(t, resp, InventoryPath)

			_, body := h.get(t, InventoryPath)
			assert.Contains(t, body, tt.want)
			assert.Zero(t, h.backend.called("POST /api/products/bulk-delete/"))
		})
	}
}

func TestHealthAndReadiness(t *testing.T) {
	h := newHarness(t)

	resp, body := h.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body)

	resp, body = h.get(t, "/ready")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "READY", body)

	h.server.SetDraining(true)
	resp, _ = h.get(t, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = h.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "liveness is unaffected by draining")
}

func TestStaticAssets(t *testing.T) {
	h := newHarness(t)

	resp, body := h.get(t, "/static/app.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/css")
	assert.Contains(t, body, ".topbar")

	resp, _ = h.get(t, "/static/missing.js")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
