package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ideamans/asiriapos-web/pkg/apiclient"
	"github.com/ideamans/asiriapos-web/pkg/session"
)

const (
	InventoryPath  = "/inventory/"
	ManagementPath = "/inventory/management/"

	msgSessionExpired = "Your session has expired. Please log in again."
)

type inventoryContent struct {
	Products []apiclient.Product
	Error    string
}

type managementContent struct {
	Categories []apiclient.Category
	Units      []apiclient.Unit
	Errors     []string
}

// apiErrorMessage describes a failed backend call for display.
func apiErrorMessage(res apiclient.Result) string {
	if res.Kind == apiclient.KindTransport {
		return fmt.Sprintf("API Connection Error: %v", res.Err)
	}
	return "API Error: " + res.Message()
}

// sessionLost redirects to the login page when a backend call cleared the
// session after a failed refresh. It reports whether it did.
func (s *Server) sessionLost(w http.ResponseWriter, r *http.Request) bool {
	sess := session.FromContext(r.Context())
	if sess.Authorized() {
		return false
	}
	sess.AddFlash(msgSessionExpired)
	http.Redirect(w, r, LoginPath, http.StatusFound)
	return true
}

func (s *Server) handleTodaysSales(w http.ResponseWriter, r *http.Request) {
	res := s.api.TodaysSales(r.Context(), session.FromContext(r.Context()))
	switch {
	case res.Kind == apiclient.KindTransport:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("Connection Error: %v", res.Err)})
	case res.StatusCode() != http.StatusOK:
		writeJSON(w, res.StatusCode(), map[string]string{"error": fmt.Sprintf("API Error: %d", res.StatusCode())})
	case !json.Valid(res.Response.Body):
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Connection Error: invalid JSON from API"})
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(res.Response.Body)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	products, res := s.api.ListProducts(r.Context(), session.FromContext(r.Context()))
	if s.sessionLost(w, r) {
		return
	}

	content := inventoryContent{Products: products}
	if !res.OK() {
		s.logger.Warn("Failed to list products", "kind", res.Kind, "status", res.StatusCode())
		content.Error = apiErrorMessage(res)
	}
	s.render(w, r, http.StatusOK, "inventory.html", "Inventory", content)
}

func (s *Server) handleInventoryManagement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	var content managementContent
	var res apiclient.Result

	content.Categories, res = s.api.ListCategories(ctx, sess)
	if s.sessionLost(w, r) {
		return
	}
	if !res.OK() {
		content.Errors = append(content.Errors, "Categories: "+apiErrorMessage(res))
	}

	content.Units, res = s.api.ListUnits(ctx, sess)
	if s.sessionLost(w, r) {
		return
	}
	if !res.OK() {
		content.Errors = append(content.Errors, "Units: "+apiErrorMessage(res))
	}

	s.render(w, r, http.StatusOK, "management.html", "Product Management", content)
}

func (s *Server) handleDeleteProducts(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	raw := append(append([]string(nil), r.PostForm["ids"]...), r.PostForm["product_ids"]...)
	if len(raw) == 0 {
		sess.AddFlash("No products selected.")
		http.Redirect(w, r, InventoryPath, http.StatusFound)
		return
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, v := range raw {
		id, err := uuid.Parse(v)
		if err != nil {
			sess.AddFlash("Invalid product selection.")
			http.Redirect(w, r, InventoryPath, http.StatusFound)
			return
		}
		ids = append(ids, id)
	}

	res := s.api.DeleteProducts(r.Context(), sess, ids)
	if s.sessionLost(w, r) {
		return
	}
	if res.OK() {
		s.logger.Info("Products deleted", "count", len(ids))
		sess.AddFlash(fmt.Sprintf("Deleted %d product(s).", len(ids)))
	} else {
		s.logger.Warn("Failed to delete products", "kind", res.Kind, "status", res.StatusCode())
		sess.AddFlash("Failed to delete products: " + apiErrorMessage(res))
	}
	http.Redirect(w, r, InventoryPath, http.StatusFound)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	s.deleteItem(w, r, "Category", s.api.DeleteCategory)
}

func (s *Server) handleDeleteUnit(w http.ResponseWriter, r *http.Request) {
	s.deleteItem(w, r, "Unit", s.api.DeleteUnit)
}

type deleteFunc func(ctx context.Context, sess *session.Session, id uuid.UUID) apiclient.Result

// deleteItem forwards a single-item delete and redirects back to the
// management page with the outcome as a flash message.
func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request, kind string, del deleteFunc) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	sess := session.FromContext(r.Context())
	res := del(r.Context(), sess, id)
	if s.sessionLost(w, r) {
		return
	}
	if res.OK() {
		s.logger.Info(kind+" deleted", "id", id)
		sess.AddFlash(kind + " deleted successfully.")
	} else {
		s.logger.Warn("Failed to delete "+strings.ToLower(kind), "id", id, "kind", res.Kind, "status", res.StatusCode())
		sess.AddFlash(fmt.Sprintf("Failed to delete %s: %s", strings.ToLower(kind), apiErrorMessage(res)))
	}
	http.Redirect(w, r, ManagementPath, http.StatusFound)
}
