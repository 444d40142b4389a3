package web

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ideamans/asiriapos-web/pkg/apiclient"
	"github.com/ideamans/asiriapos-web/pkg/session"
)

const msgFormInvalid = "Please correct the errors below."

// ProductForm is the posted product editor.
type ProductForm struct {
	Name     string      `form:"name" validate:"required,max=255"`
	SKU      string      `form:"sku" validate:"max=64"`
	Price    string      `form:"price" validate:"required,numeric"`
	Quantity string      `form:"quantity" validate:"required,number"`
	Category string      `form:"category" validate:"omitempty,uuid"`
	Unit     string      `form:"unit" validate:"omitempty,uuid"`
	Errors   FieldErrors `form:"-"`

	quantity int
}

func parseProductForm(values url.Values) *ProductForm {
	f := &ProductForm{}
	f.Errors = bind(values, f, nil, &f.Name, &f.SKU, &f.Price, &f.Quantity, &f.Category, &f.Unit)
	if _, bad := f.Errors["quantity"]; !bad {
		n, err := strconv.Atoi(f.Quantity)
		if err != nil {
			f.Errors.add("quantity", msgWholeNumber)
		}
		f.quantity = n
	}
	return f
}

func productForm(p apiclient.Product) *ProductForm {
	return &ProductForm{
		Name:     p.Name,
		SKU:      p.SKU,
		Price:    string(p.Price),
		Quantity: string(p.Quantity),
		Category: string(p.CategoryID),
		Unit:     string(p.UnitID),
		Errors:   FieldErrors{},
	}
}

// Input converts a validated form into the API payload.
func (f *ProductForm) Input() apiclient.ProductInput {
	return apiclient.ProductInput{
		Name:     f.Name,
		SKU:      f.SKU,
		Price:    f.Price,
		Quantity: f.quantity,
		Category: f.Category,
		Unit:     f.Unit,
	}
}

// CategoryForm is the posted category editor.
type CategoryForm struct {
	Name        string      `form:"name" validate:"required,max=100"`
	Description string      `form:"description" validate:"max=255"`
	Errors      FieldErrors `form:"-"`
}

func parseCategoryForm(values url.Values) *CategoryForm {
	f := &CategoryForm{}
	f.Errors = bind(values, f, nil, &f.Name, &f.Description)
	return f
}

// UnitForm is the posted unit editor.
type UnitForm struct {
	Name         string      `form:"name" validate:"required,max=50"`
	Abbreviation string      `form:"abbreviation" validate:"required,max=10"`
	Errors       FieldErrors `form:"-"`
}

func parseUnitForm(values url.Values) *UnitForm {
	f := &UnitForm{}
	f.Errors = bind(values, f, nil, &f.Name, &f.Abbreviation)
	return f
}

type productFormContent struct {
	Form       *ProductForm
	Action     string
	Editing    bool
	Categories []apiclient.Category
	Units      []apiclient.Unit
	Error      string
}

// itemFormContent feeds the category and unit editors.
type itemFormContent struct {
	Form    any
	Action  string
	Editing bool
	Error   string
}

// itemID reads the optional {id} path value. A missing value means a new
// item; a malformed one answers 404 and reports ok=false.
func itemID(w http.ResponseWriter, r *http.Request) (id uuid.UUID, editing, ok bool) {
	raw := r.PathValue("id")
	if raw == "" {
		return uuid.Nil, false, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		http.NotFound(w, r)
		return uuid.Nil, false, false
	}
	return id, true, true
}

// loadFailed sends the user back to listing with the reason an item could not
// be opened for editing.
func (s *Server) loadFailed(w http.ResponseWriter, r *http.Request, kind, back string, res apiclient.Result) {
	s.logger.Warn("Failed to load "+strings.ToLower(kind), "kind", res.Kind, "status", res.StatusCode())
	session.FromContext(r.Context()).AddFlash(fmt.Sprintf("Failed to load %s: %s", strings.ToLower(kind), apiErrorMessage(res)))
	http.Redirect(w, r, back, http.StatusFound)
}

// submit sends a validated form and redirects to back on success. Otherwise it
// returns the message to show above the re-rendered form; done reports
// whether a response was already written.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, kind string, editing bool, back string, send func() apiclient.Result) (msg string, done bool) {
	res := send()
	if s.sessionLost(w, r) {
		return "", true
	}

	verb := "created"
	if editing {
		verb = "updated"
	}
	if res.OK() {
		s.logger.Info(kind+" "+verb, "status", res.StatusCode())
		session.FromContext(r.Context()).AddFlash(fmt.Sprintf("%s %s successfully.", kind, verb))
		http.Redirect(w, r, back, http.StatusFound)
		return "", true
	}
	s.logger.Warn("Failed to save "+strings.ToLower(kind), "kind", res.Kind, "status", res.StatusCode())
	return apiErrorMessage(res), false
}

func (s *Server) renderProductForm(w http.ResponseWriter, r *http.Request, content productFormContent) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	var res apiclient.Result
	content.Categories, res = s.api.ListCategories(ctx, sess)
	if s.sessionLost(w, r) {
		return
	}
	if !res.OK() && content.Error == "" {
		content.Error = "Categories: " + apiErrorMessage(res)
	}
	content.Units, res = s.api.ListUnits(ctx, sess)
	if s.sessionLost(w, r) {
		return
	}
	if !res.OK() && content.Error == "" {
		content.Error = "Units: " + apiErrorMessage(res)
	}

	title := "Add product"
	if content.Editing {
		title = "Edit product"
	}
	s.render(w, r, http.StatusOK, "product_form.html", title, content)
}

func productAction(id uuid.UUID, editing bool) string {
	if editing {
		return InventoryPath + "edit/" + id.String() + "/"
	}
	return InventoryPath + "add/"
}

func (s *Server) handleProductForm(w http.ResponseWriter, r *http.Request) {
	id, editing, ok := itemID(w, r)
	if !ok {
		return
	}

	form := &ProductForm{Errors: FieldErrors{}}
	if editing {
		p, res := s.api.GetProduct(r.Context(), session.FromContext(r.Context()), id)
		if s.sessionLost(w, r) {
			return
		}
		if !res.OK() {
			s.loadFailed(w, r, "Product", InventoryPath, res)
			return
		}
		form = productForm(p)
	}
	s.renderProductForm(w, r, productFormContent{Form: form, Action: productAction(id, editing), Editing: editing})
}

func (s *Server) handleSaveProduct(w http.ResponseWriter, r *http.Request) {
	id, editing, ok := itemID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	content := productFormContent{Form: parseProductForm(r.PostForm), Action: productAction(id, editing), Editing: editing}
	if len(content.Form.Errors) > 0 {
		content.Error = msgFormInvalid
		s.renderProductForm(w, r, content)
		return
	}

	sess := session.FromContext(r.Context())
	msg, done := s.submit(w, r, "Product", editing, InventoryPath, func() apiclient.Result {
		if editing {
			return s.api.UpdateProduct(r.Context(), sess, id, content.Form.Input())
		}
		return s.api.CreateProduct(r.Context(), sess, content.Form.Input())
	})
	if done {
		return
	}
	content.Error = msg
	s.renderProductForm(w, r, content)
}

func managementAction(kind string, id uuid.UUID, editing bool) string {
	if editing {
		return InventoryPath + kind + "/edit/" + id.String() + "/"
	}
	return InventoryPath + kind + "/add/"
}

func itemTitle(kind string, editing bool) string {
	if editing {
		return "Edit " + kind
	}
	return "Add " + kind
}

func (s *Server) handleCategoryForm(w http.ResponseWriter, r *http.Request) {
	id, editing, ok := itemID(w, r)
	if !ok {
		return
	}

	form := &CategoryForm{Errors: FieldErrors{}}
	if editing {
		c, res := s.api.GetCategory(r.Context(), session.FromContext(r.Context()), id)
		if s.sessionLost(w, r) {
			return
		}
		if !res.OK() {
			s.loadFailed(w, r, "Category", ManagementPath, res)
			return
		}
		form = &CategoryForm{Name: c.Name, Description: c.Description, Errors: FieldErrors{}}
	}
	s.render(w, r, http.StatusOK, "category_form.html", itemTitle("category", editing),
		itemFormContent{Form: form, Action: managementAction("category", id, editing), Editing: editing})
}

func (s *Server) handleSaveCategory(w http.ResponseWriter, r *http.Request) {
	id, editing, ok := itemID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	form := parseCategoryForm(r.PostForm)
	content := itemFormContent{Form: form, Action: managementAction("category", id, editing), Editing: editing}
	if len(form.Errors) > 0 {
		content.Error = msgFormInvalid
		s.render(w, r, http.StatusOK, "category_form.html", itemTitle("category", editing), content)
		return
	}

	sess := session.FromContext(r.Context())
	in := apiclient.CategoryInput{Name: form.Name, Description: form.Description}
	msg, done := s.submit(w, r, "Category", editing, ManagementPath, func() apiclient.Result {
		if editing {
			return s.api.UpdateCategory(r.Context(), sess, id, in)
		}
		return s.api.CreateCategory(r.Context(), sess, in)
	})
	if done {
		return
	}
	content.Error = msg
	s.render(w, r, http.StatusOK, "category_form.html", itemTitle("category", editing), content)
}

func (s *Server) handleUnitForm(w http.ResponseWriter, r *http.Request) {
	id, editing, ok := itemID(w, r)
	if !ok {
		return
	}

	form := &UnitForm{Errors: FieldErrors{}}
	if editing {
		u, res := s.api.GetUnit(r.Context(), session.FromContext(r.Context()), id)
		if s.sessionLost(w, r) {
			return
		}
		if !res.OK() {
			s.loadFailed(w, r, "Unit", ManagementPath, res)
			return
		}
		form = &UnitForm{Name: u.Name, Abbreviation: u.Abbreviation, Errors: FieldErrors{}}
	}
	s.render(w, r, http.StatusOK, "unit_form.html", itemTitle("unit", editing),
		itemFormContent{Form: form, Action: managementAction("unit", id, editing), Editing: editing})
}

func (s *Server) handleSaveUnit(w http.ResponseWriter, r *http.Request) {
	id, editing, ok := itemID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	form := parseUnitForm(r.PostForm)
	content := itemFormContent{Form: form, Action: managementAction("unit", id, editing), Editing: editing}
	if len(form.Errors) > 0 {
		content.Error = msgFormInvalid
		s.render(w, r, http.StatusOK, "unit_form.html", itemTitle("unit", editing), content)
		return
	}

	sess := session.FromContext(r.Context())
	in := apiclient.UnitInput{Name: form.Name, Abbreviation: form.Abbreviation}
	msg, done := s.submit(w, r, "Unit", editing, ManagementPath, func() apiclient.Result {
		if editing {
			return s.api.UpdateUnit(r.Context(), sess, id, in)
		}
		return s.api.CreateUnit(r.Context(), sess, in)
	})
	if done {
		return
	}
	content.Error = msg
	s.render(w, r, http.StatusOK, "unit_form.html", itemTitle("unit", editing), content)
}
