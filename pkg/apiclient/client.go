package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ideamans/asiriapos-web/pkg/session"
	"github.com/ideamans/asiriapos-web/pkg/shared/logging"
)

// Backend paths, relative to the API base URL.
const (
	PathToken      = "token/"
	PathRefresh    = "token/refresh/"
	PathClients    = "clients/"
	PathSalesToday = "sales/today/"
	PathProducts   = "products/"
	PathBulkDelete = "products/bulk-delete/"
	PathCategories = "categories/"
	PathUnits      = "units/"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://127.0.0.1:8080/api/"

const defaultTimeout = 30 * time.Second

// Config configures the backend client.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	ProbeTimeout time.Duration
	StatusTTL    time.Duration // 0 probes on every call
}

// Client exposes the backend endpoints the front-end uses.
type Client struct {
	base    *url.URL
	gateway *Gateway
	probe   *StatusProbe
	logger  logging.Logger
}

// New creates a Client for cfg.BaseURL.
func New(cfg Config, logger logging.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("apiclient: invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("apiclient: base URL %q must be http or https", cfg.BaseURL)
	}
	// Relative paths resolve under the base only if it ends with a slash.
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	logger = logger.WithModule("api")
	hc := &http.Client{Timeout: cfg.Timeout}
	c := &Client{
		base:   base,
		logger: logger,
	}
	c.gateway = NewGateway(hc, NewRefresher(hc, c.URL(PathRefresh), logger), logger)
	c.probe = NewStatusProbe(c.BaseURL(), cfg.ProbeTimeout, cfg.StatusTTL)
	// A dropped request makes a cached "Online" stale.
	c.gateway.unreachable = c.probe.Invalidate
	return c, nil
}

// BaseURL returns the normalised API base URL.
func (c *Client) BaseURL() string { return c.base.String() }

// URL resolves path against the base URL.
func (c *Client) URL(path string) string {
	return c.base.ResolveReference(&url.URL{Path: strings.TrimPrefix(path, "/")}).String()
}

// Gateway returns the authenticated request gateway.
func (c *Client) Gateway() *Gateway { return c.gateway }

// Status returns the cached liveness of the backend.
func (c *Client) Status(ctx context.Context) Status { return c.probe.Status(ctx) }

// FlexString decodes a JSON string or number into a string.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = FlexString(n.String())
	return nil
}

// LoginResponse is the body of a successful token request.
type LoginResponse struct {
	Access       string     `json:"access"`
	Refresh      string     `json:"refresh"`
	UserClientID FlexString `json:"user_client_id"`
	ClientName   *string    `json:"client_name"`
	StoreName    *string    `json:"storename"`
	Role         *string    `json:"role"`
}

// Identity converts the response into session state. Missing display fields
// fall back to "User", "" and "Client".
func (l LoginResponse) Identity() session.Identity {
	return session.Identity{
		AccessToken:  l.Access,
		RefreshToken: l.Refresh,
		ClientID:     string(l.UserClientID),
		UserName:     orDefault(l.ClientName, "User"),
		StoreName:    orDefault(l.StoreName, ""),
		Role:         orDefault(l.Role, "Client"),
	}
}

func orDefault(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

// ObtainToken exchanges a phone number and password for a credential pair.
// A 200 whose body cannot be decoded is reported as a transport failure.
func (c *Client) ObtainToken(ctx context.Context, phone, password string) (LoginResponse, Result) {
	var out LoginResponse
	payload, err := encodeBody(map[string]string{
		"phone_number": phone,
		"password":     password,
	})
	if err != nil {
		return out, transportFailure(err)
	}
	res := c.gateway.send(ctx, nil, http.MethodPost, c.URL(PathToken), payload, callOptions{})
	if res.Kind != KindSuccess {
		return out, res
	}
	if err := res.Response.DecodeJSON(&out); err != nil {
		return out, transportFailure(err)
	}
	return out, res
}

// Registration is a new client account.
type Registration struct {
	StoreName            string `json:"storename"`
	ClientName           string `json:"client_name"`
	PhoneNumber          string `json:"phone_number"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	Address              string `json:"address"`
}

// RegisterClient creates a client account. The backend answers 201 on success,
// so any other status, including other 2xx codes, is reported as KindStatus.
func (c *Client) RegisterClient(ctx context.Context, reg Registration) Result {
	payload, err := encodeBody(reg)
	if err != nil {
		return transportFailure(err)
	}
	res := c.gateway.send(ctx, nil, http.MethodPost, c.URL(PathClients), payload, callOptions{})
	if res.Kind == KindSuccess && res.Response.StatusCode != http.StatusCreated {
		res.Kind = KindStatus
	}
	return res
}

// TodaysSales returns today's sales summary as the backend's raw JSON.
func (c *Client) TodaysSales(ctx context.Context, sess *session.Session) Result {
	return c.gateway.Do(ctx, sess, http.MethodGet, c.URL(PathSalesToday), nil)
}

// Product is an inventory item.
type Product struct {
	ID       FlexString `json:"id"`
	Name     string     `json:"name"`
	SKU      string     `json:"sku"`
	Price    FlexString `json:"price"`
	Quantity FlexString `json:"quantity"`
	Category FlexString `json:"category_name"`
	Unit     FlexString `json:"unit_name"`

	CategoryID FlexString `json:"category"`
	UnitID     FlexString `json:"unit"`
}

// Category groups products.
type Category struct {
	ID          FlexString `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
}

// Unit is a unit of measure.
type Unit struct {
	ID           FlexString `json:"id"`
	Name         string     `json:"name"`
	Abbreviation string     `json:"abbreviation"`
}

// ListProducts returns every product.
func (c *Client) ListProducts(ctx context.Context, sess *session.Session) ([]Product, Result) {
	return list[Product](ctx, c, sess, PathProducts)
}

// ListCategories returns every category.
func (c *Client) ListCategories(ctx context.Context, sess *session.Session) ([]Category, Result) {
	return list[Category](ctx, c, sess, PathCategories)
}

// ListUnits returns every unit.
func (c *Client) ListUnits(ctx context.Context, sess *session.Session) ([]Unit, Result) {
	return list[Unit](ctx, c, sess, PathUnits)
}

// list fetches a collection that is either a bare JSON array or a paginated
// object with a "results" array.
func list[T any](ctx context.Context, c *Client, sess *session.Session, path string) ([]T, Result) {
	res := c.gateway.Do(ctx, sess, http.MethodGet, c.URL(path), nil)
	if res.Kind != KindSuccess {
		return nil, res
	}

	var items []T
	body := bytes.TrimSpace(res.Response.Body)
	if len(body) > 0 && body[0] == '{' {
		var page struct {
			Results []T `json:"results"`
		}
		if err := res.Response.DecodeJSON(&page); err != nil {
			return nil, transportFailure(err)
		}
		items = page.Results
	} else if err := res.Response.DecodeJSON(&items); err != nil {
		return nil, transportFailure(err)
	}
	return items, res
}

// DeleteCategory removes one category.
func (c *Client) DeleteCategory(ctx context.Context, sess *session.Session, id uuid.UUID) Result {
	return c.gateway.Do(ctx, sess, http.MethodDelete, c.URL(itemPath(PathCategories, id)), nil)
}

// DeleteUnit removes one unit.
func (c *Client) DeleteUnit(ctx context.Context, sess *session.Session, id uuid.UUID) Result {
	return c.gateway.Do(ctx, sess, http.MethodDelete, c.URL(itemPath(PathUnits, id)), nil)
}

// DeleteProducts removes several products in one call.
func (c *Client) DeleteProducts(ctx context.Context, sess *session.Session, ids []uuid.UUID) Result {
	body := struct {
		IDs []string `json:"ids"`
	}{IDs: make([]string, 0, len(ids))}
	for _, id := range ids {
		body.IDs = append(body.IDs, id.String())
	}
	return c.gateway.Do(ctx, sess, http.MethodPost, c.URL(PathBulkDelete), body)
}

// ProductInput is the writable part of a product. Empty category and unit
// identifiers are left out of the payload.
type ProductInput struct {
	Name     string `json:"name"`
	SKU      string `json:"sku"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
	Category string `json:"category,omitempty"`
	Unit     string `json:"unit,omitempty"`
}

// CategoryInput is the writable part of a category.
type CategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UnitInput is the writable part of a unit.
type UnitInput struct {
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}

func itemPath(collection string, id uuid.UUID) string {
	return collection + id.String() + "/"
}

// get fetches a single item of a collection.
func get[T any](ctx context.Context, c *Client, sess *session.Session, path string) (T, Result) {
	var item T
	res := c.gateway.Do(ctx, sess, http.MethodGet, c.URL(path), nil)
	if res.Kind != KindSuccess {
		return item, res
	}
	if err := res.Response.DecodeJSON(&item); err != nil {
		return item, transportFailure(err)
	}
	return item, res
}

// GetProduct returns one product.
func (c *Client) GetProduct(ctx context.Context, sess *session.Session, id uuid.UUID) (Product, Result) {
	return get[Product](ctx, c, sess, itemPath(PathProducts, id))
}

// CreateProduct adds a product.
func (c *Client) CreateProduct(ctx context.Context, sess *session.Session, in ProductInput) Result {
	return c.gateway.Do(ctx, sess, http.MethodPost, c.URL(PathProducts), in)
}

// UpdateProduct replaces a product.
func (c *Client) UpdateProduct(ctx context.Context, sess *session.Session, id uuid.UUID, in ProductInput) Result {
	return c.gateway.Do(ctx, sess, http.MethodPut, c.URL(itemPath(PathProducts, id)), in)
}

// GetCategory returns one category.
func (c *Client) GetCategory(ctx context.Context, sess *session.Session, id uuid.UUID) (Category, Result) {
	return get[Category](ctx, c, sess, itemPath(PathCategories, id))
}

// CreateCategory adds a category.
func (c *Client) CreateCategory(ctx context.Context, sess *session.Session, in CategoryInput) Result {
	return c.gateway.Do(ctx, sess, http.MethodPost, c.URL(PathCategories), in)
}

// UpdateCategory replaces a category.
func (c *Client) UpdateCategory(ctx context.Context, sess *session.Session, id uuid.UUID, in CategoryInput) Result {
	return c.gateway.Do(ctx, sess, http.MethodPut, c.URL(itemPath(PathCategories, id)), in)
}

// GetUnit returns one unit.
func (c *Client) GetUnit(ctx context.Context, sess *session.Session, id uuid.UUID) (Unit, Result) {
	return get[Unit](ctx, c, sess, itemPath(PathUnits, id))
}

// CreateUnit adds a unit.
func (c *Client) CreateUnit(ctx context.Context, sess *session.Session, in UnitInput) Result {
	return c.gateway.Do(ctx, sess, http.MethodPost, c.URL(PathUnits), in)
}

// UpdateUnit replaces a unit.
func (c *Client) UpdateUnit(ctx context.Context, sess *session.Session, id uuid.UUID, in UnitInput) Result {
	return c.gateway.Do(ctx, sess, http.MethodPut, c.URL(itemPath(PathUnits, id)), in)
}
