package httpapi

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"alwr.org/internal/apikey"
	"alwr.org/internal/ids"
)

// Customer is the registry record integrators read and write through the
// machine API.
type Customer struct {
	ID              string    `json:"id"`
	FullName        string    `json:"full_name"`
	DateOfBirth     string    `json:"date_of_birth"`
	DirectiveOnFile bool      `json:"directive_on_file"`
	RegisteredAt    time.Time `json:"registered_at"`
}

type customerDirectory struct {
	mu   sync.Mutex
	byID map[string]*Customer
}

func newCustomerDirectory() *customerDirectory {
	return &customerDirectory{byID: make(map[string]*Customer)}
}

func (d *customerDirectory) add(c *Customer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[c.ID] = c
}

func (d *customerDirectory) get(id string) (*Customer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.byID[id]
	if !ok {
		return nil, false
	}
	clone := *c
	return &clone, true
}

func (d *customerDirectory) list() []Customer {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Customer, 0, len(d.byID))
	for _, c := range d.byID {
		out = append(out, *c)
	}
	return out
}

type createCustomerRequest struct {
	FullName        string `json:"full_name"`
	DateOfBirth     string `json:"date_of_birth"`
	DirectiveOnFile bool   `json:"directive_on_file"`
}

// handleCustomers dispatches by method so reads and writes can demand
// different key scopes.
func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.RequireAPIKeyPermission(http.HandlerFunc(a.listCustomers), apikey.PermReadCustomers).ServeHTTP(w, r)
	case http.MethodPost:
		a.RequireAPIKeyPermission(http.HandlerFunc(a.createCustomer), apikey.PermWriteCustomers).ServeHTTP(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listCustomers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"customers": a.customers.list()})
}

func (a *API) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req createCustomerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.FullName) == "" {
		writeError(w, r, http.StatusBadRequest, "full_name is required")
		return
	}
	customer := &Customer{
		ID:              ids.New(),
		FullName:        strings.TrimSpace(req.FullName),
		DateOfBirth:     strings.TrimSpace(req.DateOfBirth),
		DirectiveOnFile: req.DirectiveOnFile,
		RegisteredAt:    time.Now().UTC(),
	}
	a.customers.add(customer)
	w.Header().Set("Location", "/api/v1/customers/"+customer.ID)
	writeJSON(w, http.StatusCreated, customer)
}

func (a *API) handleCustomerByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/customers/"), "/")
	if id == "" || strings.Contains(id, "/") || !ids.Valid(id) {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	customer, ok := a.customers.get(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "customer not found")
		return
	}
	writeJSON(w, http.StatusOK, customer)
}
