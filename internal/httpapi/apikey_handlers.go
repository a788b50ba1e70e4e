package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"alwr.org/internal/apikey"
	"alwr.org/internal/audit"
	"alwr.org/internal/auth"
	"alwr.org/internal/ids"
)

type createAPIKeyRequest struct {
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions"`
	ExpiresIn   int        `json:"expires_in"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

type createAPIKeyResponse struct {
	Key    string      `json:"key"`
	Record *apikey.Key `json:"record"`
}

func (a *API) handleAPIKeys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		keys, err := a.apiKeys.List(r.Context())
		if err != nil {
			handleAPIKeyError(w, r, err)
			return
		}
		if keys == nil {
			keys = []apikey.Key{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
	case http.MethodPost:
		a.handleAPIKeyCreate(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAPIKeyCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req createAPIKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	expiresAt := req.ExpiresAt
	if req.ExpiresIn > 0 {
		// expires_in is seconds from now and wins over expires_at.
		at := time.Now().UTC().Add(time.Duration(req.ExpiresIn) * time.Second)
		expiresAt = &at
	}
	raw, key, err := a.apiKeys.Create(r.Context(), apikey.CreateInput{
		Name:        req.Name,
		Permissions: req.Permissions,
		ExpiresAt:   expiresAt,
		Actor:       a.actor(r),
	})
	if err != nil {
		handleAPIKeyError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/admin/apikeys/"+key.ID)
	// The raw key appears in this response and nowhere else, ever.
	writeJSON(w, http.StatusCreated, createAPIKeyResponse{Key: raw, Record: key})
}

func (a *API) handleAPIKeyScoped(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/admin/apikeys/"), "/")
	if id == "" || strings.Contains(id, "/") || !ids.Valid(id) {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		key, err := a.apiKeys.Find(r.Context(), id)
		if err != nil {
			handleAPIKeyError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, key)
	case http.MethodDelete:
		if err := a.apiKeys.Revoke(r.Context(), id, a.actor(r)); err != nil {
			handleAPIKeyError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "revoked"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	q := r.URL.Query()
	filter := audit.Filter{
		Action:       q.Get("action"),
		ResourceType: q.Get("resource_type"),
		Query:        q.Get("q"),
	}
	if v := q.Get("success"); v != "" {
		success, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "success must be a boolean")
			return
		}
		filter.Success = &success
	}
	for param, dst := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		if v := q.Get(param); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, param+" must be RFC3339")
				return
			}
			*dst = t
		}
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	entries, err := a.audit.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) actor(r *http.Request) apikey.Actor {
	actor := apikey.Actor{IP: clientIP(r), UserAgent: r.UserAgent()}
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		actor.ID = identity.ID
		actor.Role = identity.Role
	}
	return actor
}

func handleAPIKeyError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apikey.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, apikey.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
