package httpapi

import (
	"net/http"
	"strconv"

	"alwr.org/internal/audit"
	"alwr.org/internal/auth"
	"alwr.org/internal/settings"
)

type settingsResponse struct {
	RegistrationOpen bool `json:"registration_open"`
}

type updateSettingsRequest struct {
	RegistrationOpen *bool `json:"registration_open"`
}

func (a *API) handleSettings(w http.ResponseWriter, r *http.Request) {
	if a.settings == nil || a.regOpen == nil {
		writeError(w, r, http.StatusServiceUnavailable, "settings store unavailable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		open, err := a.regOpen.Get(r.Context())
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, settingsResponse{RegistrationOpen: open})
	case http.MethodPut:
		var req updateSettingsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if req.RegistrationOpen == nil {
			writeError(w, r, http.StatusBadRequest, "registration_open is required")
			return
		}
		value := strconv.FormatBool(*req.RegistrationOpen)
		if err := a.settings.SetValue(r.Context(), settings.KeyRegistrationOpen, value); err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		a.regOpen.Invalidate()

		entry := audit.Entry{
			Action:       audit.ActionSettingsUpdate,
			ResourceType: "setting",
			ResourceID:   settings.KeyRegistrationOpen,
			Success:      true,
			Detail:       map[string]string{"value": value},
			IP:           clientIP(r),
			UserAgent:    r.UserAgent(),
		}
		if identity, ok := auth.IdentityFromContext(r.Context()); ok {
			entry.ActorID = identity.ID
			entry.ActorRole = identity.Role
		}
		a.audit.Record(r.Context(), entry)

		writeJSON(w, http.StatusOK, settingsResponse{RegistrationOpen: *req.RegistrationOpen})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}
