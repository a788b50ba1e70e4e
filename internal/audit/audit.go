// Package audit records every authentication and authorization decision
// as an immutable append-only log entry.
package audit

import (
	"context"
	"strings"
	"time"
)

// ActorUnknown marks entries for pre-authentication failures where no
// identity could be resolved.
const ActorUnknown = "unknown"

// Action kinds form a closed enumeration.
const (
	ActionRegister        = "auth.register"
	ActionLogin           = "auth.login"
	ActionLogout          = "auth.logout"
	ActionDelegatedLogin  = "auth.delegated_login"
	ActionSessionRefresh  = "auth.session_refresh"
	ActionTwoFactorSetup  = "auth.2fa.setup"
	ActionTwoFactorVerify = "auth.2fa.verify"
	ActionAccessDenied    = "authz.denied"
	ActionSettingsUpdate  = "settings.update"
	ActionAPIKeyCreate    = "apikey.create"
	ActionAPIKeyVerify    = "apikey.verify"
	ActionAPIKeyRevoke    = "apikey.revoke"
)

// Entry is one security-relevant event. Entries are never updated or
// deleted by application code.
type Entry struct {
	ID           string            `json:"id"`
	OccurredAt   time.Time         `json:"occurred_at"`
	ActorID      string            `json:"actor_id"`
	ActorRole    string            `json:"actor_role,omitempty"`
	Action       string            `json:"action"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	Success      bool              `json:"success"`
	Detail       map[string]string `json:"detail,omitempty"`
	IP           string            `json:"ip,omitempty"`
	UserAgent    string            `json:"user_agent,omitempty"`
}

// Filter narrows the operator listing. Zero values mean "any".
type Filter struct {
	Action       string
	ResourceType string
	Success      *bool
	From         time.Time
	To           time.Time
	Query        string
	Limit        int
}

// Store appends and lists immutable entries.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

// Matches reports whether an entry satisfies the filter. Shared by the
// in-memory store and kept exported so store implementations agree on
// the free-text semantics.
func (f Filter) Matches(e Entry) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.ResourceType != "" && e.ResourceType != f.ResourceType {
		return false
	}
	if f.Success != nil && e.Success != *f.Success {
		return false
	}
	if !f.From.IsZero() && e.OccurredAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.OccurredAt.After(f.To) {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(e.ActorID), q) &&
			!strings.Contains(strings.ToLower(e.ResourceID), q) {
			return false
		}
	}
	return true
}
