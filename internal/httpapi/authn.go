package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"alwr.org/internal/apikey"
	"alwr.org/internal/audit"
	"alwr.org/internal/auth"
	"alwr.org/internal/config"
)

const sessionCookieName = "alwr_session"

// LoadIdentity resolves the session cookie into a context identity.
// Anonymous or stale-session requests pass through unauthenticated;
// rejection is the job of the Require* middlewares.
func (a *API) LoadIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		identity, err := a.auth.Authenticate(r.Context(), cookie.Value)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrSessionExpired) {
				a.clearSessionCookie(w)
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), identity)))
	})
}

// RequireAuthenticated rejects requests without a resolved identity.
func (a *API) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.IdentityFromContext(r.Context()); !ok {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects authenticated identities whose role is outside the
// allowed set. Runs after RequireAuthenticated.
func (a *API) RequireRole(next http.Handler, roles ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.HasRole(r.Context(), roles...) {
			a.auditDenied(r, "role")
			writeError(w, r, http.StatusForbidden, "insufficient role")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireWhitelistedIP gates administrative surfaces by client IP. An
// empty whitelist admits everyone in development and no one otherwise:
// a production deployment that forgot to configure the list fails
// closed instead of exposing the admin plane.
func (a *API) RequireWhitelistedIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if len(a.adminIPs) == 0 {
			if a.mode == config.ModeDevelopment {
				next.ServeHTTP(w, r)
				return
			}
			a.auditDenied(r, "ip_whitelist_empty")
			writeError(w, r, http.StatusForbidden, "access denied")
			return
		}
		for _, allowed := range a.adminIPs {
			if ip == allowed {
				next.ServeHTTP(w, r)
				return
			}
		}
		a.auditDenied(r, "ip_not_whitelisted")
		writeError(w, r, http.StatusForbidden, "access denied")
	})
}

type apiKeyContextKey struct{}

// KeyFromContext extracts the verified API key, if any.
func KeyFromContext(ctx context.Context) (*apikey.Key, bool) {
	key, ok := ctx.Value(apiKeyContextKey{}).(*apikey.Key)
	return key, ok && key != nil
}

// RequireAPIKeyPermission authenticates machine clients by API key and
// checks the key's permission scope. The key rides the Authorization
// bearer header or X-Api-Key.
func (a *API) RequireAPIKeyPermission(next http.Handler, perm string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			raw = strings.TrimSpace(r.Header.Get("X-Api-Key"))
		}
		if raw == "" {
			writeError(w, r, http.StatusUnauthorized, "api key required: send Authorization: Bearer ALWR_<key>")
			return
		}
		key, err := a.apiKeys.Verify(r.Context(), raw, clientIP(r), r.UserAgent())
		if err != nil {
			if errors.Is(err, apikey.ErrInvalidKey) {
				writeError(w, r, http.StatusUnauthorized, "invalid api key")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		if !key.HasPermission(perm) {
			a.audit.Record(r.Context(), audit.Entry{
				Action:       audit.ActionAccessDenied,
				ResourceType: "apikey",
				ResourceID:   key.ID,
				Success:      false,
				Detail:       map[string]string{"reason": "permission", "required": perm},
				IP:           clientIP(r),
				UserAgent:    r.UserAgent(),
			})
			writeError(w, r, http.StatusForbidden, "permission denied")
			return
		}
		ctx := context.WithValue(r.Context(), apiKeyContextKey{}, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func (a *API) auditDenied(r *http.Request, reason string) {
	entry := audit.Entry{
		Action:       audit.ActionAccessDenied,
		ResourceType: "route",
		ResourceID:   r.URL.Path,
		Success:      false,
		Detail:       map[string]string{"reason": reason},
		IP:           clientIP(r),
		UserAgent:    r.UserAgent(),
	}
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		entry.ActorID = identity.ID
		entry.ActorRole = identity.Role
	}
	a.audit.Record(r.Context(), entry)
}
