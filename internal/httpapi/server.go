package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"go.uber.org/zap"

	"alwr.org/internal/apikey"
	"alwr.org/internal/audit"
	"alwr.org/internal/auth"
	"alwr.org/internal/config"
	"alwr.org/internal/obs"
	"alwr.org/internal/settings"
)

// ReadyProbe reports whether downstream dependencies answer.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options wires the API's collaborators.
type Options struct {
	Auth     *auth.Service
	APIKeys  *apikey.Service
	Audit    *audit.Recorder
	Verifier *auth.DelegatedVerifier

	Settings         settings.Store
	RegistrationOpen *settings.Cache[bool]

	Mode       string
	AdminIPs   []string
	SessionTTL time.Duration

	LoginRateBurst     int
	LoginRatePerSecond int

	ReadyProbe ReadyProbe
	Version    string
	Logger     *zap.Logger
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	apiKeys    *apikey.Service
	audit      *audit.Recorder
	verifier   *auth.DelegatedVerifier
	readyProbe ReadyProbe
	customers  *customerDirectory
	settings   settings.Store
	regOpen    *settings.Cache[bool]
	log        *zap.Logger

	mode         string
	adminIPs     []string
	sessionTTL   time.Duration
	cookieSecure bool
	version      string
}

// New assembles the routing table.
func New(opts Options) *API {
	a := &API{
		mux:        http.NewServeMux(),
		auth:       opts.Auth,
		apiKeys:    opts.APIKeys,
		audit:      opts.Audit,
		verifier:   opts.Verifier,
		readyProbe: opts.ReadyProbe,
		customers:  newCustomerDirectory(),
		settings:   opts.Settings,
		regOpen:    opts.RegistrationOpen,
		log:        opts.Logger,
		mode:       opts.Mode,
		adminIPs:   opts.AdminIPs,
		sessionTTL: opts.SessionTTL,
		version:    opts.Version,
	}
	if a.log == nil {
		a.log = zap.NewNop()
	}
	if a.sessionTTL <= 0 {
		a.sessionTTL = 12 * time.Hour
	}
	a.cookieSecure = opts.Mode != config.ModeDevelopment

	burst, perSecond := opts.LoginRateBurst, opts.LoginRatePerSecond
	if burst <= 0 {
		burst = 10
	}
	if perSecond <= 0 {
		perSecond = 3
	}

	// health/ready/metrics
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	// session authentication
	a.mux.HandleFunc("/api/auth/register", a.handleRegister)
	a.mux.Handle("/api/auth/login", RateLimit(http.HandlerFunc(a.handleLogin), burst, perSecond))
	a.mux.Handle("/api/auth/callback", RateLimit(http.HandlerFunc(a.handleDelegatedCallback), burst, perSecond))
	a.mux.HandleFunc("/api/auth/logout", a.handleLogout)
	a.mux.Handle("/api/auth/me", a.RequireAuthenticated(http.HandlerFunc(a.handleMe)))
	a.mux.Handle("/api/auth/2fa/setup", a.RequireAuthenticated(http.HandlerFunc(a.handleTwoFactorSetup)))
	a.mux.Handle("/api/auth/2fa/verify", a.RequireAuthenticated(http.HandlerFunc(a.handleTwoFactorVerify)))
	a.mux.Handle("/api/auth/2fa/status", a.RequireAuthenticated(http.HandlerFunc(a.handleTwoFactorStatus)))

	// administrative plane: authenticated admins from whitelisted IPs
	a.mux.Handle("/api/admin/apikeys", a.adminChain(http.HandlerFunc(a.handleAPIKeys)))
	a.mux.Handle("/api/admin/apikeys/create", a.adminChain(http.HandlerFunc(a.handleAPIKeyCreate)))
	a.mux.Handle("/api/admin/apikeys/", a.adminChain(http.HandlerFunc(a.handleAPIKeyScoped)))
	a.mux.Handle("/api/admin/audit", a.adminChain(http.HandlerFunc(a.handleAuditList)))
	a.mux.Handle("/api/admin/settings", a.adminChain(http.HandlerFunc(a.handleSettings)))

	// machine integration surface gated by API key scope
	a.mux.Handle("/api/v1/customers", http.HandlerFunc(a.handleCustomers))
	a.mux.Handle("/api/v1/customers/", a.RequireAPIKeyPermission(http.HandlerFunc(a.handleCustomerByID), apikey.PermReadCustomers))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

func (a *API) adminChain(next http.Handler) http.Handler {
	return a.RequireAuthenticated(a.RequireRole(a.RequireWhitelistedIP(next), auth.RoleAdmin, auth.RoleSuperAdmin))
}

// Handler returns the fully wrapped http.Handler.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.LoadIdentity(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(a.log, h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- probes ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "alwr-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- cookies ---

func (a *API) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
