package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"alwr.org/internal/audit"
	"alwr.org/internal/credentials"
	"alwr.org/internal/ids"
	"alwr.org/internal/lockout"
	"alwr.org/internal/obs"
)

const (
	defaultSessionTTL = 12 * time.Hour
	defaultIdleTTL    = 30 * time.Minute

	backupCodeCount   = 8
	minPasswordLength = 8
)

// Service resolves request identities and drives every session
// transition: password login with lockout, delegated login, logout,
// two-factor enrollment and verification.
type Service struct {
	identities IdentityStore
	sessions   SessionStore
	audit      *audit.Recorder
	refresher  TokenRefresher

	now        func() time.Time
	sessionTTL time.Duration
	idleTTL    time.Duration
	pepper     []byte
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSessionTTL configures the absolute session lifetime.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithIdleTTL configures the sliding idle deadline.
func WithIdleTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.idleTTL = ttl
		}
	}
}

// WithSessionSecret keys the session token hash with a server-side
// secret, so a leaked sessions table alone cannot be replayed.
func WithSessionSecret(secret string) ServiceOption {
	return func(s *Service) {
		s.pepper = []byte(secret)
	}
}

// WithRefresher wires the delegated-provider token refresher.
func WithRefresher(r TokenRefresher) ServiceOption {
	return func(s *Service) {
		s.refresher = r
	}
}

// NewService constructs the authenticator.
func NewService(identities IdentityStore, sessions SessionStore, rec *audit.Recorder, opts ...ServiceOption) (*Service, error) {
	if identities == nil || sessions == nil {
		return nil, errors.New("auth: identity and session stores are required")
	}
	if rec == nil {
		return nil, errors.New("auth: audit recorder is required")
	}
	s := &Service{
		identities: identities,
		sessions:   sessions,
		audit:      rec,
		now:        time.Now,
		sessionTTL: defaultSessionTTL,
		idleTTL:    defaultIdleTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RequestMeta carries per-request audit context.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// RegisterInput is the self-registration payload.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Meta      RequestMeta
}

// Register creates a local identity in pending-approval state.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*Identity, error) {
	email := normalizeEmail(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidInput
	}
	if len(input.Password) < minPasswordLength {
		return nil, ErrInvalidInput
	}
	if existing, err := s.identities.FindByEmail(ctx, email); err == nil && existing != nil {
		return nil, ErrEmailTaken
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := credentials.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	identity := &Identity{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Source:       SourceLocal,
		Role:         RoleUser,
		Status:       StatusPending,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      identity.ID,
		ActorRole:    identity.Role,
		Action:       audit.ActionRegister,
		ResourceType: "identity",
		ResourceID:   identity.ID,
		Success:      true,
		IP:           input.Meta.IP,
		UserAgent:    input.Meta.UserAgent,
	})
	return identity, nil
}

// LoginInput is the password login payload. TOTPCode or BackupCode is
// consulted only when the identity has two-factor enabled.
type LoginInput struct {
	Email      string
	Password   string
	TOTPCode   string
	BackupCode string
	Meta       RequestMeta
}

// Login authenticates email+password, enforcing the lockout policy, and
// returns the identity together with a fresh opaque session token.
//
// A correct password resets the failed-login counter before the
// two-factor check runs: password guessing and 2FA guessing are treated
// as separate attack surfaces.
func (s *Service) Login(ctx context.Context, input LoginInput) (*Identity, string, error) {
	email := normalizeEmail(input.Email)
	now := s.now().UTC()

	identity, err := s.identities.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Same response and same bcrypt cost as a wrong password:
			// no existence oracle, by message or by latency.
			_ = credentials.VerifyPassword(input.Password, phantomHash)
			s.auditLogin(ctx, audit.ActorUnknown, "", false, "unknown_email", input.Meta)
			obs.ObserveLogin("invalid_credentials")
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if lockout.Locked(identity.LockedUntil, now) {
		// Locked accounts do not accrue further failures.
		s.auditLogin(ctx, identity.ID, identity.Role, false, "locked", input.Meta)
		obs.ObserveLogin("locked")
		return nil, "", ErrAccountLocked
	}

	if err := credentials.VerifyPassword(input.Password, identity.PasswordHash); err != nil {
		count, ferr := s.identities.RecordLoginFailure(ctx, identity.ID)
		if ferr != nil {
			return nil, "", ferr
		}
		if count >= lockout.Threshold {
			until := lockout.LockUntil(count, now)
			if lerr := s.identities.SetLock(ctx, identity.ID, until); lerr != nil {
				return nil, "", lerr
			}
			s.auditLogin(ctx, identity.ID, identity.Role, false, "lock_triggered", input.Meta)
			obs.ObserveLogin("locked")
			return nil, "", ErrAccountLocked
		}
		s.auditLogin(ctx, identity.ID, identity.Role, false, "wrong_password", input.Meta)
		obs.ObserveLogin("invalid_credentials")
		return nil, "", ErrInvalidCredentials
	}

	switch identity.Status {
	case StatusPending:
		s.auditLogin(ctx, identity.ID, identity.Role, false, "pending_approval", input.Meta)
		obs.ObserveLogin("pending")
		return nil, "", ErrAccountPending
	case StatusDisabled:
		s.auditLogin(ctx, identity.ID, identity.Role, false, "disabled", input.Meta)
		obs.ObserveLogin("invalid_credentials")
		return nil, "", ErrAccountDisabled
	}

	if err := s.identities.RecordLoginSuccess(ctx, identity.ID, now); err != nil {
		return nil, "", err
	}

	if identity.TOTPEnabled {
		if err := s.checkSecondFactor(ctx, identity, input, now); err != nil {
			s.auditLogin(ctx, identity.ID, identity.Role, false, "two_factor", input.Meta)
			obs.ObserveLogin("invalid_credentials")
			return nil, "", err
		}
	}

	token, err := s.createSession(ctx, identity, SourceLocal, nil)
	if err != nil {
		return nil, "", err
	}
	s.auditLogin(ctx, identity.ID, identity.Role, true, "", input.Meta)
	obs.ObserveLogin("success")
	return identity, token, nil
}

func (s *Service) checkSecondFactor(ctx context.Context, identity *Identity, input LoginInput, now time.Time) error {
	if input.TOTPCode == "" && input.BackupCode == "" {
		return ErrTwoFactorRequired
	}
	if input.TOTPCode != "" && credentials.VerifyTOTPCodeAt(identity.TOTPSecret, input.TOTPCode, now) {
		return nil
	}
	if input.BackupCode != "" {
		remaining, ok := credentials.ConsumeBackupCode(identity.BackupCodes, input.BackupCode)
		if ok {
			if err := s.identities.SetBackupCodes(ctx, identity.ID, remaining); err != nil {
				return err
			}
			return nil
		}
	}
	return ErrTwoFactorInvalid
}

// DelegatedLogin provisions an identity from verified identity-provider
// claims and opens a session. The identity is keyed by the verified
// claims, never by anything the client supplied directly.
func (s *Service) DelegatedLogin(ctx context.Context, claims DelegatedClaims, provider ProviderTokens, meta RequestMeta) (*Identity, string, error) {
	if claims.Subject == "" || normalizeEmail(claims.Email) == "" {
		return nil, "", ErrInvalidInput
	}
	claims.Email = normalizeEmail(claims.Email)

	identity, err := s.identities.UpsertDelegated(ctx, claims)
	if err != nil {
		return nil, "", err
	}
	// A provider login does not bypass local gating: a pending local
	// registration stays pending, a disabled account stays out.
	switch identity.Status {
	case StatusPending:
		s.audit.Record(ctx, audit.Entry{
			ActorID: identity.ID, ActorRole: identity.Role,
			Action: audit.ActionDelegatedLogin, ResourceType: "identity", ResourceID: identity.ID,
			Success: false, Detail: map[string]string{"reason": "pending_approval"},
			IP: meta.IP, UserAgent: meta.UserAgent,
		})
		return nil, "", ErrAccountPending
	case StatusDisabled:
		s.audit.Record(ctx, audit.Entry{
			ActorID: identity.ID, ActorRole: identity.Role,
			Action: audit.ActionDelegatedLogin, ResourceType: "identity", ResourceID: identity.ID,
			Success: false, Detail: map[string]string{"reason": "disabled"},
			IP: meta.IP, UserAgent: meta.UserAgent,
		})
		return nil, "", ErrAccountDisabled
	}

	token, err := s.createSession(ctx, identity, SourceDelegated, &provider)
	if err != nil {
		return nil, "", err
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID: identity.ID, ActorRole: identity.Role,
		Action: audit.ActionDelegatedLogin, ResourceType: "identity", ResourceID: identity.ID,
		Success: true, IP: meta.IP, UserAgent: meta.UserAgent,
	})
	return identity, token, nil
}

// Authenticate resolves an opaque session token into an Identity.
// Returns ErrInvalidToken for garbage tokens and ErrSessionExpired when
// the session or its delegated provider material has lapsed.
func (s *Service) Authenticate(ctx context.Context, token string) (*Identity, error) {
	sessionID, secret, err := splitSessionToken(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	session, err := s.sessions.Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !s.compareSecret(session.TokenHash, secret) {
		return nil, ErrInvalidToken
	}

	now := s.now().UTC()
	if now.After(session.ExpiresAt) || now.After(session.IdleAfter) {
		_ = s.sessions.Delete(ctx, session.ID)
		return nil, ErrSessionExpired
	}

	if session.Source == SourceDelegated && session.ProviderExpiresAt != nil && now.After(*session.ProviderExpiresAt) {
		if err := s.refreshDelegated(ctx, session); err != nil {
			_ = s.sessions.Delete(ctx, session.ID)
			return nil, ErrSessionExpired
		}
	}

	if err := s.sessions.Touch(ctx, session.ID, now.Add(s.idleTTL)); err != nil {
		return nil, err
	}

	identity, err := s.identities.Find(ctx, session.IdentityID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, err
	}
	if identity.Status != StatusActive {
		// The account lost its standing after the session was minted;
		// revoke every session it still holds.
		_ = s.sessions.DeleteByIdentity(ctx, identity.ID)
		return nil, ErrSessionExpired
	}
	return identity, nil
}

// refreshDelegated rotates provider tokens transparently. A refresh
// failure means the session is expired, not silently kept alive.
func (s *Service) refreshDelegated(ctx context.Context, session *Session) error {
	if s.refresher == nil || session.RefreshToken == "" {
		s.auditRefresh(ctx, session, false, "no_refresh_token")
		return ErrSessionExpired
	}
	tokens, err := s.refresher.Refresh(ctx, session.RefreshToken)
	if err != nil {
		s.auditRefresh(ctx, session, false, "provider_refused")
		return ErrSessionExpired
	}
	if err := s.sessions.UpdateProviderTokens(ctx, session.ID, tokens.RefreshToken, tokens.ExpiresAt); err != nil {
		return err
	}
	session.RefreshToken = tokens.RefreshToken
	expires := tokens.ExpiresAt
	session.ProviderExpiresAt = &expires
	s.auditRefresh(ctx, session, true, "")
	return nil
}

// Logout destroys the session. Idempotent: a missing or garbage token is
// treated as already logged out.
func (s *Service) Logout(ctx context.Context, token string, meta RequestMeta) error {
	sessionID, secret, err := splitSessionToken(token)
	if err != nil {
		return nil
	}
	session, err := s.sessions.Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if !s.compareSecret(session.TokenHash, secret) {
		return nil
	}
	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID: session.IdentityID, Action: audit.ActionLogout,
		ResourceType: "session", ResourceID: session.ID, Success: true,
		IP: meta.IP, UserAgent: meta.UserAgent,
	})
	return nil
}

// TwoFactorEnrollment is returned by SetupTwoFactor. Nothing is persisted
// until the user proves possession of the secret via VerifyTwoFactor.
type TwoFactorEnrollment struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

// SetupTwoFactor generates a fresh TOTP secret and backup code set for
// the identity.
func (s *Service) SetupTwoFactor(ctx context.Context, identityID string) (TwoFactorEnrollment, error) {
	identity, err := s.identities.Find(ctx, identityID)
	if err != nil {
		return TwoFactorEnrollment{}, err
	}
	enrollment, err := credentials.GenerateTOTPSecret(identity.Email)
	if err != nil {
		return TwoFactorEnrollment{}, err
	}
	codes, err := credentials.GenerateBackupCodes(backupCodeCount)
	if err != nil {
		return TwoFactorEnrollment{}, err
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID: identity.ID, ActorRole: identity.Role,
		Action: audit.ActionTwoFactorSetup, ResourceType: "identity", ResourceID: identity.ID,
		Success: true,
	})
	return TwoFactorEnrollment{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		BackupCodes:     codes,
	}, nil
}

// VerifyTwoFactor enables 2FA once the submitted code validates against
// the enrollment secret.
func (s *Service) VerifyTwoFactor(ctx context.Context, identityID, secret, code string, backupCodes []string) error {
	identity, err := s.identities.Find(ctx, identityID)
	if err != nil {
		return err
	}
	if !credentials.VerifyTOTPCodeAt(secret, code, s.now()) {
		s.audit.Record(ctx, audit.Entry{
			ActorID: identity.ID, ActorRole: identity.Role,
			Action: audit.ActionTwoFactorVerify, ResourceType: "identity", ResourceID: identity.ID,
			Success: false, Detail: map[string]string{"reason": "invalid_code"},
		})
		return ErrTwoFactorInvalid
	}
	if err := s.identities.SetTwoFactor(ctx, identity.ID, secret, true, backupCodes); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID: identity.ID, ActorRole: identity.Role,
		Action: audit.ActionTwoFactorVerify, ResourceType: "identity", ResourceID: identity.ID,
		Success: true,
	})
	return nil
}

// TwoFactorStatus reports whether 2FA is enabled for the identity.
func (s *Service) TwoFactorStatus(ctx context.Context, identityID string) (bool, error) {
	identity, err := s.identities.Find(ctx, identityID)
	if err != nil {
		return false, err
	}
	return identity.TOTPEnabled, nil
}

func (s *Service) createSession(ctx context.Context, identity *Identity, source string, provider *ProviderTokens) (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)

	now := s.now().UTC()
	session := &Session{
		ID:         ids.New(),
		IdentityID: identity.ID,
		TokenHash:  s.hashSecret(secret),
		Source:     source,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.sessionTTL),
		IdleAfter:  now.Add(s.idleTTL),
	}
	if provider != nil && provider.RefreshToken != "" {
		session.RefreshToken = provider.RefreshToken
		expires := provider.ExpiresAt
		session.ProviderExpiresAt = &expires
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", err
	}
	return session.ID + "." + secret, nil
}

func (s *Service) auditLogin(ctx context.Context, actorID, actorRole string, success bool, reason string, meta RequestMeta) {
	entry := audit.Entry{
		ActorID:      actorID,
		ActorRole:    actorRole,
		Action:       audit.ActionLogin,
		ResourceType: "identity",
		ResourceID:   actorID,
		Success:      success,
		IP:           meta.IP,
		UserAgent:    meta.UserAgent,
	}
	if reason != "" {
		entry.Detail = map[string]string{"reason": reason}
	}
	s.audit.Record(ctx, entry)
}

func (s *Service) auditRefresh(ctx context.Context, session *Session, success bool, reason string) {
	entry := audit.Entry{
		ActorID:      session.IdentityID,
		Action:       audit.ActionSessionRefresh,
		ResourceType: "session",
		ResourceID:   session.ID,
		Success:      success,
	}
	if reason != "" {
		entry.Detail = map[string]string{"reason": reason}
	}
	s.audit.Record(ctx, entry)
}

func splitSessionToken(raw string) (id, secret string, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid session token format")
	}
	return parts[0], parts[1], nil
}

func (s *Service) hashSecret(secret string) string {
	mac := hmac.New(sha256.New, s.pepper)
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Service) compareSecret(expectedHash, secret string) bool {
	actual := s.hashSecret(secret)
	if len(actual) != len(expectedHash) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// phantomHash gives the unknown-email login branch the same bcrypt cost
// as a real password comparison.
var phantomHash = func() string {
	hash, err := credentials.HashPassword("phantom-password-for-timing")
	if err != nil {
		panic(err)
	}
	return hash
}()
