package auth

import (
	"context"
	"time"
)

// IdentityStore manages identity records. Login bookkeeping mutations are
// expressed as single statements so concurrent attempts cannot lose
// counter increments to a read-modify-write race.
type IdentityStore interface {
	Create(ctx context.Context, identity *Identity) error
	Find(ctx context.Context, id string) (*Identity, error)
	FindByEmail(ctx context.Context, email string) (*Identity, error)

	// RecordLoginFailure atomically increments the failed-login counter
	// and returns the new count.
	RecordLoginFailure(ctx context.Context, id string) (int, error)
	// SetLock persists the lock expiry computed from the failure count.
	SetLock(ctx context.Context, id string, until time.Time) error
	// RecordLoginSuccess resets the counter, clears any lock and stamps
	// the last successful login.
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error

	// UpsertDelegated provisions or refreshes an identity from verified
	// identity-provider claims, keyed by email.
	UpsertDelegated(ctx context.Context, claims DelegatedClaims) (*Identity, error)

	SetTwoFactor(ctx context.Context, id, secret string, enabled bool, backupCodes []string) error
	SetBackupCodes(ctx context.Context, id string, codes []string) error
	SetStatus(ctx context.Context, id, status string) error
}

// SessionStore manages server-side session records.
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	Find(ctx context.Context, id string) (*Session, error)
	// Touch extends the idle deadline after successful resolution.
	Touch(ctx context.Context, id string, idleAfter time.Time) error
	// UpdateProviderTokens stores rotated delegated-provider material.
	UpdateProviderTokens(ctx context.Context, id, refreshToken string, expiresAt time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteByIdentity(ctx context.Context, identityID string) error
}

// TokenRefresher exchanges a delegated refresh token for fresh provider
// tokens. Implemented against the identity provider's token endpoint.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (ProviderTokens, error)
}
