package apikey

import (
	"context"
	"errors"
	"time"
)

// Permissions an API key may be scoped to. A key holds an explicit set;
// there is no wildcard.
const (
	PermReadCustomers   = "read:customers"
	PermWriteCustomers  = "write:customers"
	PermReadDirectives  = "read:directives"
	PermWriteDirectives = "write:directives"
)

// ValidPermission reports whether perm belongs to the closed vocabulary.
func ValidPermission(perm string) bool {
	switch perm {
	case PermReadCustomers, PermWriteCustomers, PermReadDirectives, PermWriteDirectives:
		return true
	}
	return false
}

var (
	ErrNotFound     = errors.New("apikey: not found")
	ErrInvalidInput = errors.New("apikey: invalid input")

	// ErrInvalidKey is the single rejection callers see. The distinct
	// causes (unknown, revoked, expired) are recorded in the audit trail
	// but never disclosed to the caller.
	ErrInvalidKey = errors.New("apikey: invalid key")
)

// Key is a stored integrator credential. The raw secret is never
// persisted; only its hash and a display mask survive creation.
type Key struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Hash        string     `json:"-"`
	Masked      string     `json:"masked"`
	Permissions []string   `json:"permissions"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	RevokedBy   string     `json:"revoked_by,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	UseCount    int64      `json:"use_count"`
}

// Revoked reports whether the key has been revoked.
func (k *Key) Revoked() bool {
	return k.RevokedAt != nil
}

// Expired reports whether the key's optional expiry has passed.
func (k *Key) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// HasPermission reports whether the key's scope includes perm.
func (k *Key) HasPermission(perm string) bool {
	for _, p := range k.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Store manages persisted API keys. Revocation is a one-way transition
// and usage bookkeeping is a single atomic statement.
type Store interface {
	Create(ctx context.Context, key *Key) error
	Find(ctx context.Context, id string) (*Key, error)
	FindByHash(ctx context.Context, hash string) (*Key, error)
	List(ctx context.Context) ([]Key, error)
	// Revoke marks the key revoked unless it already is.
	Revoke(ctx context.Context, id, revokedBy string, at time.Time) error
	// RecordUsage atomically bumps the use counter and last-used stamp.
	RecordUsage(ctx context.Context, id string, at time.Time) error
}
