package auth

import "time"

// Identity sources. Local identities carry a password hash; delegated
// identities are provisioned from identity-provider claims and have none.
const (
	SourceLocal     = "local"
	SourceDelegated = "delegated"
)

// Roles form a closed set.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
	RoleAgent      = "agent"
)

// Identity statuses. Identities are never hard-deleted; deactivation is a
// status flip so audit history keeps valid references.
const (
	StatusPending  = "pending"
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// ValidRole reports whether role belongs to the closed set.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAdmin, RoleSuperAdmin, RoleAgent:
		return true
	}
	return false
}

// Identity is a person or integrator account capable of authenticating.
// Local and delegated identities normalize into this one shape right
// after resolution; downstream code never branches on the auth scheme.
type Identity struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Source       string     `json:"source"`
	Role         string     `json:"role"`
	Status       string     `json:"status"`
	FirstName    string     `json:"first_name,omitempty"`
	LastName     string     `json:"last_name,omitempty"`
	TOTPSecret   string     `json:"-"`
	TOTPEnabled  bool       `json:"totp_enabled"`
	BackupCodes  []string   `json:"-"`
	FailedLogins int        `json:"-"`
	LockedUntil  *time.Time `json:"-"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Session binds an opaque client token to an Identity with absolute and
// idle expiry. The session store is the sole source of truth; nothing
// beyond the opaque token is trusted from the client.
type Session struct {
	ID         string
	IdentityID string
	TokenHash  string
	Source     string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	IdleAfter  time.Time

	// Delegated sessions carry provider material for transparent refresh.
	RefreshToken      string
	ProviderExpiresAt *time.Time
}

// DelegatedClaims are the verified identity-provider claims consumed by
// the upsert path. The subject comes from the verified token, never from
// anything the client chose.
type DelegatedClaims struct {
	Subject   string
	Email     string
	FirstName string
	LastName  string
}

// ProviderTokens is the result of a delegated-session refresh.
type ProviderTokens struct {
	RefreshToken string
	ExpiresAt    time.Time
}
