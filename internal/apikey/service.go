package apikey

import (
	"context"
	"errors"
	"strings"
	"time"

	"alwr.org/internal/audit"
	"alwr.org/internal/credentials"
	"alwr.org/internal/ids"
	"alwr.org/internal/obs"
)

// Service is the API key gateway: creation, verification, revocation and
// listing. Verification never discloses to the caller why a key was
// rejected; the audit trail keeps the distinction.
type Service struct {
	store Store
	audit *audit.Recorder
	now   func() time.Time
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

// NewService constructs the gateway.
func NewService(store Store, rec *audit.Recorder, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("apikey: store is required")
	}
	if rec == nil {
		return nil, errors.New("apikey: audit recorder is required")
	}
	s := &Service{store: store, audit: rec, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Actor identifies who performed an administrative action, for audit.
type Actor struct {
	ID        string
	Role      string
	IP        string
	UserAgent string
}

// CreateInput is the key creation payload.
type CreateInput struct {
	Name        string
	Permissions []string
	ExpiresAt   *time.Time
	Actor       Actor
}

// Create mints a new key. The raw secret is returned exactly once, here;
// afterwards only the mask is ever available.
func (s *Service) Create(ctx context.Context, input CreateInput) (string, *Key, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" || len(input.Permissions) == 0 {
		return "", nil, ErrInvalidInput
	}
	seen := make(map[string]bool, len(input.Permissions))
	perms := make([]string, 0, len(input.Permissions))
	for _, perm := range input.Permissions {
		if !ValidPermission(perm) {
			return "", nil, ErrInvalidInput
		}
		if !seen[perm] {
			seen[perm] = true
			perms = append(perms, perm)
		}
	}
	now := s.now().UTC()
	if input.ExpiresAt != nil && !input.ExpiresAt.After(now) {
		return "", nil, ErrInvalidInput
	}

	raw, err := credentials.GenerateAPIKey()
	if err != nil {
		return "", nil, err
	}
	key := &Key{
		ID:          ids.New(),
		Name:        name,
		Hash:        credentials.HashAPIKey(raw),
		Masked:      credentials.MaskAPIKey(raw),
		Permissions: perms,
		CreatedBy:   input.Actor.ID,
		CreatedAt:   now,
		ExpiresAt:   input.ExpiresAt,
	}
	if err := s.store.Create(ctx, key); err != nil {
		return "", nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID: input.Actor.ID, ActorRole: input.Actor.Role,
		Action: audit.ActionAPIKeyCreate, ResourceType: "apikey", ResourceID: key.ID,
		Success: true, Detail: map[string]string{"name": name},
		IP: input.Actor.IP, UserAgent: input.Actor.UserAgent,
	})
	return raw, key, nil
}

// Verify resolves a raw presented key. Every rejection is ErrInvalidKey;
// the audit entry carries the real reason.
func (s *Service) Verify(ctx context.Context, rawKey, ip, userAgent string) (*Key, error) {
	if !credentials.LooksLikeAPIKey(rawKey) {
		s.auditVerify(ctx, "", false, "malformed", ip, userAgent)
		obs.ObserveAPIKeyCheck("malformed")
		return nil, ErrInvalidKey
	}

	key, err := s.store.FindByHash(ctx, credentials.HashAPIKey(rawKey))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.auditVerify(ctx, "", false, "not_found", ip, userAgent)
			obs.ObserveAPIKeyCheck("not_found")
			return nil, ErrInvalidKey
		}
		return nil, err
	}

	now := s.now().UTC()
	if key.Revoked() {
		s.auditVerify(ctx, key.ID, false, "revoked", ip, userAgent)
		obs.ObserveAPIKeyCheck("revoked")
		return nil, ErrInvalidKey
	}
	if key.Expired(now) {
		s.auditVerify(ctx, key.ID, false, "expired", ip, userAgent)
		obs.ObserveAPIKeyCheck("expired")
		return nil, ErrInvalidKey
	}

	if err := s.store.RecordUsage(ctx, key.ID, now); err != nil {
		return nil, err
	}
	s.auditVerify(ctx, key.ID, true, "", ip, userAgent)
	obs.ObserveAPIKeyCheck("success")
	return key, nil
}

// Revoke permanently disables the key. Revoking an already-revoked key
// is a no-op; revocation is never undone.
func (s *Service) Revoke(ctx context.Context, id string, actor Actor) error {
	key, err := s.store.Find(ctx, id)
	if err != nil {
		return err
	}
	if key.Revoked() {
		return nil
	}
	if err := s.store.Revoke(ctx, id, actor.ID, s.now().UTC()); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID: actor.ID, ActorRole: actor.Role,
		Action: audit.ActionAPIKeyRevoke, ResourceType: "apikey", ResourceID: id,
		Success: true, Detail: map[string]string{"name": key.Name},
		IP: actor.IP, UserAgent: actor.UserAgent,
	})
	return nil
}

// List returns all keys, masked. Raw secrets are unrecoverable.
func (s *Service) List(ctx context.Context) ([]Key, error) {
	return s.store.List(ctx)
}

// Find returns one key by id, masked.
func (s *Service) Find(ctx context.Context, id string) (*Key, error) {
	return s.store.Find(ctx, id)
}

func (s *Service) auditVerify(ctx context.Context, keyID string, success bool, reason, ip, userAgent string) {
	entry := audit.Entry{
		Action:       audit.ActionAPIKeyVerify,
		ResourceType: "apikey",
		ResourceID:   keyID,
		Success:      success,
		IP:           ip,
		UserAgent:    userAgent,
	}
	if reason != "" {
		entry.Detail = map[string]string{"reason": reason}
	}
	s.audit.Record(ctx, entry)
}
