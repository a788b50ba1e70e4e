package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"alwr.org/internal/ids"
)

var (
	_ IdentityStore = (*MemoryIdentityStore)(nil)
	_ SessionStore  = (*MemorySessionStore)(nil)
)

// MemoryIdentityStore keeps identities in process memory. Serves
// single-instance development deployments and tests.
type MemoryIdentityStore struct {
	mu         sync.Mutex
	byID       map[string]*Identity
	idsByEmail map[string]string
	now        func() time.Time
}

// NewMemoryIdentityStore constructs an empty MemoryIdentityStore.
func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{
		byID:       make(map[string]*Identity),
		idsByEmail: make(map[string]string),
		now:        time.Now,
	}
}

func (s *MemoryIdentityStore) Create(ctx context.Context, identity *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(identity.Email)
	if _, exists := s.idsByEmail[email]; exists {
		return ErrEmailTaken
	}
	clone := *identity
	s.byID[identity.ID] = &clone
	s.idsByEmail[email] = identity.ID
	return nil
}

func (s *MemoryIdentityStore) Find(ctx context.Context, id string) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *identity
	return &clone, nil
}

func (s *MemoryIdentityStore) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.idsByEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *s.byID[id]
	return &clone, nil
}

func (s *MemoryIdentityStore) RecordLoginFailure(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byID[id]
	if !ok {
		return 0, ErrNotFound
	}
	identity.FailedLogins++
	identity.UpdatedAt = s.now().UTC()
	return identity.FailedLogins, nil
}

func (s *MemoryIdentityStore) SetLock(ctx context.Context, id string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	u := until
	identity.LockedUntil = &u
	identity.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryIdentityStore) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	identity.FailedLogins = 0
	identity.LockedUntil = nil
	t := at
	identity.LastLoginAt = &t
	identity.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryIdentityStore) UpsertDelegated(ctx context.Context, claims DelegatedClaims) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(claims.Email)
	now := s.now().UTC()
	if id, ok := s.idsByEmail[email]; ok {
		identity := s.byID[id]
		identity.FirstName = claims.FirstName
		identity.LastName = claims.LastName
		identity.UpdatedAt = now
		clone := *identity
		return &clone, nil
	}
	identity := &Identity{
		ID:        ids.New(),
		Email:     email,
		Source:    SourceDelegated,
		Role:      RoleUser,
		Status:    StatusActive,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.byID[identity.ID] = identity
	s.idsByEmail[email] = identity.ID
	clone := *identity
	return &clone, nil
}

func (s *MemoryIdentityStore) SetTwoFactor(ctx context.Context, id, secret string, enabled bool, backupCodes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	identity.TOTPSecret = secret
	identity.TOTPEnabled = enabled
	identity.BackupCodes = append([]string(nil), backupCodes...)
	identity.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryIdentityStore) SetBackupCodes(ctx context.Context, id string, codes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	identity.BackupCodes = append([]string(nil), codes...)
	identity.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryIdentityStore) SetStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	identity.Status = status
	identity.UpdatedAt = s.now().UTC()
	return nil
}

// MemorySessionStore keeps sessions in process memory.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemorySessionStore constructs an empty MemorySessionStore.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Session)}
}

func (s *MemorySessionStore) Create(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *session
	s.sessions[session.ID] = &clone
	return nil
}

func (s *MemorySessionStore) Find(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *session
	return &clone, nil
}

func (s *MemorySessionStore) Touch(ctx context.Context, id string, idleAfter time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	session.IdleAfter = idleAfter
	return nil
}

func (s *MemorySessionStore) UpdateProviderTokens(ctx context.Context, id, refreshToken string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	session.RefreshToken = refreshToken
	t := expiresAt
	session.ProviderExpiresAt = &t
	return nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *MemorySessionStore) DeleteByIdentity(ctx context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		if session.IdentityID == identityID {
			delete(s.sessions, id)
		}
	}
	return nil
}
