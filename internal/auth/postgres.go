package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"alwr.org/internal/ids"
)

const storeTimeout = 5 * time.Second

var (
	_ IdentityStore = (*PGIdentityStore)(nil)
	_ SessionStore  = (*PGSessionStore)(nil)
)

const identityColumns = `id, email, password_hash, source, role, status, first_name, last_name,
	totp_secret, totp_enabled, backup_codes, failed_logins, locked_until, last_login_at, created_at, updated_at`

// PGIdentityStore implements IdentityStore on PostgreSQL.
type PGIdentityStore struct {
	db *sql.DB
}

// NewPGIdentityStore constructs a PGIdentityStore.
func NewPGIdentityStore(db *sql.DB) *PGIdentityStore {
	return &PGIdentityStore{db: db}
}

func (s *PGIdentityStore) Create(ctx context.Context, identity *Identity) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	codes, err := json.Marshal(identity.BackupCodes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`insert into identities(id, email, password_hash, source, role, status, first_name, last_name,
		 totp_secret, totp_enabled, backup_codes, failed_logins, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		identity.ID, strings.ToLower(identity.Email), identity.PasswordHash, identity.Source,
		identity.Role, identity.Status, identity.FirstName, identity.LastName,
		identity.TOTPSecret, identity.TOTPEnabled, codes, identity.FailedLogins,
		identity.CreatedAt, identity.UpdatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrEmailTaken
	}
	return err
}

func (s *PGIdentityStore) Find(ctx context.Context, id string) (*Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`select `+identityColumns+` from identities where id = $1`, id)
	return scanIdentity(row)
}

func (s *PGIdentityStore) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`select `+identityColumns+` from identities where email = $1`, strings.ToLower(email))
	return scanIdentity(row)
}

func (s *PGIdentityStore) RecordLoginFailure(ctx context.Context, id string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	var count int
	err := s.db.QueryRowContext(ctx,
		`update identities set failed_logins = failed_logins + 1, updated_at = now()
		 where id = $1 returning failed_logins`, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return count, err
}

func (s *PGIdentityStore) SetLock(ctx context.Context, id string, until time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`update identities set locked_until = $2, updated_at = now() where id = $1`, id, until)
	return err
}

func (s *PGIdentityStore) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`update identities set failed_logins = 0, locked_until = null, last_login_at = $2, updated_at = now()
		 where id = $1`, id, at)
	return err
}

func (s *PGIdentityStore) UpsertDelegated(ctx context.Context, claims DelegatedClaims) (*Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx,
		`insert into identities(id, email, source, role, status, first_name, last_name, backup_codes, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7,'[]',$8,$8)
		 on conflict (email) do update
		 set first_name = excluded.first_name, last_name = excluded.last_name, updated_at = excluded.updated_at
		 returning `+identityColumns,
		ids.New(), strings.ToLower(claims.Email), SourceDelegated, RoleUser, StatusActive,
		claims.FirstName, claims.LastName, now,
	)
	return scanIdentity(row)
}

func (s *PGIdentityStore) SetTwoFactor(ctx context.Context, id, secret string, enabled bool, backupCodes []string) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	codes, err := json.Marshal(backupCodes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`update identities set totp_secret = $2, totp_enabled = $3, backup_codes = $4, updated_at = now()
		 where id = $1`, id, secret, enabled, codes)
	return err
}

func (s *PGIdentityStore) SetBackupCodes(ctx context.Context, id string, codes []string) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	encoded, err := json.Marshal(codes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`update identities set backup_codes = $2, updated_at = now() where id = $1`, id, encoded)
	return err
}

func (s *PGIdentityStore) SetStatus(ctx context.Context, id, status string) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`update identities set status = $2, updated_at = now() where id = $1`, id, status)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*Identity, error) {
	var (
		identity Identity
		codes    []byte
	)
	err := row.Scan(
		&identity.ID, &identity.Email, &identity.PasswordHash, &identity.Source,
		&identity.Role, &identity.Status, &identity.FirstName, &identity.LastName,
		&identity.TOTPSecret, &identity.TOTPEnabled, &codes, &identity.FailedLogins,
		&identity.LockedUntil, &identity.LastLoginAt, &identity.CreatedAt, &identity.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(codes) > 0 {
		if err := json.Unmarshal(codes, &identity.BackupCodes); err != nil {
			return nil, err
		}
	}
	return &identity, nil
}

// PGSessionStore implements SessionStore on PostgreSQL.
type PGSessionStore struct {
	db *sql.DB
}

// NewPGSessionStore constructs a PGSessionStore.
func NewPGSessionStore(db *sql.DB) *PGSessionStore {
	return &PGSessionStore{db: db}
}

func (s *PGSessionStore) Create(ctx context.Context, session *Session) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`insert into sessions(id, identity_id, token_hash, source, created_at, expires_at, idle_after, refresh_token, provider_expires_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		session.ID, session.IdentityID, session.TokenHash, session.Source,
		session.CreatedAt, session.ExpiresAt, session.IdleAfter,
		session.RefreshToken, session.ProviderExpiresAt,
	)
	return err
}

func (s *PGSessionStore) Find(ctx context.Context, id string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	var session Session
	err := s.db.QueryRowContext(ctx,
		`select id, identity_id, token_hash, source, created_at, expires_at, idle_after, refresh_token, provider_expires_at
		 from sessions where id = $1`, id).
		Scan(&session.ID, &session.IdentityID, &session.TokenHash, &session.Source,
			&session.CreatedAt, &session.ExpiresAt, &session.IdleAfter,
			&session.RefreshToken, &session.ProviderExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *PGSessionStore) Touch(ctx context.Context, id string, idleAfter time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`update sessions set idle_after = $2 where id = $1`, id, idleAfter)
	return err
}

func (s *PGSessionStore) UpdateProviderTokens(ctx context.Context, id, refreshToken string, expiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`update sessions set refresh_token = $2, provider_expires_at = $3 where id = $1`,
		id, refreshToken, expiresAt)
	return err
}

func (s *PGSessionStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `delete from sessions where id = $1`, id)
	return err
}

func (s *PGSessionStore) DeleteByIdentity(ctx context.Context, identityID string) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `delete from sessions where identity_id = $1`, identityID)
	return err
}
