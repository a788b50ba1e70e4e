package apikey

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const storeTimeout = 5 * time.Second

var _ Store = (*PGStore)(nil)

const keyColumns = `id, name, key_hash, masked, permissions, created_by, created_at,
	expires_at, revoked_at, revoked_by, last_used_at, use_count`

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	db *sql.DB
}

// NewPGStore constructs a PGStore.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, key *Key) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	perms, err := json.Marshal(key.Permissions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`insert into api_keys(id, name, key_hash, masked, permissions, created_by, created_at, expires_at, use_count)
		 values($1,$2,$3,$4,$5,$6,$7,$8,0)`,
		key.ID, key.Name, key.Hash, key.Masked, perms, key.CreatedBy, key.CreatedAt, key.ExpiresAt,
	)
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*Key, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`select `+keyColumns+` from api_keys where id = $1`, id)
	return scanKey(row)
}

func (s *PGStore) FindByHash(ctx context.Context, hash string) (*Key, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`select `+keyColumns+` from api_keys where key_hash = $1`, hash)
	return scanKey(row)
}

func (s *PGStore) List(ctx context.Context) ([]Key, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`select `+keyColumns+` from api_keys order by created_at desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *key)
	}
	return keys, rows.Err()
}

func (s *PGStore) Revoke(ctx context.Context, id, revokedBy string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	// revoked_at is only ever set once.
	_, err := s.db.ExecContext(ctx,
		`update api_keys set revoked_at = $2, revoked_by = $3 where id = $1 and revoked_at is null`,
		id, at, revokedBy)
	return err
}

func (s *PGStore) RecordUsage(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`update api_keys set use_count = use_count + 1, last_used_at = $2 where id = $1`, id, at)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (*Key, error) {
	var (
		key       Key
		perms     []byte
		revokedBy sql.NullString
	)
	err := row.Scan(&key.ID, &key.Name, &key.Hash, &key.Masked, &perms, &key.CreatedBy,
		&key.CreatedAt, &key.ExpiresAt, &key.RevokedAt, &revokedBy, &key.LastUsedAt, &key.UseCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &key.Permissions); err != nil {
			return nil, err
		}
	}
	key.RevokedBy = revokedBy.String
	return &key, nil
}
