package settings

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"sync"
	"time"
)

// ErrNotFound marks a key with no stored value; consumers fall back to
// their default.
var ErrNotFound = errors.New("settings: not found")

// KeyRegistrationOpen toggles public self-registration.
const KeyRegistrationOpen = "registration_open"

// Store reads and writes operational settings.
type Store interface {
	Value(ctx context.Context, key string) (string, error)
	SetValue(ctx context.Context, key, value string) error
}

const storeTimeout = 5 * time.Second

var _ Store = (*PGStore)(nil)

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	db *sql.DB
}

// NewPGStore constructs a PGStore.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Value(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	var value string
	err := s.db.QueryRowContext(ctx,
		`select value from settings where key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

func (s *PGStore) SetValue(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`insert into settings(key, value, updated_at) values($1,$2,now())
		 on conflict (key) do update set value = excluded.value, updated_at = now()`,
		key, value)
	return err
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps settings in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Value(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *MemoryStore) SetValue(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// RegistrationLoader adapts a Store into a boolean loader for the
// registration toggle. A missing key means registration is open.
func RegistrationLoader(store Store) Loader[bool] {
	return func(ctx context.Context) (bool, error) {
		raw, err := store.Value(ctx, KeyRegistrationOpen)
		if errors.Is(err, ErrNotFound) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		open, err := strconv.ParseBool(raw)
		if err != nil {
			return false, err
		}
		return open, nil
	}
}
