package apikey

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps keys in process memory. Serves single-instance
// development deployments and tests.
type MemoryStore struct {
	mu       sync.Mutex
	byID     map[string]*Key
	idByHash map[string]string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]*Key),
		idByHash: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, key *Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *key
	s.byID[key.ID] = &clone
	s.idByHash[key.Hash] = key.ID
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, id string) (*Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *key
	return &clone, nil
}

func (s *MemoryStore) FindByHash(ctx context.Context, hash string) (*Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.idByHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *s.byID[id]
	return &clone, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Key, 0, len(s.byID))
	for _, key := range s.byID {
		out = append(out, *key)
	}
	return out, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, id, revokedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if key.RevokedAt != nil {
		return nil
	}
	t := at
	key.RevokedAt = &t
	key.RevokedBy = revokedBy
	return nil
}

func (s *MemoryStore) RecordUsage(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	key.UseCount++
	t := at
	key.LastUsedAt = &t
	return nil
}
