package apikey

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"alwr.org/internal/audit"
	"alwr.org/internal/credentials"
)

func newTestService(t *testing.T, now *time.Time) (*Service, *MemoryStore, *audit.MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	trail := audit.NewMemoryStore()
	rec := audit.NewRecorder(trail, zap.NewNop())
	svc, err := NewService(store, rec, WithClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store, trail
}

func lastAuditDetail(t *testing.T, trail *audit.MemoryStore, action string) map[string]string {
	t.Helper()
	entries, err := trail.List(context.Background(), audit.Filter{Action: action, Limit: 1})
	if err != nil {
		t.Fatalf("audit List: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("no audit entries for %s", action)
	}
	return entries[0].Detail
}

func TestCreateReturnsRawExactlyOnce(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(t, &now)
	ctx := context.Background()

	raw, key, err := svc.Create(ctx, CreateInput{
		Name:        "registry-sync",
		Permissions: []string{PermReadCustomers, PermReadDirectives},
		Actor:       Actor{ID: "admin-1", Role: "admin"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !credentials.LooksLikeAPIKey(raw) {
		t.Fatalf("raw key has wrong shape: %q", raw)
	}
	if key.Masked == raw {
		t.Fatal("stored record must not contain the raw key")
	}
	if !strings.Contains(key.Masked, "...") {
		t.Fatalf("unexpected mask %q", key.Masked)
	}
	if key.Hash == "" || strings.Contains(key.Hash, raw) {
		t.Fatalf("hash must not embed the raw key: %q", key.Hash)
	}

	// The list surface only ever exposes the mask.
	keys, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 1 || keys[0].Masked != key.Masked {
		t.Fatalf("unexpected listing: %+v", keys)
	}
}

func TestCreateValidation(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(t, &now)
	ctx := context.Background()
	past := now.Add(-time.Hour)

	cases := []struct {
		name  string
		input CreateInput
	}{
		{"empty name", CreateInput{Permissions: []string{PermReadCustomers}}},
		{"no permissions", CreateInput{Name: "k"}},
		{"unknown permission", CreateInput{Name: "k", Permissions: []string{"admin:everything"}}},
		{"expiry in the past", CreateInput{Name: "k", Permissions: []string{PermReadCustomers}, ExpiresAt: &past}},
	}
	for _, tc := range cases {
		if _, _, err := svc.Create(ctx, tc.input); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestVerifyHappyPathCountsUsage(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	svc, store, _ := newTestService(t, &now)
	ctx := context.Background()

	raw, created, err := svc.Create(ctx, CreateInput{
		Name: "k", Permissions: []string{PermReadCustomers}, Actor: Actor{ID: "admin-1"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 3; i++ {
		key, err := svc.Verify(ctx, raw, "10.0.0.1", "client/1.0")
		if err != nil {
			t.Fatalf("Verify %d: %v", i+1, err)
		}
		if key.ID != created.ID {
			t.Fatalf("resolved wrong key: %s", key.ID)
		}
	}
	stored, err := store.Find(ctx, created.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if stored.UseCount != 3 {
		t.Fatalf("expected use count 3, got %d", stored.UseCount)
	}
	if stored.LastUsedAt == nil || !stored.LastUsedAt.Equal(now) {
		t.Fatalf("unexpected last used stamp: %v", stored.LastUsedAt)
	}
}

func TestVerifyRejectionReasonsStayInternal(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	svc, _, trail := newTestService(t, &now)
	ctx := context.Background()

	// Malformed.
	if _, err := svc.Verify(ctx, "Bearer something", "", ""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for malformed, got %v", err)
	}
	if d := lastAuditDetail(t, trail, audit.ActionAPIKeyVerify); d["reason"] != "malformed" {
		t.Fatalf("expected malformed reason, got %v", d)
	}

	// Well-formed but unknown.
	unknown, err := credentials.GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if _, err := svc.Verify(ctx, unknown, "", ""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for unknown, got %v", err)
	}
	if d := lastAuditDetail(t, trail, audit.ActionAPIKeyVerify); d["reason"] != "not_found" {
		t.Fatalf("expected not_found reason, got %v", d)
	}

	// Revoked.
	raw, created, err := svc.Create(ctx, CreateInput{Name: "k", Permissions: []string{PermReadCustomers}, Actor: Actor{ID: "a"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Revoke(ctx, created.ID, Actor{ID: "admin-1", Role: "admin"}); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := svc.Verify(ctx, raw, "", ""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for revoked, got %v", err)
	}
	if d := lastAuditDetail(t, trail, audit.ActionAPIKeyVerify); d["reason"] != "revoked" {
		t.Fatalf("expected revoked reason, got %v", d)
	}

	// Expired.
	expiry := now.Add(time.Hour)
	rawExp, _, err := svc.Create(ctx, CreateInput{Name: "e", Permissions: []string{PermReadCustomers}, ExpiresAt: &expiry, Actor: Actor{ID: "a"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	now = now.Add(2 * time.Hour)
	if _, err := svc.Verify(ctx, rawExp, "", ""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for expired, got %v", err)
	}
	if d := lastAuditDetail(t, trail, audit.ActionAPIKeyVerify); d["reason"] != "expired" {
		t.Fatalf("expected expired reason, got %v", d)
	}
}

func TestRevokeIsPermanentAndIdempotent(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	svc, store, _ := newTestService(t, &now)
	ctx := context.Background()

	raw, created, err := svc.Create(ctx, CreateInput{Name: "k", Permissions: []string{PermWriteDirectives}, Actor: Actor{ID: "a"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Revoke(ctx, created.ID, Actor{ID: "admin-1"}); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	first, _ := store.Find(ctx, created.ID)
	if first.RevokedAt == nil || first.RevokedBy != "admin-1" {
		t.Fatalf("revocation not recorded: %+v", first)
	}

	// Second revoke keeps the original revoker and stamp.
	now = now.Add(time.Hour)
	if err := svc.Revoke(ctx, created.ID, Actor{ID: "admin-2"}); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
	second, _ := store.Find(ctx, created.ID)
	if !second.RevokedAt.Equal(*first.RevokedAt) || second.RevokedBy != "admin-1" {
		t.Fatalf("revocation must be immutable: %+v", second)
	}

	if _, err := svc.Verify(ctx, raw, "", ""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("revoked key must never verify again, got %v", err)
	}

	if err := svc.Revoke(ctx, "missing", Actor{ID: "admin-1"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown key, got %v", err)
	}
}

func TestKeyPermissionScope(t *testing.T) {
	key := Key{Permissions: []string{PermReadCustomers, PermReadDirectives}}
	if !key.HasPermission(PermReadCustomers) {
		t.Fatal("expected read:customers in scope")
	}
	if key.HasPermission(PermWriteCustomers) {
		t.Fatal("write:customers must not be in scope")
	}
}
