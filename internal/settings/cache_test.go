package settings

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCacheServesWithinTTL(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	loads := 0
	cache := New(time.Minute, func(ctx context.Context) ([]string, error) {
		loads++
		return []string{"10.0.0.1"}, nil
	}).WithClock(func() time.Time { return clock })

	for i := 0; i < 3; i++ {
		v, err := cache.Get(context.Background())
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if len(v) != 1 || v[0] != "10.0.0.1" {
			t.Fatalf("unexpected value: %v", v)
		}
	}
	if loads != 1 {
		t.Fatalf("expected 1 load, got %d", loads)
	}

	clock = clock.Add(2 * time.Minute)
	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get after expiry: %v", err)
	}
	if loads != 2 {
		t.Fatalf("expected reload after TTL, got %d loads", loads)
	}
}

func TestCacheKeepsStaleValueOnReloadFailure(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fail := false
	cache := New(time.Minute, func(ctx context.Context) (string, error) {
		if fail {
			return "", errors.New("store down")
		}
		return "fresh", nil
	}).WithClock(func() time.Time { return clock })

	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}

	fail = true
	clock = clock.Add(2 * time.Minute)
	v, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("expected stale value, got error %v", err)
	}
	if v != "fresh" {
		t.Fatalf("unexpected value: %s", v)
	}
}

func TestCacheFirstLoadFailurePropagates(t *testing.T) {
	cache := New(time.Minute, func(ctx context.Context) (string, error) {
		return "", errors.New("store down")
	})
	if _, err := cache.Get(context.Background()); err == nil {
		t.Fatal("expected error on first load failure")
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	loads := 0
	cache := New(time.Hour, func(ctx context.Context) (int, error) {
		loads++
		return loads, nil
	})
	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}
	cache.Invalidate()
	v, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != 2 {
		t.Fatalf("expected reload, got %d", v)
	}
}
