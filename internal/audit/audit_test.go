package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type failingStore struct{}

func (failingStore) Append(ctx context.Context, entry *Entry) error {
	return errors.New("disk full")
}

func (failingStore) List(ctx context.Context, filter Filter) ([]Entry, error) {
	return nil, nil
}

func TestRecordFillsDefaults(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := NewRecorder(store, zap.NewNop(), WithClock(func() time.Time { return now }))

	rec.Record(context.Background(), Entry{Action: ActionLogin, Success: false})

	entries, err := store.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.ID == "" {
		t.Fatal("expected generated id")
	}
	if !e.OccurredAt.Equal(now) {
		t.Fatalf("unexpected timestamp: %v", e.OccurredAt)
	}
	if e.ActorID != ActorUnknown {
		t.Fatalf("expected unknown actor placeholder, got %q", e.ActorID)
	}
}

func TestRecordSwallowsStoreFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	rec := NewRecorder(failingStore{}, zap.New(core))

	// Must not panic or propagate the error.
	rec.Record(context.Background(), Entry{Action: ActionAPIKeyVerify})

	if logs.Len() != 1 {
		t.Fatalf("expected one operational error log, got %d", logs.Len())
	}
	if logs.All()[0].Message != "audit append failed" {
		t.Fatalf("unexpected log message: %s", logs.All()[0].Message)
	}
}

func TestFilterMatching(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, zap.NewNop())
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rec.Record(ctx, Entry{Action: ActionLogin, ActorID: "alice", Success: true, OccurredAt: base})
	rec.Record(ctx, Entry{Action: ActionLogin, ActorID: "bob", Success: false, OccurredAt: base.Add(time.Hour)})
	rec.Record(ctx, Entry{Action: ActionAPIKeyVerify, ResourceType: "apikey", ResourceID: "key-1", Success: false, OccurredAt: base.Add(2 * time.Hour)})

	failed := false
	success := true

	cases := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 3},
		{"by action", Filter{Action: ActionLogin}, 2},
		{"by success", Filter{Success: &success}, 1},
		{"by failure and action", Filter{Action: ActionLogin, Success: &failed}, 1},
		{"by resource type", Filter{ResourceType: "apikey"}, 1},
		{"by date range", Filter{From: base.Add(30 * time.Minute), To: base.Add(90 * time.Minute)}, 1},
		{"by free text actor", Filter{Query: "ALI"}, 1},
		{"by free text resource", Filter{Query: "key-1"}, 1},
		{"no match", Filter{Query: "nobody"}, 0},
	}
	for _, tc := range cases {
		entries, err := rec.List(ctx, tc.filter)
		if err != nil {
			t.Fatalf("%s: List: %v", tc.name, err)
		}
		if len(entries) != tc.want {
			t.Fatalf("%s: expected %d entries, got %d", tc.name, tc.want, len(entries))
		}
	}
}

func TestListNewestFirstAndLimited(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, zap.NewNop())
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec.Record(ctx, Entry{Action: ActionLogout, ActorID: "u", OccurredAt: base.Add(time.Duration(i) * time.Minute)})
	}

	entries, err := rec.List(ctx, Filter{Limit: 3})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if !entries[0].OccurredAt.After(entries[1].OccurredAt) {
		t.Fatal("expected newest-first ordering")
	}
}
