package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestRegistrationLoaderDefaultsOpen(t *testing.T) {
	loader := RegistrationLoader(NewMemoryStore())
	open, err := loader(context.Background())
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	if !open {
		t.Fatal("expected registration open when key is absent")
	}
}

func TestRegistrationLoaderReadsStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.SetValue(ctx, KeyRegistrationOpen, "false"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	loader := RegistrationLoader(store)
	open, err := loader(ctx)
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	if open {
		t.Fatal("expected registration closed")
	}

	if err := store.SetValue(ctx, KeyRegistrationOpen, "not-a-bool"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if _, err := loader(ctx); err == nil {
		t.Fatal("expected error for malformed value")
	}
}

func TestPGStoreValue(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewPGStore(db)

	mock.ExpectQuery(`select value from settings where key = \$1`).
		WithArgs(KeyRegistrationOpen).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("true"))

	value, err := store.Value(context.Background(), KeyRegistrationOpen)
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if value != "true" {
		t.Fatalf("unexpected value %q", value)
	}

	mock.ExpectQuery(`select value from settings where key = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	if _, err := store.Value(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGStoreSetValueUpserts(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewPGStore(db)

	mock.ExpectExec(`insert into settings.+on conflict \(key\) do update`).
		WithArgs(KeyRegistrationOpen, "false").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SetValue(context.Background(), KeyRegistrationOpen, "false"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
