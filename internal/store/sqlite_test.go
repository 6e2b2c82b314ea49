package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nested", "busgate.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	created, err := s.CreateProfile(ctx, Profile{Name: "prod", Namespace: "contoso"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.SetSortPreference(ctx, created.ID, SortPreference{Field: "name", Direction: "asc"}); err != nil {
		t.Fatalf("set preference: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.GetProfile(ctx, created.ID)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.Name != "prod" || got.Namespace != "contoso" {
		t.Fatalf("unexpected profile after reopen: %+v", got)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("createdAt drifted across reopen: %v != %v", got.CreatedAt, created.CreatedAt)
	}

	pref, ok, err := reopened.GetSortPreference(ctx, created.ID)
	if err != nil || !ok {
		t.Fatalf("preference after reopen: ok=%v err=%v", ok, err)
	}
	if pref.Field != "name" {
		t.Fatalf("unexpected preference after reopen: %+v", pref)
	}
}

func TestSQLiteStoreRejectsEmptyPath(t *testing.T) {
	if _, err := NewSQLiteStore("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSQLiteStoreUpdateMissingProfile(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "busgate.db"))
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.UpdateProfile(context.Background(), Profile{ID: "missing", Name: "x"})
	if !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}
