package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type storeFactory struct {
	name string
	new  func(t *testing.T, now *time.Time) Store
}

func contractStoreFactories() []storeFactory {
	out := []storeFactory{
		{
			name: "memory",
			new: func(t *testing.T, now *time.Time) Store {
				t.Helper()
				return NewMemoryStore(
					WithMemoryNowFunc(func() time.Time { return now.UTC() }),
				)
			},
		},
		{
			name: "sqlite",
			new: func(t *testing.T, now *time.Time) Store {
				t.Helper()
				dbPath := filepath.Join(t.TempDir(), "busgate.db")
				s, err := NewSQLiteStore(
					dbPath,
					WithSQLiteNowFunc(func() time.Time { return now.UTC() }),
				)
				if err != nil {
					t.Fatalf("new sqlite store: %v", err)
				}
				t.Cleanup(func() { _ = s.Close() })
				return s
			},
		},
	}

	dsn := strings.TrimSpace(os.Getenv("BUSGATE_TEST_POSTGRES_DSN"))
	if dsn != "" {
		out = append(out, storeFactory{
			name: "postgres",
			new: func(t *testing.T, now *time.Time) Store {
				t.Helper()
				s, err := NewPostgresStore(
					dsn,
					WithPostgresNowFunc(func() time.Time { return now.UTC() }),
				)
				if err != nil {
					t.Fatalf("new postgres store: %v", err)
				}
				t.Cleanup(func() { _ = s.Close() })
				return s
			},
		})
	}

	return out
}

func TestStoreContract_ProfileLifecycle(t *testing.T) {
	for _, factory := range contractStoreFactories() {
		t.Run(factory.name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
			s := factory.new(t, &now)

			created, err := s.CreateProfile(ctx, Profile{
				Name:             "prod",
				ConnectionString: "Endpoint=sb://contoso.servicebus.windows.net/;SharedAccessKeyName=k;SharedAccessKey=v",
			})
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if created.ID == "" {
				t.Fatal("create must assign an id")
			}
			if !created.CreatedAt.Equal(now) || !created.UpdatedAt.Equal(now) {
				t.Fatalf("timestamps: created=%v updated=%v want %v", created.CreatedAt, created.UpdatedAt, now)
			}

			got, err := s.GetProfile(ctx, created.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Name != "prod" || got.ConnectionString != created.ConnectionString {
				t.Fatalf("get returned %+v", got)
			}

			now = now.Add(time.Minute)
			got.Namespace = "contoso"
			got.Name = "production"
			updated, err := s.UpdateProfile(ctx, got)
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			if !updated.CreatedAt.Equal(created.CreatedAt) {
				t.Fatalf("update must preserve createdAt, got %v", updated.CreatedAt)
			}
			if !updated.UpdatedAt.After(created.UpdatedAt) {
				t.Fatalf("updatedAt must advance, got %v", updated.UpdatedAt)
			}
			if updated.Name != "production" || updated.Namespace != "contoso" {
				t.Fatalf("update returned %+v", updated)
			}

			if err := s.DeleteProfile(ctx, created.ID); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := s.GetProfile(ctx, created.ID); !errors.Is(err, ErrProfileNotFound) {
				t.Fatalf("get after delete: expected ErrProfileNotFound, got %v", err)
			}
			if err := s.DeleteProfile(ctx, created.ID); !errors.Is(err, ErrProfileNotFound) {
				t.Fatalf("second delete: expected ErrProfileNotFound, got %v", err)
			}
		})
	}
}

func TestStoreContract_NameUniqueness(t *testing.T) {
	for _, factory := range contractStoreFactories() {
		t.Run(factory.name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
			s := factory.new(t, &now)

			first, err := s.CreateProfile(ctx, Profile{Name: "Staging"})
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if _, err := s.CreateProfile(ctx, Profile{Name: "staging"}); !errors.Is(err, ErrNameTaken) {
				t.Fatalf("case-insensitive duplicate: expected ErrNameTaken, got %v", err)
			}

			second, err := s.CreateProfile(ctx, Profile{Name: "dev"})
			if err != nil {
				t.Fatalf("create second: %v", err)
			}
			second.Name = "STAGING"
			if _, err := s.UpdateProfile(ctx, second); !errors.Is(err, ErrNameTaken) {
				t.Fatalf("rename onto taken name: expected ErrNameTaken, got %v", err)
			}

			// Renaming a profile to its own name is not a conflict.
			first.Name = "Staging"
			if _, err := s.UpdateProfile(ctx, first); err != nil {
				t.Fatalf("self rename: %v", err)
			}
		})
	}
}

func TestStoreContract_ListOrdering(t *testing.T) {
	for _, factory := range contractStoreFactories() {
		t.Run(factory.name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
			s := factory.new(t, &now)

			for _, name := range []string{"zeta", "alpha", "mid"} {
				if _, err := s.CreateProfile(ctx, Profile{Name: name}); err != nil {
					t.Fatalf("create %s: %v", name, err)
				}
			}

			profiles, err := s.ListProfiles(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			want := []string{"alpha", "mid", "zeta"}
			if len(profiles) != len(want) {
				t.Fatalf("expected %d profiles, got %d", len(want), len(profiles))
			}
			for i, name := range want {
				if profiles[i].Name != name {
					t.Fatalf("position %d: expected %q, got %q", i, name, profiles[i].Name)
				}
			}
		})
	}
}

func TestStoreContract_SortPreferences(t *testing.T) {
	for _, factory := range contractStoreFactories() {
		t.Run(factory.name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
			s := factory.new(t, &now)

			p, err := s.CreateProfile(ctx, Profile{Name: "prod"})
			if err != nil {
				t.Fatalf("create: %v", err)
			}

			if _, ok, err := s.GetSortPreference(ctx, p.ID); err != nil || ok {
				t.Fatalf("unset preference: ok=%v err=%v", ok, err)
			}

			if err := s.SetSortPreference(ctx, p.ID, SortPreference{Field: "name", Direction: "asc"}); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := s.SetSortPreference(ctx, p.ID, SortPreference{Field: "messageCount", Direction: "desc"}); err != nil {
				t.Fatalf("overwrite: %v", err)
			}

			pref, ok, err := s.GetSortPreference(ctx, p.ID)
			if err != nil || !ok {
				t.Fatalf("get: ok=%v err=%v", ok, err)
			}
			if pref.Field != "messageCount" || pref.Direction != "desc" {
				t.Fatalf("expected latest preference, got %+v", pref)
			}

			if err := s.SetSortPreference(ctx, "missing", SortPreference{Field: "name"}); !errors.Is(err, ErrProfileNotFound) {
				t.Fatalf("preference for missing profile: expected ErrProfileNotFound, got %v", err)
			}

			if err := s.DeleteProfile(ctx, p.ID); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, ok, err := s.GetSortPreference(ctx, p.ID); err != nil || ok {
				t.Fatalf("preference must go with the profile: ok=%v err=%v", ok, err)
			}
		})
	}
}
