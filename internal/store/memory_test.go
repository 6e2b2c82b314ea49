package store

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreUpdatedAtStaysMonotonic(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	s := NewMemoryStore(WithMemoryNowFunc(func() time.Time { return fixed }))

	p, err := s.CreateProfile(ctx, Profile{Name: "prod"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// The clock never moves; updatedAt must still advance on every write.
	prev := p.UpdatedAt
	for i := 0; i < 3; i++ {
		p, err = s.UpdateProfile(ctx, p)
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		if !p.UpdatedAt.After(prev) {
			t.Fatalf("update %d: updatedAt %v did not advance past %v", i, p.UpdatedAt, prev)
		}
		prev = p.UpdatedAt
	}
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p, err := s.CreateProfile(ctx, Profile{Name: "shared"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = s.GetProfile(ctx, p.ID)
				_, _ = s.ListProfiles(ctx)
				_, _, _ = s.GetSortPreference(ctx, p.ID)
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = s.UpdateProfile(ctx, p)
				_ = s.SetSortPreference(ctx, p.ID, SortPreference{Field: "name", Direction: "asc"})
			}
		}()
	}
	wg.Wait()

	if _, err := s.GetProfile(ctx, p.ID); err != nil {
		t.Fatalf("profile lost under concurrency: %v", err)
	}
}
