package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the in-process backend, used by tests and as the default
// when no persistence is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	prefs    map[string]SortPreference
	now      func() time.Time
}

type MemoryOption func(*MemoryStore)

func WithMemoryNowFunc(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		profiles: make(map[string]Profile),
		prefs:    make(map[string]SortPreference),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) CreateProfile(_ context.Context, p Profile) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nameTakenLocked(p.Name, "") {
		return Profile{}, ErrNameTaken
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.profiles[p.ID] = p
	return p, nil
}

func (s *MemoryStore) GetProfile(_ context.Context, id string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return Profile{}, ErrProfileNotFound
	}
	return p, nil
}

func (s *MemoryStore) ListProfiles(_ context.Context) ([]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) UpdateProfile(_ context.Context, p Profile) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.profiles[p.ID]
	if !ok {
		return Profile{}, ErrProfileNotFound
	}
	if s.nameTakenLocked(p.Name, p.ID) {
		return Profile{}, ErrNameTaken
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = monotonicAfter(existing.UpdatedAt, s.now())
	s.profiles[p.ID] = p
	return p, nil
}

func (s *MemoryStore) DeleteProfile(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[id]; !ok {
		return ErrProfileNotFound
	}
	delete(s.profiles, id)
	delete(s.prefs, id)
	return nil
}

func (s *MemoryStore) SetSortPreference(_ context.Context, profileID string, pref SortPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[profileID]; !ok {
		return ErrProfileNotFound
	}
	s.prefs[profileID] = pref
	return nil
}

func (s *MemoryStore) GetSortPreference(_ context.Context, profileID string) (SortPreference, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pref, ok := s.prefs[profileID]
	return pref, ok, nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) nameTakenLocked(name, excludeID string) bool {
	for id, p := range s.profiles {
		if id != excludeID && strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

// monotonicAfter keeps updatedAt strictly advancing even on coarse clocks.
func monotonicAfter(prev, now time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Microsecond)
}
