// Package store persists saved connection profiles and per-profile UI
// preferences. The gateway core never consults it to resolve an operation's
// descriptor; it exists so clients can keep their connection list and sort
// order server-side.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrNameTaken       = errors.New("profile name already in use")
)

// Profile is a persisted connection descriptor. Name is unique within the
// store and doubles as the client-side routing handle. Timestamps are owned
// by the store.
type Profile struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	ConnectionString string    `json:"connectionString,omitempty"`
	Namespace        string    `json:"namespace,omitempty"`
	UseAzureAD       bool      `json:"useAzureAD,omitempty"`
	TenantID         string    `json:"tenantId,omitempty"`
	ClientID         string    `json:"clientId,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// SortPreference records how a client last sorted the entity list for one
// profile.
type SortPreference struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// Store is the persistence contract. Implementations must be safe for
// concurrent use.
type Store interface {
	CreateProfile(ctx context.Context, p Profile) (Profile, error)
	GetProfile(ctx context.Context, id string) (Profile, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
	UpdateProfile(ctx context.Context, p Profile) (Profile, error)
	DeleteProfile(ctx context.Context, id string) error

	SetSortPreference(ctx context.Context, profileID string, pref SortPreference) error
	GetSortPreference(ctx context.Context, profileID string) (SortPreference, bool, error)

	Close() error
}
