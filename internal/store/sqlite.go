package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchemaVersion = 1

const sqliteSchemaV1 = `
CREATE TABLE IF NOT EXISTS profiles (
  id                TEXT PRIMARY KEY,
  name              TEXT NOT NULL COLLATE NOCASE UNIQUE,
  connection_string TEXT NOT NULL DEFAULT '',
  namespace         TEXT NOT NULL DEFAULT '',
  use_azure_ad      INTEGER NOT NULL DEFAULT 0,
  tenant_id         TEXT NOT NULL DEFAULT '',
  client_id         TEXT NOT NULL DEFAULT '',
  created_at        INTEGER NOT NULL,
  updated_at        INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sort_preferences (
  profile_id TEXT PRIMARY KEY REFERENCES profiles(id) ON DELETE CASCADE,
  field      TEXT NOT NULL,
  direction  TEXT NOT NULL
);
`

// SQLiteStore is the default persistent backend.
type SQLiteStore struct {
	db    *sql.DB
	nowFn func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

type SQLiteOption func(*SQLiteStore)

func WithSQLiteNowFunc(now func() time.Time) SQLiteOption {
	return func(s *SQLiteStore) {
		if now != nil {
			s.nowFn = now
		}
	}
}

func NewSQLiteStore(dbPath string, opts ...SQLiteOption) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, errors.New("empty db path")
	}

	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:    db,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) init() error {
	ctx := context.Background()

	var journalMode string
	if err := s.db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL;").Scan(&journalMode); err != nil {
		return fmt.Errorf("sqlite: set journal_mode=wal: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout=5000;"); err != nil {
		return fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		return fmt.Errorf("sqlite: enable foreign_keys: %w", err)
	}
	return s.migrate(ctx)
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER NOT NULL
);
`); err != nil {
		return fmt.Errorf("sqlite: init migrations table: %w", err)
	}

	var current int
	var hasVersion bool
	row := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1;")
	switch err := row.Scan(&current); {
	case err == nil:
		hasVersion = true
	case errors.Is(err, sql.ErrNoRows):
	default:
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}

	if current > sqliteSchemaVersion {
		return fmt.Errorf("sqlite: schema_version=%d, want <=%d", current, sqliteSchemaVersion)
	}

	for v := current + 1; v <= sqliteSchemaVersion; v++ {
		switch v {
		case 1:
			if _, err := s.db.ExecContext(ctx, sqliteSchemaV1); err != nil {
				return fmt.Errorf("sqlite: migrate v1: %w", err)
			}
		}
	}

	if hasVersion {
		if _, err := s.db.ExecContext(ctx, "UPDATE schema_migrations SET version = ?;", sqliteSchemaVersion); err != nil {
			return fmt.Errorf("sqlite: record schema version: %w", err)
		}
	} else {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?);", sqliteSchemaVersion); err != nil {
			return fmt.Errorf("sqlite: record schema version: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) CreateProfile(ctx context.Context, p Profile) (Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.nowFn()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
INSERT INTO profiles (id, name, connection_string, namespace, use_azure_ad, tenant_id, client_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		p.ID, p.Name, p.ConnectionString, p.Namespace, boolToInt(p.UseAzureAD), p.TenantID, p.ClientID,
		now.UnixMicro(), now.UnixMicro())
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return Profile{}, ErrNameTaken
		}
		return Profile{}, fmt.Errorf("sqlite: create profile: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) GetProfile(ctx context.Context, id string) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, connection_string, namespace, use_azure_ad, tenant_id, client_id, created_at, updated_at
FROM profiles WHERE id = ?;`, id)
	return scanProfile(row)
}

func (s *SQLiteStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, connection_string, namespace, use_azure_ad, tenant_id, client_id, created_at, updated_at
FROM profiles ORDER BY name;`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list profiles: %w", err)
	}
	defer rows.Close()

	out := []Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateProfile(ctx context.Context, p Profile) (Profile, error) {
	existing, err := s.GetProfile(ctx, p.ID)
	if err != nil {
		return Profile{}, err
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = monotonicAfter(existing.UpdatedAt, s.nowFn())

	_, err = s.db.ExecContext(ctx, `
UPDATE profiles
SET name = ?, connection_string = ?, namespace = ?, use_azure_ad = ?, tenant_id = ?, client_id = ?, updated_at = ?
WHERE id = ?;`,
		p.Name, p.ConnectionString, p.Namespace, boolToInt(p.UseAzureAD), p.TenantID, p.ClientID,
		p.UpdatedAt.UnixMicro(), p.ID)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return Profile{}, ErrNameTaken
		}
		return Profile{}, fmt.Errorf("sqlite: update profile: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) DeleteProfile(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM profiles WHERE id = ?;", id)
	if err != nil {
		return fmt.Errorf("sqlite: delete profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (s *SQLiteStore) SetSortPreference(ctx context.Context, profileID string, pref SortPreference) error {
	if _, err := s.GetProfile(ctx, profileID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sort_preferences (profile_id, field, direction) VALUES (?, ?, ?)
ON CONFLICT(profile_id) DO UPDATE SET field = excluded.field, direction = excluded.direction;`,
		profileID, pref.Field, pref.Direction)
	if err != nil {
		return fmt.Errorf("sqlite: set sort preference: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSortPreference(ctx context.Context, profileID string) (SortPreference, bool, error) {
	var pref SortPreference
	row := s.db.QueryRowContext(ctx,
		"SELECT field, direction FROM sort_preferences WHERE profile_id = ?;", profileID)
	switch err := row.Scan(&pref.Field, &pref.Direction); {
	case err == nil:
		return pref, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return SortPreference{}, false, nil
	default:
		return SortPreference{}, false, fmt.Errorf("sqlite: get sort preference: %w", err)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (Profile, error) {
	var (
		p          Profile
		useAzureAD int
		createdAt  int64
		updatedAt  int64
	)
	err := row.Scan(&p.ID, &p.Name, &p.ConnectionString, &p.Namespace, &useAzureAD, &p.TenantID, &p.ClientID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("scan profile: %w", err)
	}
	p.UseAzureAD = useAzureAD != 0
	p.CreatedAt = time.UnixMicro(createdAt).UTC()
	p.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	return p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
