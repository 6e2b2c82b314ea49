package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const postgresSchemaVersion = 1

const postgresSchemaV1 = `
CREATE TABLE IF NOT EXISTS profiles (
  id                TEXT PRIMARY KEY,
  name              TEXT NOT NULL,
  connection_string TEXT NOT NULL DEFAULT '',
  namespace         TEXT NOT NULL DEFAULT '',
  use_azure_ad      BOOLEAN NOT NULL DEFAULT FALSE,
  tenant_id         TEXT NOT NULL DEFAULT '',
  client_id         TEXT NOT NULL DEFAULT '',
  created_at        TIMESTAMPTZ NOT NULL,
  updated_at        TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS profiles_name_ci ON profiles (LOWER(name));

CREATE TABLE IF NOT EXISTS sort_preferences (
  profile_id TEXT PRIMARY KEY REFERENCES profiles(id) ON DELETE CASCADE,
  field      TEXT NOT NULL,
  direction  TEXT NOT NULL
);
`

// PostgresStore backs the profile store with a shared database, for
// deployments where several gateway replicas serve one team.
type PostgresStore struct {
	db    *sql.DB
	nowFn func() time.Time
}

var _ Store = (*PostgresStore)(nil)

type PostgresOption func(*PostgresStore)

func WithPostgresNowFunc(now func() time.Time) PostgresOption {
	return func(s *PostgresStore) {
		if now != nil {
			s.nowFn = now
		}
	}
}

func NewPostgresStore(dsn string, opts ...PostgresOption) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("empty dsn")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	s := &PostgresStore{
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

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) init() error {
	ctx := context.Background()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return s.migrate(ctx)
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin migration: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER NOT NULL
);
`); err != nil {
		return fmt.Errorf("postgres: init migrations table: %w", err)
	}

	var current int
	var hasVersion bool
	row := tx.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1")
	switch err := row.Scan(&current); {
	case err == nil:
		hasVersion = true
	case errors.Is(err, sql.ErrNoRows):
	default:
		return fmt.Errorf("postgres: read schema version: %w", err)
	}

	if current > postgresSchemaVersion {
		return fmt.Errorf("postgres: schema_version=%d, want <=%d", current, postgresSchemaVersion)
	}

	for v := current + 1; v <= postgresSchemaVersion; v++ {
		switch v {
		case 1:
			if _, err := tx.ExecContext(ctx, postgresSchemaV1); err != nil {
				return fmt.Errorf("postgres: migrate v1: %w", err)
			}
		}
	}

	if hasVersion {
		_, err = tx.ExecContext(ctx, "UPDATE schema_migrations SET version = $1", postgresSchemaVersion)
	} else {
		_, err = tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", postgresSchemaVersion)
	}
	if err != nil {
		return fmt.Errorf("postgres: record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit migration: %w", err)
	}
	committed = true
	return nil
}

func (s *PostgresStore) CreateProfile(ctx context.Context, p Profile) (Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.nowFn()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
INSERT INTO profiles (id, name, connection_string, namespace, use_azure_ad, tenant_id, client_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Name, p.ConnectionString, p.Namespace, p.UseAzureAD, p.TenantID, p.ClientID, now, now)
	if err != nil {
		if isPostgresUniqueViolation(err) {
			return Profile{}, ErrNameTaken
		}
		return Profile{}, fmt.Errorf("postgres: create profile: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, id string) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, connection_string, namespace, use_azure_ad, tenant_id, client_id, created_at, updated_at
FROM profiles WHERE id = $1`, id)
	return scanPostgresProfile(row)
}

func (s *PostgresStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, connection_string, namespace, use_azure_ad, tenant_id, client_id, created_at, updated_at
FROM profiles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list profiles: %w", err)
	}
	defer rows.Close()

	out := []Profile{}
	for rows.Next() {
		p, err := scanPostgresProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, p Profile) (Profile, error) {
	existing, err := s.GetProfile(ctx, p.ID)
	if err != nil {
		return Profile{}, err
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = monotonicAfter(existing.UpdatedAt, s.nowFn())

	_, err = s.db.ExecContext(ctx, `
UPDATE profiles
SET name = $1, connection_string = $2, namespace = $3, use_azure_ad = $4, tenant_id = $5, client_id = $6, updated_at = $7
WHERE id = $8`,
		p.Name, p.ConnectionString, p.Namespace, p.UseAzureAD, p.TenantID, p.ClientID, p.UpdatedAt, p.ID)
	if err != nil {
		if isPostgresUniqueViolation(err) {
			return Profile{}, ErrNameTaken
		}
		return Profile{}, fmt.Errorf("postgres: update profile: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) DeleteProfile(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM profiles WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("postgres: delete profile: %w", err)
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

func (s *PostgresStore) SetSortPreference(ctx context.Context, profileID string, pref SortPreference) error {
	if _, err := s.GetProfile(ctx, profileID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sort_preferences (profile_id, field, direction) VALUES ($1, $2, $3)
ON CONFLICT (profile_id) DO UPDATE SET field = EXCLUDED.field, direction = EXCLUDED.direction`,
		profileID, pref.Field, pref.Direction)
	if err != nil {
		return fmt.Errorf("postgres: set sort preference: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSortPreference(ctx context.Context, profileID string) (SortPreference, bool, error) {
	var pref SortPreference
	row := s.db.QueryRowContext(ctx,
		"SELECT field, direction FROM sort_preferences WHERE profile_id = $1", profileID)
	switch err := row.Scan(&pref.Field, &pref.Direction); {
	case err == nil:
		return pref, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return SortPreference{}, false, nil
	default:
		return SortPreference{}, false, fmt.Errorf("postgres: get sort preference: %w", err)
	}
}

func scanPostgresProfile(row rowScanner) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Name, &p.ConnectionString, &p.Namespace, &p.UseAzureAD, &p.TenantID, &p.ClientID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("scan profile: %w", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func isPostgresUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
