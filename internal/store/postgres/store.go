// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package postgres provides PostgreSQL-backed implementations of the
// passkey persistence interfaces.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/jeremyhahn/go-passkey/internal/store/postgres/migrations"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const pgUniqueViolation = "23505"

// Store bundles the PostgreSQL-backed persistence layers over a shared
// connection pool.
type Store struct {
	db         *sql.DB
	users      *UserStore
	creds      *CredentialStore
	challenges *ChallengeStore
}

// Open connects to PostgreSQL, applies pending migrations, and returns
// the store. challengeTTL controls how long issued challenges stay
// consumable.
func Open(ctx context.Context, dsn string, challengeTTL time.Duration) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return &Store{
		db:         db,
		users:      &UserStore{db: db},
		creds:      &CredentialStore{db: db},
		challenges: &ChallengeStore{db: db, ttl: challengeTTL},
	}, nil
}

// Users returns the user persistence layer.
func (s *Store) Users() *UserStore {
	return s.users
}

// Credentials returns the credential persistence layer.
func (s *Store) Credentials() *CredentialStore {
	return s.creds
}

// Challenges returns the challenge persistence layer.
func (s *Store) Challenges() *ChallengeStore {
	return s.challenges
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// UserStore is the PostgreSQL implementation of passkey.UserStore.
type UserStore struct {
	db *sql.DB
}

// Create stores a new user.
func (s *UserStore) Create(ctx context.Context, user *passkey.User) error {
	query := `INSERT INTO users (id, email, name, created_at)
	          VALUES ($1, lower($2), $3, $4)`

	if _, err := s.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Name, user.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return passkey.ErrUserAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByEmail retrieves a user by email address.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*passkey.User, error) {
	query := `SELECT id, email, name, created_at FROM users
	          WHERE email = lower($1)`

	user := &passkey.User{}
	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID, &user.Email, &user.Name, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, passkey.ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by identifier.
func (s *UserStore) GetByID(ctx context.Context, id string) (*passkey.User, error) {
	query := `SELECT id, email, name, created_at FROM users
	          WHERE id = $1`

	user := &passkey.User{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.Name, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, passkey.ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// CredentialStore is the PostgreSQL implementation of
// passkey.CredentialStore.
type CredentialStore struct {
	db *sql.DB
}

// Create stores a new credential.
func (s *CredentialStore) Create(ctx context.Context, cred *passkey.Credential) error {
	query := `INSERT INTO credentials
	          (credential_id, user_id, public_key, aaguid, sign_count, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := s.db.ExecContext(ctx, query,
		cred.ID, cred.UserID, cred.PublicKey, cred.AAGUID,
		int64(cred.SignCount), cred.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return passkey.ErrCredentialAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByCredentialID retrieves a credential by its identifier.
func (s *CredentialStore) GetByCredentialID(ctx context.Context, credentialID []byte) (*passkey.Credential, error) {
	query := `SELECT credential_id, user_id, public_key, aaguid, sign_count,
	                 created_at, COALESCE(last_used_at, 'epoch'::timestamptz)
	          FROM credentials
	          WHERE credential_id = $1`

	cred := &passkey.Credential{}
	var signCount int64
	err := s.db.QueryRowContext(ctx, query, credentialID).Scan(
		&cred.ID, &cred.UserID, &cred.PublicKey, &cred.AAGUID,
		&signCount, &cred.CreatedAt, &cred.LastUsedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, passkey.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	cred.SignCount = uint32(signCount)
	return cred, nil
}

// ListByUserID returns all credentials registered to a user, in
// registration order.
func (s *CredentialStore) ListByUserID(ctx context.Context, userID string) ([]*passkey.Credential, error) {
	query := `SELECT credential_id, user_id, public_key, aaguid, sign_count,
	                 created_at, COALESCE(last_used_at, 'epoch'::timestamptz)
	          FROM credentials
	          WHERE user_id = $1
	          ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var creds []*passkey.Credential
	for rows.Next() {
		cred := &passkey.Credential{}
		var signCount int64
		if err := rows.Scan(
			&cred.ID, &cred.UserID, &cred.PublicKey, &cred.AAGUID,
			&signCount, &cred.CreatedAt, &cred.LastUsedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		cred.SignCount = uint32(signCount)
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return creds, nil
}

// UpdateSignCount conditionally advances a credential's signature
// counter and last-used timestamp. The condition makes concurrent
// updates race-safe: a stale counter never overwrites a newer one.
func (s *CredentialStore) UpdateSignCount(ctx context.Context, credentialID []byte, signCount uint32, usedAt time.Time) error {
	query := `UPDATE credentials
	          SET sign_count = $2, last_used_at = $3
	          WHERE credential_id = $1 AND (sign_count < $2 OR $2 = 0)`

	result, err := s.db.ExecContext(ctx, query, credentialID, int64(signCount), usedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if rows == 0 {
		// Either the credential is gone or a concurrent update already
		// advanced past signCount. The latter is a no-op.
		var exists bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM credentials WHERE credential_id = $1)`,
			credentialID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if !exists {
			return passkey.ErrCredentialNotFound
		}
	}
	return nil
}

// ChallengeStore is the PostgreSQL implementation of
// passkey.ChallengeStore.
type ChallengeStore struct {
	db  *sql.DB
	ttl time.Duration
}

// Create stores a new challenge.
func (s *ChallengeStore) Create(ctx context.Context, challenge *passkey.Challenge) error {
	query := `INSERT INTO challenges (id, value, email, kind, created_at)
	          VALUES ($1, $2, $3, $4, $5)`

	if _, err := s.db.ExecContext(ctx, query,
		challenge.ID, challenge.Value, challenge.Email,
		string(challenge.Kind), challenge.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Consume atomically retrieves and deletes a challenge. The single
// DELETE ... RETURNING guarantees at most one caller receives a given
// challenge. Expired challenges are deleted and reported as not found.
func (s *ChallengeStore) Consume(ctx context.Context, id string) (*passkey.Challenge, error) {
	query := `DELETE FROM challenges WHERE id = $1
	          RETURNING id, value, email, kind, created_at`

	challenge := &passkey.Challenge{}
	var kind string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&challenge.ID, &challenge.Value, &challenge.Email, &kind, &challenge.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, passkey.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if time.Since(challenge.CreatedAt) > s.ttl {
		return nil, passkey.ErrChallengeNotFound
	}
	challenge.Kind = passkey.CeremonyKind(kind)
	return challenge, nil
}

// DeleteExpired removes challenges past their TTL.
func (s *ChallengeStore) DeleteExpired(ctx context.Context) (int, error) {
	query := `DELETE FROM challenges WHERE created_at < $1`

	result, err := s.db.ExecContext(ctx, query, time.Now().Add(-s.ttl))
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return int(rows), nil
}
