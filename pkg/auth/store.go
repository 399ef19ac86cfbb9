package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a key does not exist
	ErrNotFound = errors.New("api key not found")
	// ErrKeyRevoked is returned when a presented key has been revoked
	ErrKeyRevoked = errors.New("api key revoked")
	// ErrKeyExpired is returned when a presented key has expired
	ErrKeyExpired = errors.New("api key expired")
)

// Store handles API key persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new API key store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RunMigrations creates the api_keys table
func RunMigrations(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS api_keys (
		id UUID PRIMARY KEY,
		user_id BIGINT NOT NULL,
		name VARCHAR(255) NOT NULL,
		prefix VARCHAR(16) NOT NULL,
		hash CHAR(64) NOT NULL UNIQUE,
		scopes TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMP,
		revoked_at TIMESTAMP,
		last_used_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_api_keys_user_id ON api_keys(user_id);
	CREATE INDEX IF NOT EXISTS idx_api_keys_hash ON api_keys(hash);
	CREATE INDEX IF NOT EXISTS idx_api_keys_expires_at ON api_keys(expires_at);
	`

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create api_keys table: %w", err)
	}
	return nil
}

// CreateKey generates and stores a new API key. The returned token is the
// only time the plaintext is available.
func (s *Store) CreateKey(ctx context.Context, userID int64, name string, scopes []string, expiresAt *time.Time) (*APIKey, string, error) {
	token, err := GenerateToken()
	if err != nil {
		return nil, "", err
	}

	key := &APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Prefix:    TokenDisplayPrefix(token),
		Hash:      HashToken(token),
		Scopes:    scopes,
		ExpiresAt: expiresAt,
	}

	query := `
		INSERT INTO api_keys (id, user_id, name, prefix, hash, scopes, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	now := time.Now()
	_, err = s.db.ExecContext(ctx, query,
		key.ID,
		key.UserID,
		key.Name,
		key.Prefix,
		key.Hash,
		pq.Array(key.Scopes),
		now,
		key.ExpiresAt,
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create api key: %w", err)
	}

	key.CreatedAt = now
	return key, token, nil
}

// Authenticate resolves a presented token to its key, rejecting revoked and
// expired keys
func (s *Store) Authenticate(ctx context.Context, token string) (*APIKey, error) {
	if !ValidTokenFormat(token) {
		return nil, ErrNotFound
	}

	query := `
		SELECT id, user_id, name, prefix, hash, scopes, created_at, expires_at, revoked_at, last_used_at
		FROM api_keys
		WHERE hash = $1
	`

	var key APIKey
	var scopes pq.StringArray
	var expiresAt, revokedAt, lastUsedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, HashToken(token)).Scan(
		&key.ID,
		&key.UserID,
		&key.Name,
		&key.Prefix,
		&key.Hash,
		&scopes,
		&key.CreatedAt,
		&expiresAt,
		&revokedAt,
		&lastUsedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}

	key.Scopes = scopes
	if expiresAt.Valid {
		t := expiresAt.Time
		key.ExpiresAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		key.RevokedAt = &t
	}
	if lastUsedAt.Valid {
		t := lastUsedAt.Time
		key.LastUsedAt = &t
	}

	if key.RevokedAt != nil {
		return nil, ErrKeyRevoked
	}
	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		return nil, ErrKeyExpired
	}
	return &key, nil
}

// TouchLastUsed records key usage. Best-effort; failures are not fatal to
// the request.
func (s *Store) TouchLastUsed(ctx context.Context, keyID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET last_used_at = NOW() WHERE id = $1", keyID)
	if err != nil {
		return fmt.Errorf("failed to update last_used_at: %w", err)
	}
	return nil
}

// ListKeys retrieves a user's keys, newest first
func (s *Store) ListKeys(ctx context.Context, userID int64) ([]APIKey, error) {
	query := `
		SELECT id, user_id, name, prefix, scopes, created_at, expires_at, revoked_at, last_used_at
		FROM api_keys
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var key APIKey
		var scopes pq.StringArray
		var expiresAt, revokedAt, lastUsedAt sql.NullTime

		if err := rows.Scan(
			&key.ID,
			&key.UserID,
			&key.Name,
			&key.Prefix,
			&scopes,
			&key.CreatedAt,
			&expiresAt,
			&revokedAt,
			&lastUsedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}

		key.Scopes = scopes
		if expiresAt.Valid {
			t := expiresAt.Time
			key.ExpiresAt = &t
		}
		if revokedAt.Valid {
			t := revokedAt.Time
			key.RevokedAt = &t
		}
		if lastUsedAt.Valid {
			t := lastUsedAt.Time
			key.LastUsedAt = &t
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// RevokeKey marks a key revoked. Revocation is permanent.
func (s *Store) RevokeKey(ctx context.Context, keyID string, userID int64) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET revoked_at = NOW() WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL",
		keyID, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check revoke result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpiredKeys removes keys expired for more than the grace window.
// Run by the background cleanup job.
func (s *Store) DeleteExpiredKeys(ctx context.Context, grace time.Duration) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM api_keys WHERE expires_at IS NOT NULL AND expires_at < $1",
		time.Now().Add(-grace))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired api keys: %w", err)
	}
	return result.RowsAffected()
}
