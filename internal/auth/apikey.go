package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// APIKeyRecord is the data a Storage implementation resolves for a key hash.
type APIKeyRecord struct {
	APIKeyID    uuid.UUID
	WorkspaceID uuid.UUID
	UserID      uuid.UUID
	KeyPrefix   string
	Role        string
	Scopes      []string
	ExpiresAt   *time.Time
}

// Storage is the database surface the Authenticator needs.
type Storage interface {
	GetAPIKeyByHash(ctx context.Context, hash string) (APIKeyRecord, error)
	UpdateAPIKeyLastUsed(ctx context.Context, apiKeyID uuid.UUID) error
}

// PgStorage is a Storage backed by the shared connection pool.
type PgStorage struct {
	pool *pgxpool.Pool
}

// NewPgStorage creates a PgStorage.
func NewPgStorage(pool *pgxpool.Pool) *PgStorage {
	return &PgStorage{pool: pool}
}

// GetAPIKeyByHash looks up an API key by its SHA-256 hash.
func (s *PgStorage) GetAPIKeyByHash(ctx context.Context, hash string) (APIKeyRecord, error) {
	const query = `
		SELECT id, workspace_id, user_id, key_prefix, role, scopes, expires_at
		FROM api_keys
		WHERE key_hash = $1`

	var rec APIKeyRecord
	var expiresAt *time.Time
	err := s.pool.QueryRow(ctx, query, hash).Scan(
		&rec.APIKeyID, &rec.WorkspaceID, &rec.UserID, &rec.KeyPrefix, &rec.Role, &rec.Scopes, &expiresAt,
	)
	if err != nil {
		return APIKeyRecord{}, err
	}
	rec.ExpiresAt = expiresAt
	return rec, nil
}

// UpdateAPIKeyLastUsed stamps an API key's last_used_at with the current time.
func (s *PgStorage) UpdateAPIKeyLastUsed(ctx context.Context, apiKeyID uuid.UUID) error {
	const query = `UPDATE api_keys SET last_used_at = now() WHERE id = $1`
	_, err := s.pool.Exec(ctx, query, apiKeyID)
	return err
}

// Authenticator validates API keys against the database.
type Authenticator struct {
	Store   Storage
	DevMode bool
}

// NewAuthenticator creates an Authenticator backed by the given Storage.
func NewAuthenticator(store Storage, devMode bool) *Authenticator {
	return &Authenticator{Store: store, DevMode: devMode}
}

// authenticateKey hashes the raw key, looks it up, and validates expiration.
func (a *Authenticator) authenticateKey(ctx context.Context, rawKey string) (*Identity, error) {
	if rawKey == "" {
		return nil, fmt.Errorf("empty API key")
	}

	hash := HashAPIKey(rawKey)

	rec, err := a.Store.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("unknown API key")
		}
		return nil, fmt.Errorf("looking up API key: %w", err)
	}

	if rec.ExpiresAt != nil && rec.ExpiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("API key expired at %s", rec.ExpiresAt)
	}

	go func() {
		_ = a.Store.UpdateAPIKeyLastUsed(context.Background(), rec.APIKeyID)
	}()

	role := rec.Role
	if !IsValidRole(role) {
		role = RoleMember
	}

	apiKeyID := rec.APIKeyID
	userID := rec.UserID
	return &Identity{
		WorkspaceID: rec.WorkspaceID,
		Role:        role,
		UserID:      &userID,
		APIKeyID:    &apiKeyID,
		KeyPrefix:   rec.KeyPrefix,
		Method:      MethodAPIKey,
	}, nil
}
