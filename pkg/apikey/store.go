package apikey

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/duskforge/genforge/internal/db"
)

const rowColumns = `id, workspace_id, user_id, key_hash, key_prefix, description, role, scopes, last_used_at, expires_at, created_at`

// Store provides database operations for API keys.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a Store bound to the given database handle.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

// CreateParams holds parameters for creating an API key.
type CreateParams struct {
	WorkspaceID uuid.UUID
	UserID      uuid.UUID
	KeyHash     string
	KeyPrefix   string
	Description string
	Role        string
	Scopes      []string
	ExpiresAt   pgtype.Timestamptz
}

func scanRow(row pgx.Row) (Row, error) {
	var r Row
	err := row.Scan(
		&r.ID, &r.WorkspaceID, &r.UserID, &r.KeyHash, &r.KeyPrefix, &r.Description,
		&r.Role, &r.Scopes, &r.LastUsedAt, &r.ExpiresAt, &r.CreatedAt,
	)
	return r, err
}

// ListByWorkspace returns all API keys for the given workspace.
func (s *Store) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]Row, error) {
	query := `SELECT ` + rowColumns + ` FROM api_keys WHERE workspace_id = $1 ORDER BY created_at DESC`
	rows, err := s.dbtx.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var items []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

// Create inserts a new API key and returns the created row.
func (s *Store) Create(ctx context.Context, p CreateParams) (Row, error) {
	query := `INSERT INTO api_keys (workspace_id, user_id, key_hash, key_prefix, description, role, scopes, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + rowColumns

	return scanRow(s.dbtx.QueryRow(ctx, query,
		p.WorkspaceID, p.UserID, p.KeyHash, p.KeyPrefix, p.Description, p.Role, p.Scopes, p.ExpiresAt,
	))
}

// Delete permanently removes an API key scoped to a workspace, so a caller
// cannot delete another workspace's key by guessing its ID.
func (s *Store) Delete(ctx context.Context, workspaceID, id uuid.UUID) error {
	query := `DELETE FROM api_keys WHERE id = $1 AND workspace_id = $2`
	tag, err := s.dbtx.Exec(ctx, query, id, workspaceID)
	if err != nil {
		return fmt.Errorf("deleting api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
