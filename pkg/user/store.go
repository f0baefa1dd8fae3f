package user

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/duskforge/genforge/internal/db"
)

const rowColumns = `id, workspace_id, email, display_name, role, is_active, created_at, updated_at`

// Store provides database operations for users.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a user Store backed by the given database handle.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

// Row represents a row returned from the users table.
type Row struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	Email       string
	DisplayName string
	Role        string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ToResponse converts a Row to a Response DTO.
func (u *Row) ToResponse() Response {
	return Response{
		ID:          u.ID,
		WorkspaceID: u.WorkspaceID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func scanRow(row pgx.Row) (Row, error) {
	var u Row
	err := row.Scan(&u.ID, &u.WorkspaceID, &u.Email, &u.DisplayName, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// ListByWorkspace returns all active users in a workspace, ordered by display name.
func (s *Store) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]Row, error) {
	query := `SELECT ` + rowColumns + ` FROM users WHERE workspace_id = $1 AND is_active = true ORDER BY display_name`
	rows, err := s.dbtx.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var items []Row
	for rows.Next() {
		u, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

// Get returns a single user scoped to a workspace.
func (s *Store) Get(ctx context.Context, workspaceID, id uuid.UUID) (Row, error) {
	query := `SELECT ` + rowColumns + ` FROM users WHERE id = $1 AND workspace_id = $2`
	return scanRow(s.dbtx.QueryRow(ctx, query, id, workspaceID))
}

// CreateParams holds parameters for creating a user.
type CreateParams struct {
	WorkspaceID uuid.UUID
	Email       string
	DisplayName string
	Role        string
}

// Create inserts a new user in the given workspace.
func (s *Store) Create(ctx context.Context, p CreateParams) (Row, error) {
	query := `INSERT INTO users (workspace_id, email, display_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + rowColumns
	return scanRow(s.dbtx.QueryRow(ctx, query, p.WorkspaceID, p.Email, p.DisplayName, p.Role))
}

// UpdateParams holds parameters for updating a user.
type UpdateParams struct {
	Email       string
	DisplayName string
	Role        string
}

// Update updates all editable fields for a user scoped to a workspace.
func (s *Store) Update(ctx context.Context, workspaceID, id uuid.UUID, p UpdateParams) (Row, error) {
	query := `UPDATE users
		SET email = $3, display_name = $4, role = $5, updated_at = now()
		WHERE id = $1 AND workspace_id = $2
		RETURNING ` + rowColumns
	return scanRow(s.dbtx.QueryRow(ctx, query, id, workspaceID, p.Email, p.DisplayName, p.Role))
}

// Deactivate soft-deletes a user by setting is_active to false.
func (s *Store) Deactivate(ctx context.Context, workspaceID, id uuid.UUID) error {
	query := `UPDATE users SET is_active = false, updated_at = now() WHERE id = $1 AND workspace_id = $2`
	tag, err := s.dbtx.Exec(ctx, query, id, workspaceID)
	if err != nil {
		return fmt.Errorf("deactivating user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
