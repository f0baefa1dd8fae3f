package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/duskforge/genforge/internal/db"
)

// Service encapsulates user business logic.
type Service struct {
	store  *Store
	logger *slog.Logger
}

// NewService creates a user Service backed by the given database handle.
func NewService(dbtx db.DBTX, logger *slog.Logger) *Service {
	return &Service{store: NewStore(dbtx), logger: logger}
}

// List returns all active users in a workspace.
func (s *Service) List(ctx context.Context, workspaceID uuid.UUID) ([]Response, error) {
	rows, err := s.store.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	items := make([]Response, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].ToResponse())
	}
	return items, nil
}

// Get returns a single user scoped to a workspace.
func (s *Service) Get(ctx context.Context, workspaceID, id uuid.UUID) (Response, error) {
	row, err := s.store.Get(ctx, workspaceID, id)
	if err != nil {
		return Response{}, fmt.Errorf("getting user: %w", err)
	}
	return row.ToResponse(), nil
}

// Create creates a new user in a workspace.
func (s *Service) Create(ctx context.Context, workspaceID uuid.UUID, req CreateRequest) (Response, error) {
	row, err := s.store.Create(ctx, CreateParams{
		WorkspaceID: workspaceID,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Role:        req.Role,
	})
	if err != nil {
		return Response{}, fmt.Errorf("creating user: %w", err)
	}
	return row.ToResponse(), nil
}

// Update updates a user scoped to a workspace.
func (s *Service) Update(ctx context.Context, workspaceID, id uuid.UUID, req UpdateRequest) (Response, error) {
	row, err := s.store.Update(ctx, workspaceID, id, UpdateParams{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Role:        req.Role,
	})
	if err != nil {
		return Response{}, fmt.Errorf("updating user: %w", err)
	}
	return row.ToResponse(), nil
}

// Deactivate soft-deletes a user scoped to a workspace.
func (s *Service) Deactivate(ctx context.Context, workspaceID, id uuid.UUID) error {
	if err := s.store.Deactivate(ctx, workspaceID, id); err != nil {
		return fmt.Errorf("deactivating user: %w", err)
	}
	return nil
}
