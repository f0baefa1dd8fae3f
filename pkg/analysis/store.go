package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/duskforge/genforge/internal/db"
)

const rowColumns = `id, workspace_id, generation_id, status, started_at, created_at, updated_at`

// Store provides database operations for analyses.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a Store bound to the given database handle.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

func scanAnalysis(row pgx.Row) (Analysis, error) {
	var a Analysis
	err := row.Scan(&a.ID, &a.WorkspaceID, &a.GenerationID, &a.Status, &a.StartedAt, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// Create inserts a new Analysis row in PENDING status, optionally linked
// to the Generation whose prompt it is analyzing.
func (s *Store) Create(ctx context.Context, workspaceID uuid.UUID, generationID *int64) (Analysis, error) {
	const query = `
		INSERT INTO analyses (workspace_id, generation_id, status)
		VALUES ($1, $2, 'PENDING')
		RETURNING ` + rowColumns
	return scanAnalysis(s.dbtx.QueryRow(ctx, query, workspaceID, generationID))
}

// Get fetches a single analysis by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Analysis, error) {
	query := `SELECT ` + rowColumns + ` FROM analyses WHERE id = $1`
	return scanAnalysis(s.dbtx.QueryRow(ctx, query, id))
}

// ListProcessing returns analyses currently PROCESSING, ordered by started_at,
// for the status poller's analysis path.
func (s *Store) ListProcessing(ctx context.Context) ([]Analysis, error) {
	query := `SELECT ` + rowColumns + ` FROM analyses WHERE status = 'PROCESSING' ORDER BY started_at ASC`
	rows, err := s.dbtx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing processing analyses: %w", err)
	}
	defer rows.Close()

	var items []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// ListStalePending returns PENDING analyses older than the given staleness
// threshold, up to a batch cap, for the requeue sweeper.
func (s *Store) ListStalePending(ctx context.Context, olderThan time.Time, batchCap int) ([]Analysis, error) {
	query := `SELECT ` + rowColumns + ` FROM analyses WHERE status = 'PENDING' AND created_at < $1 ORDER BY created_at ASC LIMIT $2`
	rows, err := s.dbtx.Query(ctx, query, olderThan, batchCap)
	if err != nil {
		return nil, fmt.Errorf("listing stale pending analyses: %w", err)
	}
	defer rows.Close()

	var items []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// MarkStarted transitions PENDING -> PROCESSING, recording started_at.
// Returns false if another worker already claimed it.
func (s *Store) MarkStarted(ctx context.Context, id uuid.UUID) (bool, error) {
	const query = `
		UPDATE analyses SET status = 'PROCESSING', started_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'PENDING' RETURNING id`
	var got uuid.UUID
	err := s.dbtx.QueryRow(ctx, query, id).Scan(&got)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkTerminal transitions a non-terminal analysis to a terminal status.
func (s *Store) MarkTerminal(ctx context.Context, id uuid.UUID, to Status) (bool, error) {
	const query = `
		UPDATE analyses SET status = $2, updated_at = now()
		WHERE id = $1 AND status NOT IN ('COMPLETED', 'FAILED') RETURNING id`
	var got uuid.UUID
	err := s.dbtx.QueryRow(ctx, query, id, to).Scan(&got)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
