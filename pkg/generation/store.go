package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/duskforge/genforge/internal/db"
)

const rowColumns = `id, workspace_id, user_id, operation, provider_id, account_id,
	raw_params, canonical_params, inputs, reproducible_hash, status, billing_state,
	actual_credits, credit_type, retry_count, max_retries, parent_generation_id,
	prompt_version_id, asset_id, error_message, billing_error, scheduled_at,
	created_at, started_at, completed_at, charged_at, updated_at`

// Store provides database operations for generations.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a Store bound to the given database handle.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

func scanGeneration(row pgx.Row) (Generation, error) {
	var g Generation
	var rawParams, canonicalParams, inputs []byte

	err := row.Scan(
		&g.ID, &g.WorkspaceID, &g.UserID, &g.Operation, &g.ProviderID, &g.AccountID,
		&rawParams, &canonicalParams, &inputs, &g.ReproducibleHash, &g.Status, &g.BillingState,
		&g.ActualCredits, &g.CreditType, &g.RetryCount, &g.MaxRetries, &g.ParentGenerationID,
		&g.PromptVersionID, &g.AssetID, &g.ErrorMessage, &g.BillingError, &g.ScheduledAt,
		&g.CreatedAt, &g.StartedAt, &g.CompletedAt, &g.ChargedAt, &g.UpdatedAt,
	)
	if err != nil {
		return Generation{}, err
	}

	g.RawParams = json.RawMessage(rawParams)
	g.CanonicalParams = json.RawMessage(canonicalParams)
	if len(inputs) > 0 {
		_ = json.Unmarshal(inputs, &g.Inputs)
	}
	return g, nil
}

// CreateParams holds parameters for persisting a new Generation as PENDING.
type CreateParams struct {
	WorkspaceID      uuid.UUID
	UserID           uuid.UUID
	Operation        string
	ProviderID       string
	RawParams        map[string]any
	CanonicalParams  map[string]any
	Inputs           []Input
	ReproducibleHash string
	MaxRetries       int
	ParentGenerationID *int64
	PromptVersionID  *uuid.UUID
	ScheduledAt      *time.Time
}

// Create inserts a new Generation row in PENDING status.
func (s *Store) Create(ctx context.Context, p CreateParams) (Generation, error) {
	rawParams, err := json.Marshal(p.RawParams)
	if err != nil {
		return Generation{}, fmt.Errorf("marshaling raw params: %w", err)
	}
	canonicalParams, err := json.Marshal(p.CanonicalParams)
	if err != nil {
		return Generation{}, fmt.Errorf("marshaling canonical params: %w", err)
	}
	if p.Inputs == nil {
		p.Inputs = []Input{}
	}
	inputs, err := json.Marshal(p.Inputs)
	if err != nil {
		return Generation{}, fmt.Errorf("marshaling inputs: %w", err)
	}
	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 10
	}

	const query = `
		INSERT INTO generations (
			workspace_id, user_id, operation, provider_id, raw_params, canonical_params,
			inputs, reproducible_hash, status, billing_state, max_retries,
			parent_generation_id, prompt_version_id, scheduled_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'PENDING', 'UNCHARGED', $9, $10, $11, $12)
		RETURNING ` + rowColumns

	row := s.dbtx.QueryRow(ctx, query,
		p.WorkspaceID, p.UserID, p.Operation, p.ProviderID, rawParams, canonicalParams,
		inputs, p.ReproducibleHash, maxRetries, p.ParentGenerationID, p.PromptVersionID, p.ScheduledAt,
	)
	return scanGeneration(row)
}

// Get fetches a single generation by id.
func (s *Store) Get(ctx context.Context, id int64) (Generation, error) {
	query := `SELECT ` + rowColumns + ` FROM generations WHERE id = $1`
	return scanGeneration(s.dbtx.QueryRow(ctx, query, id))
}

// GetByHash returns the most recent non-FAILED generation matching a
// reproducible hash, used to return the existing row when persisting
// (step 11) hits the unique index on reproducible_hash. Returns
// pgx.ErrNoRows if none exists.
func (s *Store) GetByHash(ctx context.Context, reproducibleHash string) (Generation, error) {
	query := `SELECT ` + rowColumns + ` FROM generations
		WHERE reproducible_hash = $1 AND status != 'FAILED'
		ORDER BY created_at DESC LIMIT 1`
	return scanGeneration(s.dbtx.QueryRow(ctx, query, reproducibleHash))
}

// ListParams holds the filters and offset-pagination window for ListByWorkspace.
type ListParams struct {
	WorkspaceID uuid.UUID
	UserID      *uuid.UUID
	Status      string
	Operation   string
	Limit       int
	Offset      int
}

// ListByWorkspace returns generations for a workspace matching the given
// filters, newest first, using limit/offset pagination per spec.md §6.
func (s *Store) ListByWorkspace(ctx context.Context, p ListParams) ([]Generation, error) {
	query := `SELECT ` + rowColumns + ` FROM generations WHERE workspace_id = $1`
	args := []any{p.WorkspaceID}

	if p.UserID != nil {
		args = append(args, *p.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if p.Status != "" {
		args = append(args, p.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if p.Operation != "" {
		args = append(args, p.Operation)
		query += fmt.Sprintf(" AND operation = $%d", len(args))
	}

	limit := p.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, p.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.dbtx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing generations: %w", err)
	}
	defer rows.Close()

	var items []Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning generation: %w", err)
		}
		items = append(items, g)
	}
	return items, rows.Err()
}

// ListStalePending returns PENDING generations older than the given
// staleness threshold, up to a batch cap, for the requeue sweeper.
func (s *Store) ListStalePending(ctx context.Context, olderThan time.Time, batchCap int) ([]Generation, error) {
	query := `SELECT ` + rowColumns + ` FROM generations
		WHERE status = 'PENDING' AND created_at < $1
		  AND (scheduled_at IS NULL OR scheduled_at <= now())
		ORDER BY created_at ASC LIMIT $2`

	rows, err := s.dbtx.Query(ctx, query, olderThan, batchCap)
	if err != nil {
		return nil, fmt.Errorf("listing stale pending generations: %w", err)
	}
	defer rows.Close()

	var items []Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, g)
	}
	return items, rows.Err()
}

// ListProcessing returns generations currently PROCESSING, ordered by
// started_at, for the status poller.
func (s *Store) ListProcessing(ctx context.Context) ([]Generation, error) {
	query := `SELECT ` + rowColumns + ` FROM generations
		WHERE status = 'PROCESSING' ORDER BY started_at ASC`

	rows, err := s.dbtx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing processing generations: %w", err)
	}
	defer rows.Close()

	var items []Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, g)
	}
	return items, rows.Err()
}

// TransitionStatus performs the guarded `status = from -> to` update that
// backs every lifecycle mutation. Returns false (no error) if the
// generation's status had already moved on, meaning the caller lost the
// race and must abort its own transition.
func (s *Store) TransitionStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	const query = `UPDATE generations SET status = $3, updated_at = now() WHERE id = $1 AND status = $2 RETURNING id`
	var got int64
	err := s.dbtx.QueryRow(ctx, query, id, from, to).Scan(&got)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkStarted transitions PENDING -> PROCESSING, recording the account and
// started_at timestamp. Returns false if another worker already claimed it.
func (s *Store) MarkStarted(ctx context.Context, id int64, accountID uuid.UUID) (bool, error) {
	const query = `
		UPDATE generations
		SET status = 'PROCESSING', account_id = $2, started_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING id`
	var got int64
	err := s.dbtx.QueryRow(ctx, query, id, accountID).Scan(&got)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkTerminal transitions a generation to a terminal status, recording an
// optional error message and completed_at. Guarded so only a non-terminal
// generation can be transitioned (absorbing terminal states).
func (s *Store) MarkTerminal(ctx context.Context, id int64, to Status, errMsg *string) (bool, error) {
	const query = `
		UPDATE generations
		SET status = $2, error_message = COALESCE($3, error_message), completed_at = now(), updated_at = now()
		WHERE id = $1 AND status NOT IN ('COMPLETED', 'FAILED', 'CANCELLED')
		RETURNING id`
	var got int64
	err := s.dbtx.QueryRow(ctx, query, id, to, errMsg).Scan(&got)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetAssetID records the ingested asset for a generation.
func (s *Store) SetAssetID(ctx context.Context, id int64, assetID uuid.UUID) error {
	const query = `UPDATE generations SET asset_id = $2, updated_at = now() WHERE id = $1`
	_, err := s.dbtx.Exec(ctx, query, id, assetID)
	return err
}

// BillingUpdate holds the fields the Billing Finalizer persists.
type BillingUpdate struct {
	BillingState  BillingState
	ActualCredits int
	CreditType    *string
	AccountID     *uuid.UUID
	BillingError  *string
	ChargedAt     *time.Time
}

// UpdateBilling persists the Billing Finalizer's outcome. Always succeeds
// unconditionally (billing idempotence is enforced by the caller checking
// billing_state before calling this).
func (s *Store) UpdateBilling(ctx context.Context, id int64, u BillingUpdate) error {
	const query = `
		UPDATE generations
		SET billing_state = $2, actual_credits = $3, credit_type = $4,
		    account_id = COALESCE($5, account_id), billing_error = $6, charged_at = $7, updated_at = now()
		WHERE id = $1`
	_, err := s.dbtx.Exec(ctx, query, id, u.BillingState, u.ActualCredits, u.CreditType, u.AccountID, u.BillingError, u.ChargedAt)
	return err
}

// ResetForRetry implements the auto-retry reuse path (C9): increments
// retry_count and returns the row to PENDING with lifecycle timestamps
// cleared, preserving error_message as the record of the original failure.
func (s *Store) ResetForRetry(ctx context.Context, id int64) (bool, error) {
	const query = `
		UPDATE generations
		SET status = 'PENDING', retry_count = retry_count + 1,
		    started_at = NULL, completed_at = NULL, account_id = NULL, updated_at = now()
		WHERE id = $1 AND status = 'FAILED'
		RETURNING id`
	var got int64
	err := s.dbtx.QueryRow(ctx, query, id).Scan(&got)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// setRetryCount overwrites retry_count directly, used by the API-level
// retry path which creates a new row rather than incrementing in place.
func (s *Store) setRetryCount(ctx context.Context, id int64, count int) error {
	const query = `UPDATE generations SET retry_count = $2, updated_at = now() WHERE id = $1`
	_, err := s.dbtx.Exec(ctx, query, id, count)
	return err
}

// delete removes a generation row outright. Only called by the handler
// after confirming the generation is in a terminal status.
func (s *Store) delete(ctx context.Context, id int64) error {
	_, err := s.dbtx.Exec(ctx, `DELETE FROM generations WHERE id = $1`, id)
	return err
}

// CountActiveForUser returns the number of non-terminal generations owned
// by a user, used by the Creation Service's quota check (step 1).
func (s *Store) CountActiveForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	const query = `
		SELECT COUNT(*) FROM generations
		WHERE user_id = $1 AND status IN ('PENDING', 'PROCESSING')`
	var count int
	err := s.dbtx.QueryRow(ctx, query, userID).Scan(&count)
	return count, err
}
