package account

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/duskforge/genforge/internal/db"
)

const rowColumns = `id, workspace_id, provider_id, label, credentials, credits,
	current_processing_jobs, max_concurrent, cooldown_until, last_used_at, created_at, updated_at`

// Store provides database operations for provider accounts.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a Store bound to the given database handle.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	var credentials, credits []byte
	var cooldownUntil, lastUsedAt *time.Time
	err := row.Scan(
		&a.ID, &a.WorkspaceID, &a.ProviderID, &a.Label, &credentials, &credits,
		&a.CurrentProcessingJobs, &a.MaxConcurrent, &cooldownUntil, &lastUsedAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return Account{}, err
	}
	_ = json.Unmarshal(credentials, &a.Credentials)
	_ = json.Unmarshal(credits, &a.Credits)
	a.CooldownUntil = cooldownUntil
	a.LastUsedAt = lastUsedAt
	return a, nil
}

// Get fetches a single account by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	query := `SELECT ` + rowColumns + ` FROM provider_accounts WHERE id = $1`
	return scanAccount(s.dbtx.QueryRow(ctx, query, id))
}

// ListByWorkspace returns every account for the given workspace.
func (s *Store) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]Account, error) {
	query := `SELECT ` + rowColumns + ` FROM provider_accounts WHERE workspace_id = $1 ORDER BY created_at DESC`
	rows, err := s.dbtx.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("listing provider accounts: %w", err)
	}
	defer rows.Close()

	var items []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning provider account: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// CreateParams holds parameters for onboarding a new provider account.
type CreateParams struct {
	WorkspaceID   uuid.UUID
	ProviderID    string
	Label         string
	Credentials   map[string]any
	Credits       map[string]int
	MaxConcurrent int
}

// Create inserts a new provider account.
func (s *Store) Create(ctx context.Context, p CreateParams) (Account, error) {
	credentials, _ := json.Marshal(p.Credentials)
	credits, _ := json.Marshal(p.Credits)
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = 5
	}

	query := `
		INSERT INTO provider_accounts (workspace_id, provider_id, label, credentials, credits, max_concurrent)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + rowColumns

	row := s.dbtx.QueryRow(ctx, query, p.WorkspaceID, p.ProviderID, p.Label, credentials, credits, p.MaxConcurrent)
	return scanAccount(row)
}

// candidateIDs returns account IDs eligible for reservation, in priority
// order: not cooling down, below max concurrency, at least one credit type
// positive, ordered by (credits_total DESC, last_used_at ASC NULLS FIRST,
// id ASC) per the account-pool tiebreaker policy.
func (s *Store) candidateIDs(ctx context.Context, workspaceID uuid.UUID, providerID string) ([]uuid.UUID, error) {
	const query = `
		SELECT id
		FROM provider_accounts
		WHERE workspace_id = $1
		  AND provider_id = $2
		  AND current_processing_jobs < max_concurrent
		  AND (cooldown_until IS NULL OR cooldown_until <= now())
		  AND COALESCE((SELECT SUM(value::int) FROM jsonb_each_text(credits)), 0) > 0
		ORDER BY COALESCE((SELECT SUM(value::int) FROM jsonb_each_text(credits)), 0) DESC,
		         last_used_at ASC NULLS FIRST,
		         id ASC`

	rows, err := s.dbtx.Query(ctx, query, workspaceID, providerID)
	if err != nil {
		return nil, fmt.Errorf("listing account candidates: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// earliestCooldown returns the earliest cooldown_until among accounts for
// the given provider that are currently cooling down, for AccountCooldownError.
func (s *Store) earliestCooldown(ctx context.Context, workspaceID uuid.UUID, providerID string) (*time.Time, error) {
	const query = `
		SELECT MIN(cooldown_until)
		FROM provider_accounts
		WHERE workspace_id = $1 AND provider_id = $2 AND cooldown_until > now()`

	var t *time.Time
	err := s.dbtx.QueryRow(ctx, query, workspaceID, providerID).Scan(&t)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// reserve attempts an atomic guarded increment of current_processing_jobs
// for a single candidate. Returns false (no error) if another reservation
// won the race in between the candidate scan and this update.
func (s *Store) reserve(ctx context.Context, id uuid.UUID) (bool, error) {
	const query = `
		UPDATE provider_accounts
		SET current_processing_jobs = current_processing_jobs + 1,
		    last_used_at = now(),
		    updated_at = now()
		WHERE id = $1 AND current_processing_jobs < max_concurrent
		RETURNING id`

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

// Release decrements current_processing_jobs, never going below zero.
func (s *Store) Release(ctx context.Context, id uuid.UUID) error {
	const query = `
		UPDATE provider_accounts
		SET current_processing_jobs = GREATEST(current_processing_jobs - 1, 0),
		    updated_at = now()
		WHERE id = $1`
	_, err := s.dbtx.Exec(ctx, query, id)
	return err
}

// SetCooldown puts an account into cooldown until the given time.
func (s *Store) SetCooldown(ctx context.Context, id uuid.UUID, until time.Time) error {
	const query = `UPDATE provider_accounts SET cooldown_until = $2, updated_at = now() WHERE id = $1`
	_, err := s.dbtx.Exec(ctx, query, id, until)
	return err
}

// GetCredits returns the current credit balances for an account.
func (s *Store) GetCredits(ctx context.Context, id uuid.UUID) (map[string]int, error) {
	const query = `SELECT credits FROM provider_accounts WHERE id = $1`
	var raw []byte
	if err := s.dbtx.QueryRow(ctx, query, id).Scan(&raw); err != nil {
		return nil, err
	}
	credits := map[string]int{}
	_ = json.Unmarshal(raw, &credits)
	return credits, nil
}

// RefreshCredits overwrites an account's stored credit balances, used
// after an adapter-side refresh following a terminal transition.
func (s *Store) RefreshCredits(ctx context.Context, id uuid.UUID, credits map[string]int) error {
	raw, err := json.Marshal(credits)
	if err != nil {
		return err
	}
	const query = `UPDATE provider_accounts SET credits = $2, updated_at = now() WHERE id = $1`
	_, err = s.dbtx.Exec(ctx, query, id, raw)
	return err
}

// DeductCredit subtracts amount from a single credit type, guarded so the
// balance never goes negative; returns false if the guard failed (caller
// should treat it as a billing failure).
func (s *Store) DeductCredit(ctx context.Context, id uuid.UUID, creditType string, amount int) (bool, error) {
	const query = `
		UPDATE provider_accounts
		SET credits = jsonb_set(credits, ARRAY[$2::text], to_jsonb(GREATEST((credits->>$2)::int - $3, 0))),
		    updated_at = now()
		WHERE id = $1 AND COALESCE((credits->>$2)::int, 0) >= $3
		RETURNING id`

	var got uuid.UUID
	err := s.dbtx.QueryRow(ctx, query, id, creditType, amount).Scan(&got)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ReconcileCounters recomputes current_processing_jobs from the actual
// count of in-flight (PROCESSING) generations, clamping drift introduced
// by crashed workers that never released their reservation. Analyses are
// not counted: their rows carry no account reference.
func (s *Store) ReconcileCounters(ctx context.Context) (int, error) {
	const query = `
		UPDATE provider_accounts pa
		SET current_processing_jobs = actual.count, updated_at = now()
		FROM (
			SELECT account_id, COUNT(*) AS count
			FROM (
				SELECT account_id FROM generations WHERE status = 'PROCESSING' AND account_id IS NOT NULL
			) AS in_flight
			GROUP BY account_id
		) AS actual
		WHERE pa.id = actual.account_id AND pa.current_processing_jobs != actual.count`

	tag, err := s.dbtx.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("reconciling account counters: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ClampOrphanedCounters zeroes current_processing_jobs for accounts that
// have no in-flight generations at all, catching accounts the join-based
// reconcile above cannot reach (no matching "actual" row).
func (s *Store) ClampOrphanedCounters(ctx context.Context) (int, error) {
	const query = `
		UPDATE provider_accounts
		SET current_processing_jobs = 0, updated_at = now()
		WHERE current_processing_jobs > 0
		  AND id NOT IN (
		      SELECT DISTINCT account_id FROM generations
		      WHERE status = 'PROCESSING' AND account_id IS NOT NULL
		  )`

	tag, err := s.dbtx.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("clamping orphaned account counters: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
