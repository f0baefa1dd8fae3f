package promptversion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/duskforge/genforge/internal/db"
)

const rowColumns = `id, workspace_id, text_sha256, prompt_text, language, token_estimate, created_at`

// Store provides database operations for prompt versions.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a Store bound to the given database handle.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

func scanPromptVersion(row pgx.Row) (PromptVersion, error) {
	var p PromptVersion
	err := row.Scan(&p.ID, &p.WorkspaceID, &p.TextSHA256, &p.PromptText, &p.Language, &p.TokenEstimate, &p.CreatedAt)
	return p, err
}

// Get fetches a single prompt version by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (PromptVersion, error) {
	query := `SELECT ` + rowColumns + ` FROM prompt_versions WHERE id = $1`
	return scanPromptVersion(s.dbtx.QueryRow(ctx, query, id))
}

// estimateTokens is a best-effort approximation (roughly 4 characters per
// token for English prose) used only for introspection; it is never
// consulted by billing or provider submission.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 && text != "" {
		n = 1
	}
	return n
}

// FindOrCreate normalizes prompt text, hashes it, and returns the existing
// PromptVersion for that (workspace, hash) pair or creates a new one with a
// lightweight analysis record. The second return value is true if a new
// row was created.
func (s *Store) FindOrCreate(ctx context.Context, workspaceID uuid.UUID, promptText string) (PromptVersion, bool, error) {
	normalized := strings.TrimSpace(promptText)
	sum := sha256.Sum256([]byte(normalized))
	hash := hex.EncodeToString(sum[:])

	query := `SELECT ` + rowColumns + ` FROM prompt_versions WHERE workspace_id = $1 AND text_sha256 = $2`
	existing, err := scanPromptVersion(s.dbtx.QueryRow(ctx, query, workspaceID, hash))
	if err == nil {
		return existing, false, nil
	}
	if err != pgx.ErrNoRows {
		return PromptVersion{}, false, fmt.Errorf("looking up prompt version: %w", err)
	}

	insert := `
		INSERT INTO prompt_versions (workspace_id, text_sha256, prompt_text, language, token_estimate)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (workspace_id, text_sha256) DO UPDATE SET text_sha256 = EXCLUDED.text_sha256
		RETURNING ` + rowColumns

	created, err := scanPromptVersion(s.dbtx.QueryRow(ctx, insert, workspaceID, hash, normalized, "en", estimateTokens(normalized)))
	if err != nil {
		return PromptVersion{}, false, fmt.Errorf("creating prompt version: %w", err)
	}
	return created, true, nil
}
