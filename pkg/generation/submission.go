package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/duskforge/genforge/internal/db"
)

// Submission is the domain view of a provider_submissions row: an
// append-only record of one adapter Execute() call for a Generation.
type Submission struct {
	ID                 uuid.UUID
	GenerationID       int64
	AccountID          uuid.UUID
	ProviderJobID      string
	Status             string
	Response           json.RawMessage
	SubmittedAt        time.Time
	EstimatedCompletion *time.Time
}

// SubmissionStore provides database operations for provider_submissions.
type SubmissionStore struct {
	dbtx db.DBTX
}

// NewSubmissionStore creates a SubmissionStore bound to the given database handle.
func NewSubmissionStore(dbtx db.DBTX) *SubmissionStore {
	return &SubmissionStore{dbtx: dbtx}
}

// CreateSubmissionParams holds the fields recorded after a successful
// adapter Execute() call (C5 step 5).
type CreateSubmissionParams struct {
	GenerationID        int64
	AccountID           uuid.UUID
	ProviderJobID       string
	Status              string
	Response            map[string]any
	EstimatedCompletion *time.Time
}

// Create records a new ProviderSubmission. Submissions are append-only;
// the latest one for a generation is what the status poller consults.
func (s *SubmissionStore) Create(ctx context.Context, p CreateSubmissionParams) (Submission, error) {
	response, err := json.Marshal(p.Response)
	if err != nil {
		return Submission{}, fmt.Errorf("marshaling submission response: %w", err)
	}

	const query = `
		INSERT INTO provider_submissions (generation_id, account_id, provider_job_id, status, response, estimated_completion)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, generation_id, account_id, provider_job_id, status, response, submitted_at, estimated_completion`

	var sub Submission
	var raw []byte
	row := s.dbtx.QueryRow(ctx, query, p.GenerationID, p.AccountID, p.ProviderJobID, p.Status, response, p.EstimatedCompletion)
	if err := row.Scan(&sub.ID, &sub.GenerationID, &sub.AccountID, &sub.ProviderJobID, &sub.Status, &raw, &sub.SubmittedAt, &sub.EstimatedCompletion); err != nil {
		return Submission{}, err
	}
	sub.Response = json.RawMessage(raw)
	return sub, nil
}

// Latest returns the most recently submitted ProviderSubmission for a
// generation, or pgx.ErrNoRows if none exists.
func (s *SubmissionStore) Latest(ctx context.Context, generationID int64) (Submission, error) {
	const query = `
		SELECT id, generation_id, account_id, provider_job_id, status, response, submitted_at, estimated_completion
		FROM provider_submissions
		WHERE generation_id = $1
		ORDER BY submitted_at DESC LIMIT 1`

	var sub Submission
	var raw []byte
	row := s.dbtx.QueryRow(ctx, query, generationID)
	if err := row.Scan(&sub.ID, &sub.GenerationID, &sub.AccountID, &sub.ProviderJobID, &sub.Status, &raw, &sub.SubmittedAt, &sub.EstimatedCompletion); err != nil {
		return Submission{}, err
	}
	sub.Response = json.RawMessage(raw)
	return sub, nil
}
